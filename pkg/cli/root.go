package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/accessplane/pkg/auth"
	"github.com/platinummonkey/accessplane/pkg/observability"
	"github.com/platinummonkey/accessplane/pkg/rbac"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// Opener connects to the configured storage and returns the authorization
// service over it. close releases the connection.
type Opener func(ctx context.Context, storageType, databaseURL string) (svc *rbac.Service, close func() error, err error)

// TokenIssuer builds a token manager from a secret and issuer
type TokenIssuer func(secret, issuer string) (*auth.TokenManager, error)

// App holds what every admin command shares
type App struct {
	Logger *logrus.Logger
	Out    io.Writer
	Open   Opener
	Tokens TokenIssuer

	// defaults for the global flags
	StorageType string
	DatabaseURL string
	Actor       string
}

// NewApp returns an App with production defaults read from the environment
func NewApp(logger *logrus.Logger) *App {
	return &App{
		Logger:      logger,
		Out:         os.Stdout,
		Open:        OpenService(logger),
		Tokens:      auth.NewTokenManager,
		StorageType: getEnv("ACCESSPLANE_STORAGE_TYPE", "postgres"),
		DatabaseURL: getEnv("ACCESSPLANE_DATABASE_URL", ""),
		Actor:       getEnv("USER", "accessplane-admin"),
	}
}

// NewRootCommand creates the root command
func NewRootCommand(app *App) *Command {
	root := &Command{
		Name:        "accessplane-admin",
		Description: "Accessplane - role and assignment administration",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("accessplane-admin", flag.ContinueOnError),
	}
	root.Flags.SetOutput(app.Out)

	// Add subcommands
	for _, cmd := range []*Command{
		newMigrateCommand(app),
		newSeedCommand(app),
		newRolesCommand(app),
		newAssignCommand(app),
		newRevokeCommand(app),
		newUpdateCommand(app),
		newCheckCommand(app),
		newTokenCommand(app),
	} {
		root.Subcommands[cmd.Name] = cmd
	}

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	// Check for help flag
	switch strings.ToLower(args[0]) {
	case "-h", "--help", "help":
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	out := io.Writer(os.Stdout)
	if c.Flags != nil {
		out = c.Flags.Output()
	}

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// newCommand builds a leaf command whose flags print to app.Out. Storage
// flags are added to every command that touches the database.
func newCommand(app *App, name, description string, storage bool) (*Command, *storageFlags) {
	cmd := &Command{
		Name:        name,
		Description: description,
		Flags:       flag.NewFlagSet(name, flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(app.Out)

	if !storage {
		return cmd, nil
	}
	sf := &storageFlags{}
	cmd.Flags.StringVar(&sf.storageType, "storage", app.StorageType, "Storage type (postgres, sqlite)")
	cmd.Flags.StringVar(&sf.databaseURL, "db", app.DatabaseURL, "Database connection URL")
	cmd.Flags.StringVar(&sf.actor, "actor", app.Actor, "Operator recorded in the audit trail")
	return cmd, sf
}

type storageFlags struct {
	storageType string
	databaseURL string
	actor       string
}

// withService opens the service, runs fn and closes it again
func (app *App) withService(sf *storageFlags, fn func(ctx context.Context, svc *rbac.Service) error) error {
	ctx := observability.WithUserID(context.Background(), sf.actor)

	svc, closeFn, err := app.Open(ctx, sf.storageType, sf.databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			app.Logger.Warnf("Failed to close storage: %v", err)
		}
	}()

	return fn(ctx, svc)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
