package cli

import (
	"fmt"
	"time"
)

func newTokenCommand(app *App) *Command {
	cmd, _ := newCommand(app, "token", "Issue a bearer token for a user", false)
	user := cmd.Flags.String("user", "", "User ID (required)")
	ttl := cmd.Flags.Duration("ttl", time.Hour, "Token lifetime")
	name := cmd.Flags.String("name", "", "Display name claim")
	email := cmd.Flags.String("email", "", "Email claim")
	secret := cmd.Flags.String("secret", getEnv("ACCESSPLANE_JWT_SECRET", ""), "HMAC signing secret")
	issuer := cmd.Flags.String("issuer", getEnv("ACCESSPLANE_JWT_ISSUER", "accessplane"), "Token issuer")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" {
			return fmt.Errorf("-user is required")
		}
		if *ttl <= 0 {
			return fmt.Errorf("-ttl must be positive")
		}

		tokens, err := app.Tokens(*secret, *issuer)
		if err != nil {
			return err
		}
		token, err := tokens.IssueToken(*user, *ttl, *name, *email)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}

		app.Logger.WithField("user_id", *user).Debugf("Issued token valid for %s", *ttl)
		fmt.Fprintln(app.Out, token)
		return nil
	}
	return cmd
}
