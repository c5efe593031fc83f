package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/platinummonkey/accessplane/pkg/rbac"
)

func newMigrateCommand(app *App) *Command {
	cmd, sf := newCommand(app, "migrate", "Apply database migrations", true)
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		// opening the storage runs every pending migration
		return app.withService(sf, func(ctx context.Context, svc *rbac.Service) error {
			app.Logger.Info("Database schema is up to date")
			return nil
		})
	}
	return cmd
}

func newSeedCommand(app *App) *Command {
	cmd, sf := newCommand(app, "seed", "Create the built-in roles and an optional role file", true)
	rolesFile := cmd.Flags.String("roles-file", getEnv("ACCESSPLANE_ROLES_FILE", ""), "YAML file of custom roles")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		var file *rbac.RoleFile
		if *rolesFile != "" {
			var err error
			if file, err = rbac.LoadRoleFile(*rolesFile); err != nil {
				return err
			}
		}

		return app.withService(sf, func(ctx context.Context, svc *rbac.Service) error {
			result, err := svc.EnsureDefaultRoles(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Built-in roles: %d created, %d already present\n", len(result.Created), len(result.Skipped))

			if file == nil {
				return nil
			}
			applied, err := svc.Roles.ApplyRoleFile(ctx, file)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Custom roles: %d created, %d already present\n", len(applied.Created), len(applied.Skipped))
			return nil
		})
	}
	return cmd
}

func newRolesCommand(app *App) *Command {
	cmd, sf := newCommand(app, "roles", "List active roles", true)
	asJSON := cmd.Flags.Bool("json", false, "Print roles as JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		return app.withService(sf, func(ctx context.Context, svc *rbac.Service) error {
			roles, err := svc.GetAllRoles(ctx)
			if err != nil {
				return err
			}

			if *asJSON {
				enc := json.NewEncoder(app.Out)
				enc.SetIndent("", "  ")
				return enc.Encode(roles)
			}

			w := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tNAME\tBUILT-IN\tPERMISSIONS")
			for _, role := range roles {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", role.ID, role.RoleType, role.Name, role.IsBuiltIn, formatPermissions(role.Permissions))
			}
			return w.Flush()
		})
	}
	return cmd
}

// formatPermissions renders a set as sorted name=LEVEL pairs
func formatPermissions(perms rbac.PermissionSet) string {
	pairs := make([]string, 0, len(perms))
	for name, level := range perms {
		pairs = append(pairs, name+"="+string(level))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

// resolveRole finds a role by type, or else by id or name
func resolveRole(ctx context.Context, svc *rbac.Service, ref, roleType string) (*rbac.RoleDefinition, error) {
	if roleType != "" {
		return svc.Roles.GetRoleByType(ctx, rbac.RoleType(strings.ToUpper(roleType)))
	}
	if ref == "" {
		return nil, fmt.Errorf("-role or -role-type is required")
	}

	role, err := svc.Roles.GetRoleByID(ctx, ref)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, rbac.ErrNotFound) {
		return nil, err
	}
	return svc.Roles.GetRoleByName(ctx, ref)
}
