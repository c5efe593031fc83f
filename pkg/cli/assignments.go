package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/accessplane/pkg/rbac"
)

func newAssignCommand(app *App) *Command {
	cmd, sf := newCommand(app, "assign", "Assign a role to a user in an application", true)
	user := cmd.Flags.String("user", "", "User ID (required)")
	application := cmd.Flags.String("app", "", "Application ID (required)")
	role := cmd.Flags.String("role", "", "Role ID or name")
	roleType := cmd.Flags.String("role-type", "", "Role type, resolved to its canonical role")
	workspace := cmd.Flags.String("workspace", "", "Workspace ID")
	expires := cmd.Flags.Duration("expires", 0, "Expire the assignment after this duration")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" || *application == "" {
			return fmt.Errorf("-user and -app are required")
		}
		if *expires < 0 {
			return fmt.Errorf("-expires must be positive")
		}

		return app.withService(sf, func(ctx context.Context, svc *rbac.Service) error {
			target, err := resolveRole(ctx, svc, *role, *roleType)
			if err != nil {
				return err
			}

			req := rbac.AssignRequest{
				UserID:        *user,
				RoleID:        target.ID,
				ApplicationID: *application,
				AssignedBy:    &sf.actor,
			}
			if *workspace != "" {
				req.WorkspaceID = workspace
			}
			if *expires > 0 {
				at := time.Now().Add(*expires).UTC()
				req.ExpiresAt = &at
			}

			assignment, err := svc.AssignUserRole(ctx, req)
			if err != nil {
				return err
			}

			app.Logger.WithFields(map[string]interface{}{
				"assignment_id": assignment.ID,
				"user_id":       assignment.UserID,
				"role_id":       assignment.RoleID,
			}).Debug("Assignment created")
			fmt.Fprintf(app.Out, "Assigned %s to %s in %s (assignment %s)\n", target.Name, *user, *application, assignment.ID)
			return nil
		})
	}
	return cmd
}

func newRevokeCommand(app *App) *Command {
	cmd, sf := newCommand(app, "revoke", "Revoke a user's role in an application", true)
	user := cmd.Flags.String("user", "", "User ID (required)")
	application := cmd.Flags.String("app", "", "Application ID (required)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" || *application == "" {
			return fmt.Errorf("-user and -app are required")
		}

		return app.withService(sf, func(ctx context.Context, svc *rbac.Service) error {
			if err := svc.RevokeUserRole(ctx, *user, *application); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Revoked role of %s in %s\n", *user, *application)
			return nil
		})
	}
	return cmd
}

func newUpdateCommand(app *App) *Command {
	cmd, sf := newCommand(app, "update", "Move a user to another role in an application", true)
	user := cmd.Flags.String("user", "", "User ID (required)")
	application := cmd.Flags.String("app", "", "Application ID (required)")
	role := cmd.Flags.String("role", "", "Role ID or name")
	roleType := cmd.Flags.String("role-type", "", "Role type, resolved to its canonical role")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" || *application == "" {
			return fmt.Errorf("-user and -app are required")
		}

		return app.withService(sf, func(ctx context.Context, svc *rbac.Service) error {
			target, err := resolveRole(ctx, svc, *role, *roleType)
			if err != nil {
				return err
			}

			assignment, err := svc.Assignments.Update(ctx, *user, *application, target.ID, rbac.AssignOptions{AssignedBy: &sf.actor})
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Moved %s to %s in %s (assignment %s)\n", *user, target.Name, *application, assignment.ID)
			return nil
		})
	}
	return cmd
}

func newCheckCommand(app *App) *Command {
	cmd, sf := newCommand(app, "check", "Check whether a user holds a permission", true)
	user := cmd.Flags.String("user", "", "User ID (required)")
	application := cmd.Flags.String("app", "", "Application ID (required)")
	permission := cmd.Flags.String("permission", "", "Permission name (required)")
	level := cmd.Flags.String("level", string(rbac.LevelRead), "Required access level")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" || *application == "" || *permission == "" {
			return fmt.Errorf("-user, -app and -permission are required")
		}
		required, err := rbac.ParseAccessLevel(*level)
		if err != nil {
			return err
		}

		return app.withService(sf, func(ctx context.Context, svc *rbac.Service) error {
			allowed, err := svc.CheckUserPermission(ctx, *user, *application, *permission, required)
			if err != nil {
				return err
			}

			verdict := "denied"
			if allowed {
				verdict = "allowed"
			}
			fmt.Fprintf(app.Out, "%s: %s %s on %s in %s\n", verdict, *user, required, *permission, *application)
			return nil
		})
	}
	return cmd
}
