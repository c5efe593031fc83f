package rbac

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// RoleFile is the YAML document listing custom roles to create at startup:
//
//	roles:
//	  - name: Campaign Analyst
//	    role_type: CUSTOMER_MANAGER
//	    permissions:
//	      analyticsAccess: ADMIN
//	      marketingDashboard: READ
type RoleFile struct {
	Roles []RoleDefinition `yaml:"roles"`
}

// ParseRoleFile decodes and validates a role file. Unknown fields are rejected.
func ParseRoleFile(r io.Reader) (*RoleFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file RoleFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &file, nil
		}
		return nil, Validationf("invalid role file: %v", err)
	}

	seen := make(map[string]bool)
	for i := range file.Roles {
		role := &file.Roles[i]
		if err := role.Validate(); err != nil {
			return nil, fmt.Errorf("role %d: %w", i, err)
		}
		if seen[role.Name] {
			return nil, Validationf("role %q is listed twice", role.Name)
		}
		seen[role.Name] = true
	}
	return &file, nil
}

// LoadRoleFile reads and parses the role file at path
func LoadRoleFile(path string) (*RoleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role file: %w", err)
	}
	return ParseRoleFile(bytes.NewReader(data))
}

// RoleFileResult reports which roles ApplyRoleFile created, by name
type RoleFileResult struct {
	Created []string
	Skipped []string
}

// ApplyRoleFile creates every role of file that has no active role of the
// same name yet. Existing roles are never modified, so applying the same
// file twice changes nothing.
func (r *RoleRegistry) ApplyRoleFile(ctx context.Context, file *RoleFile) (*RoleFileResult, error) {
	result := &RoleFileResult{}

	for _, def := range file.Roles {
		_, err := r.CreateCustomRole(ctx, def)
		switch {
		case err == nil:
			result.Created = append(result.Created, def.Name)
		case errors.Is(err, ErrConflict):
			result.Skipped = append(result.Skipped, def.Name)
		default:
			return result, fmt.Errorf("failed to create role %q: %w", def.Name, err)
		}
	}

	r.logger.WithFields(map[string]interface{}{
		"created": len(result.Created),
		"skipped": len(result.Skipped),
	}).Info("Role file applied")
	return result, nil
}
