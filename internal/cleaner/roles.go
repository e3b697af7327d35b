// Package cleaner turns decoded file tables into canonical rows and applies
// a side's cleaning directives. Role resolution maps source headers to the
// schema's canonical roles; cleaning rescales amounts, trims whitespace,
// parses dates and collapses duplicate keys. Source headers never travel
// past this package except as preserved pass-through columns.
package cleaner

import (
	"strings"

	"reconciliation-task-service/internal/models"
	"reconciliation-task-service/internal/reader"
	"reconciliation-task-service/internal/schema"
	"reconciliation-task-service/pkg/errors"
)

// roleBinding records which header column a role claimed.
type roleBinding struct {
	role   string
	header string
}

// resolveRoles scans the header columns in role declaration order. For each
// role the alias list is tried in order and the first alias equal to an
// unclaimed header (after trimming) claims that column. Headers no role
// claims pass through under their own name.
func resolveRoles(side *schema.Side, headers []string) []roleBinding {
	claimed := make(map[string]bool, len(headers))
	var bindings []roleBinding

	for _, role := range side.RoleOrder {
		for _, alias := range side.FieldRoles[role] {
			alias = strings.TrimSpace(alias)
			header, ok := findHeader(headers, claimed, alias)
			if !ok {
				continue
			}
			claimed[header] = true
			bindings = append(bindings, roleBinding{role: role, header: header})
			break
		}
	}

	for _, header := range headers {
		if !claimed[header] {
			bindings = append(bindings, roleBinding{role: header, header: header})
		}
	}
	return bindings
}

func findHeader(headers []string, claimed map[string]bool, alias string) (string, bool) {
	for _, header := range headers {
		if claimed[header] {
			continue
		}
		if header == alias {
			return header, true
		}
	}
	return "", false
}

// MapRoles converts a side's tables into canonical rows. Each table resolves
// roles against its own header, so files with different layouts can feed one
// side. A table that cannot resolve the key role fails with
// key_role_unresolved; a side with no tables resolves vacuously and yields
// no rows.
func MapRoles(sideName string, side *schema.Side, keyRole string, tables []*reader.Table) ([]models.Row, error) {
	var rows []models.Row
	for _, table := range tables {
		bindings := resolveRoles(side, table.Headers)
		if !bindsRole(bindings, keyRole) {
			return nil, errors.KeyRoleError(sideName, keyRole, table.Headers).
				WithContext("file_path", table.Path)
		}
		for _, record := range table.Records {
			row := make(models.Row, len(bindings))
			for _, b := range bindings {
				row[b.role] = models.NewString(record[b.header])
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// bindsRole reports whether any binding produced the role, either through
// an alias claim or a pass-through header that already carries the role
// name.
func bindsRole(bindings []roleBinding, role string) bool {
	for _, b := range bindings {
		if b.role == role {
			return true
		}
	}
	return false
}
