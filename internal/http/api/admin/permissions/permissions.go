package permissions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cloudbsd/admin-panel/internal/auth"
	"github.com/cloudbsd/admin-panel/internal/lifecycle"
	"github.com/cloudbsd/admin-panel/internal/models"
)

// Definition describes a grantable resource permission.
type Definition struct {
	Key      string `json:"key"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Label    string `json:"label"`
	Module   string `json:"module"`
}

// Key builds a permission key such as "vms:write".
func Key(resource, action string) string {
	return strings.TrimSpace(resource) + ":" + strings.ToLower(strings.TrimSpace(action))
}

// NormalizePermissions trims, de-duplicates, and sorts permission keys.
func NormalizePermissions(perms []string) []string {
	if len(perms) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, perm := range perms {
		trimmed := strings.TrimSpace(perm)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	sort.Strings(normalized)
	return normalized
}

// ValidatePermissions validates that all permissions exist in the definition set.
func ValidatePermissions(perms []string) error {
	for _, perm := range perms {
		trimmed := strings.TrimSpace(perm)
		if trimmed == "" {
			continue
		}
		if _, ok := definitionMap[trimmed]; !ok {
			return fmt.Errorf("invalid permission: %s", trimmed)
		}
	}
	return nil
}

// ToGrants converts permission keys into grants.
func ToGrants(perms []string) ([]auth.Grant, error) {
	perms = NormalizePermissions(perms)
	if errValidate := ValidatePermissions(perms); errValidate != nil {
		return nil, errValidate
	}
	grants := make([]auth.Grant, 0, len(perms))
	for _, perm := range perms {
		def := definitionMap[perm]
		grants = append(grants, auth.Grant{Resource: def.Resource, Action: def.Action})
	}
	return grants, nil
}

// FromGrants renders grants as permission keys.
func FromGrants(grants []auth.Grant) []string {
	keys := make([]string, 0, len(grants))
	for _, grant := range grants {
		keys = append(keys, Key(grant.Resource, grant.Action))
	}
	return NormalizePermissions(keys)
}

// Definitions returns every grantable permission.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

func newDefinition(kind lifecycle.Kind, action, label, module string) Definition {
	return Definition{
		Key:      Key(kind.String(), action),
		Resource: kind.String(),
		Action:   action,
		Label:    label,
		Module:   module,
	}
}

var definitions = buildDefinitions()

var definitionMap = func() map[string]Definition {
	m := make(map[string]Definition, len(definitions))
	for _, def := range definitions {
		m[def.Key] = def
	}
	return m
}()

func buildDefinitions() []Definition {
	modules := map[lifecycle.Kind]string{
		lifecycle.KindVM:        "Virtual Machines",
		lifecycle.KindContainer: "Containers",
		lifecycle.KindJail:      "Jails",
	}
	actions := []struct {
		action string
		label  string
	}{
		{models.GrantRead, "View"},
		{models.GrantWrite, "Manage"},
		{models.GrantAdmin, "Administer"},
	}
	defs := make([]Definition, 0, len(lifecycle.Kinds)*len(actions))
	for _, kind := range lifecycle.Kinds {
		for _, a := range actions {
			defs = append(defs, newDefinition(kind, a.action, a.label+" "+modules[kind], modules[kind]))
		}
	}
	return defs
}
