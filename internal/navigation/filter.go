package navigation

import "github.com/parishdesk/parishdesk/internal/gate"

// Reasons an item is rendered non-interactive.
const (
	ReasonFeatureDisabled = "feature_disabled"
	ReasonDemoMode        = "demo_mode"
)

// Item is an entry that made it into the menu.
type Item struct {
	Entry
	Disabled bool
	Reason   string
}

// Menu is the filtered navigation. Excluded names never render; disabled
// items render but reject interaction.
type Menu struct {
	Items    []Item
	Excluded []string
}

// Enabled returns the interactive items.
func (m Menu) Enabled() []Item {
	out := make([]Item, 0, len(m.Items))
	for _, item := range m.Items {
		if !item.Disabled {
			out = append(out, item)
		}
	}
	return out
}

// Find returns the item with the given name.
func (m Menu) Find(name string) (Item, bool) {
	for _, item := range m.Items {
		if item.Name == name {
			return item, true
		}
	}
	return Item{}, false
}

var knownRoles = map[gate.Role]struct{}{
	gate.RoleUser:        {},
	gate.RoleAdmin:       {},
	gate.RoleSuperAdmin:  {},
	gate.RoleChurchAdmin: {},
}

// Filter applies role visibility, feature flags and demo mode to entries.
// Roles outside the known set only see Always entries.
func Filter(entries []Entry, role gate.Role, flags Flags, demoMode bool) Menu {
	_, known := knownRoles[role]
	menu := Menu{Items: make([]Item, 0, len(entries))}
	for _, entry := range entries {
		if !visible(entry.Visibility, role, known) {
			menu.Excluded = append(menu.Excluded, entry.Name)
			continue
		}
		item := Item{Entry: entry}
		if entry.FeatureKey != "" && !flags.Enabled(entry.FeatureKey) {
			item.Disabled = true
			item.Reason = ReasonFeatureDisabled
		}
		if entry.DemoLocked && demoMode {
			item.Disabled = true
			item.Reason = ReasonDemoMode
		}
		menu.Items = append(menu.Items, item)
	}
	return menu
}

func visible(v Visibility, role gate.Role, known bool) bool {
	if v == Always {
		return true
	}
	if !known {
		return false
	}
	switch v {
	case SuperAdminOnly:
		return role.In(gate.RoleAdmin, gate.RoleSuperAdmin)
	case AdminOnly:
		return role.In(gate.RoleAdmin, gate.RoleSuperAdmin, gate.RoleChurchAdmin)
	case StaffOnly:
		return role != gate.RoleUser
	default:
		return false
	}
}

// roleOrder lists the known roles in a stable order.
var roleOrder = []gate.Role{gate.RoleUser, gate.RoleAdmin, gate.RoleSuperAdmin, gate.RoleChurchAdmin}

// Roles returns the known roles that may see entries of visibility v, or nil
// for Always.
func (v Visibility) Roles() []gate.Role {
	if v == Always {
		return nil
	}
	var out []gate.Role
	for _, role := range roleOrder {
		if visible(v, role, true) {
			out = append(out, role)
		}
	}
	return out
}
