package navigation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishdesk/parishdesk/internal/gate"
)

func names(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Name)
	}
	return out
}

func TestFilterRoleMatrix(t *testing.T) {
	tests := []struct {
		role     gate.Role
		visible  []string
		excluded []string
	}{
		{
			role:     gate.RoleUser,
			visible:  []string{"Dashboard", "Announcements", "Notifications", "Profile"},
			excluded: []string{"Churches", "Appointments", "Donations", "Users", "Settings"},
		},
		{
			role:     gate.RoleChurchAdmin,
			visible:  []string{"Dashboard", "Churches", "Appointments", "Donations", "Announcements", "Notifications", "Profile"},
			excluded: []string{"Users", "Settings"},
		},
		{
			role:     gate.RoleAdmin,
			visible:  []string{"Dashboard", "Churches", "Appointments", "Donations", "Announcements", "Notifications", "Users", "Settings", "Profile"},
			excluded: nil,
		},
		{
			role:     gate.RoleSuperAdmin,
			visible:  []string{"Dashboard", "Churches", "Appointments", "Donations", "Announcements", "Notifications", "Users", "Settings", "Profile"},
			excluded: nil,
		},
		{
			role:     "guest",
			visible:  []string{"Dashboard", "Announcements", "Notifications", "Profile"},
			excluded: []string{"Churches", "Appointments", "Donations", "Users", "Settings"},
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			menu := Filter(Catalog(), tt.role, DefaultFlags(), false)
			assert.Equal(t, tt.visible, names(menu.Items))
			assert.Equal(t, tt.excluded, menu.Excluded)
			assert.Len(t, menu.Enabled(), len(tt.visible))
		})
	}
}

func TestFilterDisabledIsDistinctFromExcluded(t *testing.T) {
	flags := DefaultFlags()
	flags[FeatureChurches] = Flag{Enabled: false}

	adminMenu := Filter(Catalog(), gate.RoleAdmin, flags, false)
	item, ok := adminMenu.Find("Churches")
	require.True(t, ok, "disabled entries are still rendered")
	assert.True(t, item.Disabled)
	assert.Equal(t, ReasonFeatureDisabled, item.Reason)
	assert.NotContains(t, adminMenu.Excluded, "Churches")

	userMenu := Filter(Catalog(), gate.RoleUser, flags, false)
	_, ok = userMenu.Find("Churches")
	assert.False(t, ok)
	assert.Contains(t, userMenu.Excluded, "Churches")
}

func TestFilterSuperAdminOnlyEntry(t *testing.T) {
	entries := []Entry{{Name: "Users", Visibility: SuperAdminOnly}}

	for _, role := range []gate.Role{gate.RoleAdmin, gate.RoleSuperAdmin} {
		menu := Filter(entries, role, Flags{}, false)
		assert.Equal(t, []string{"Users"}, names(menu.Items), role)
	}
	for _, role := range []gate.Role{gate.RoleUser, gate.RoleChurchAdmin, "guest"} {
		menu := Filter(entries, role, Flags{}, false)
		assert.Empty(t, menu.Items, role)
		assert.Equal(t, []string{"Users"}, menu.Excluded, role)
	}
}

func TestFilterDemoModeLocksDesignatedEntry(t *testing.T) {
	menu := Filter(Catalog(), gate.RoleAdmin, DefaultFlags(), true)

	donations, ok := menu.Find("Donations")
	require.True(t, ok)
	assert.True(t, donations.Disabled)
	assert.Equal(t, ReasonDemoMode, donations.Reason)

	for _, item := range menu.Items {
		if item.Name != "Donations" {
			assert.False(t, item.Disabled, item.Name)
		}
	}
}

func TestFilterMissingFlagIsDisabled(t *testing.T) {
	menu := Filter(Catalog(), gate.RoleAdmin, Flags{}, false)
	for _, item := range menu.Items {
		assert.Equal(t, item.FeatureKey != "", item.Disabled, item.Name)
	}
}

func TestFilterDoesNotMutateCatalog(t *testing.T) {
	before := Catalog()
	Filter(before, gate.RoleAdmin, Flags{}, true)
	assert.Equal(t, Catalog(), before)
}

func TestVisibilityRoles(t *testing.T) {
	assert.Nil(t, Always.Roles())
	assert.Equal(t, []gate.Role{gate.RoleAdmin, gate.RoleSuperAdmin, gate.RoleChurchAdmin}, AdminOnly.Roles())
	assert.Equal(t, []gate.Role{gate.RoleAdmin, gate.RoleSuperAdmin}, SuperAdminOnly.Roles())
	assert.Equal(t, []gate.Role{gate.RoleAdmin, gate.RoleSuperAdmin, gate.RoleChurchAdmin}, StaffOnly.Roles())
}

func TestLoadFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flags.yaml")
	require.NoError(t, os.WriteFile(path, []byte("features:\n  donations:\n    enabled: false\n  churches:\n    enabled: true\n"), 0o600))

	flags, err := LoadFlags(path)
	require.NoError(t, err)
	assert.False(t, flags.Enabled(FeatureDonations))
	assert.True(t, flags.Enabled(FeatureChurches))
	assert.False(t, flags.Enabled(FeatureAppointments))

	defaults, err := LoadFlags("")
	require.NoError(t, err)
	assert.True(t, defaults.Enabled(FeatureDonations))

	_, err = ParseFlags([]byte("other: 1\n"))
	assert.Error(t, err)

	_, err = LoadFlags(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestRoleLabel(t *testing.T) {
	assert.Equal(t, "Super Admin", RoleLabel(gate.RoleSuperAdmin))
	assert.Equal(t, "User", RoleLabel(gate.RoleUser))
	assert.Equal(t, "", RoleLabel(""))
}
