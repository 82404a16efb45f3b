// Package navigation filters the console menu for a resolved role.
package navigation

// Visibility decides which roles may see an entry at all.
type Visibility int

const (
	Always Visibility = iota
	// AdminOnly entries are shown to admin, super_admin and church_admin.
	AdminOnly
	// SuperAdminOnly entries are shown to admin and super_admin.
	SuperAdminOnly
	// StaffOnly entries are hidden from plain users.
	StaffOnly
)

func (v Visibility) String() string {
	switch v {
	case AdminOnly:
		return "admin_only"
	case SuperAdminOnly:
		return "super_admin_only"
	case StaffOnly:
		return "staff_only"
	default:
		return "always"
	}
}

// Entry is a static menu entry.
type Entry struct {
	Name       string
	Route      string
	Icon       string
	Capability string
	FeatureKey string
	Visibility Visibility
	// DemoLocked forces the entry non-interactive while demo mode is on.
	DemoLocked bool
}

// Feature keys referenced by the catalog.
const (
	FeatureChurches      = "churches"
	FeatureAppointments  = "appointments"
	FeatureDonations     = "donations"
	FeatureAnnouncements = "announcements"
)

var catalog = []Entry{
	{Name: "Dashboard", Route: "/", Icon: "home", Visibility: Always},
	{Name: "Churches", Route: "/churches", Icon: "church", Capability: "churches.manage", FeatureKey: FeatureChurches, Visibility: AdminOnly},
	{Name: "Appointments", Route: "/appointments", Icon: "calendar", Capability: "appointments.view", FeatureKey: FeatureAppointments, Visibility: StaffOnly},
	{Name: "Donations", Route: "/donations", Icon: "heart", Capability: "donations.view", FeatureKey: FeatureDonations, Visibility: StaffOnly, DemoLocked: true},
	{Name: "Announcements", Route: "/announcements", Icon: "megaphone", FeatureKey: FeatureAnnouncements, Visibility: Always},
	{Name: "Notifications", Route: "/notifications", Icon: "bell", Visibility: Always},
	{Name: "Users", Route: "/users", Icon: "users", Capability: "users.manage", Visibility: SuperAdminOnly},
	{Name: "Settings", Route: "/settings", Icon: "cog", Capability: "settings.manage", Visibility: SuperAdminOnly},
	{Name: "Profile", Route: "/auth/password", Icon: "user", Visibility: Always},
}

// Catalog returns a copy of the console menu catalog.
func Catalog() []Entry {
	out := make([]Entry, len(catalog))
	copy(out, catalog)
	return out
}
