package navigation

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/parishdesk/parishdesk/internal/gate"
)

// Flag is one feature toggle.
type Flag struct {
	Enabled bool `yaml:"enabled"`
}

// Flags maps feature keys to toggles. Keys missing from the table are off.
type Flags map[string]Flag

// Enabled reports whether key is switched on.
func (f Flags) Enabled(key string) bool {
	flag, ok := f[key]
	return ok && flag.Enabled
}

type flagsFile struct {
	Features Flags `yaml:"features"`
}

// DefaultFlags enables every feature the catalog references.
func DefaultFlags() Flags {
	return Flags{
		FeatureChurches:      {Enabled: true},
		FeatureAppointments:  {Enabled: true},
		FeatureDonations:     {Enabled: true},
		FeatureAnnouncements: {Enabled: true},
	}
}

// LoadFlags reads a YAML flag table of the form
//
//	features:
//	  donations: {enabled: false}
//
// An empty path yields DefaultFlags.
func LoadFlags(path string) (Flags, error) {
	if path == "" {
		return DefaultFlags(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("navigation: read flags: %w", err)
	}
	return ParseFlags(data)
}

// ParseFlags decodes a YAML flag table.
func ParseFlags(data []byte) (Flags, error) {
	var file flagsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("navigation: parse flags: %w", err)
	}
	if file.Features == nil {
		return nil, errors.New("navigation: flags file has no features table")
	}
	return file.Features, nil
}

// RoleLabel renders a role for display, e.g. "super_admin" → "Super Admin".
func RoleLabel(role gate.Role) string {
	if role == "" {
		return ""
	}
	// Casers carry state and are not shared between goroutines.
	return cases.Title(language.English).String(strings.ReplaceAll(string(role), "_", " "))
}
