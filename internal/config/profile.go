package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/local/pagetrim/internal/fault"
	"github.com/local/pagetrim/internal/geometry"
	"github.com/local/pagetrim/internal/pages"
	"github.com/local/pagetrim/internal/rebuild"
)

// DefaultProfile is used when PAGETRIM_PROFILE is unset.
const DefaultProfile = "classic"

// Profile is a named set of trim margins, load-time preset and export naming.
type Profile struct {
	Name             string              `yaml:"-"`
	Trim             geometry.TrimConfig `yaml:"trim"`
	Preset           string              `yaml:"preset"`
	CropBottomOnKeep bool                `yaml:"crop_bottom_on_keep"`
	Suffix           string              `yaml:"suffix"`
}

// profilesFile is the YAML layout of PAGETRIM_PROFILES_FILE.
type profilesFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// BuiltinProfiles returns the two shipped profiles.
//
// classic trims the left and top margins and preselects pages with the wuolah preset.
// footer additionally cuts a bottom strip from every kept page and starts with no preset.
func BuiltinProfiles() map[string]Profile {
	return map[string]Profile{
		"classic": {
			Name:   "classic",
			Trim:   geometry.TrimConfig{Left: 0.126, Top: 0.125},
			Preset: "wuolah",
		},
		"footer": {
			Name:             "footer",
			Trim:             geometry.TrimConfig{Left: 0.126, Top: 0.125, Bottom: 0.06},
			CropBottomOnKeep: true,
		},
	}
}

// LoadProfiles returns the builtin profiles overlaid with those defined in path.
// An empty path returns only the builtins.
func LoadProfiles(path string) (map[string]Profile, error) {
	out := BuiltinProfiles()
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}
	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles file: %w", err)
	}
	for name, p := range f.Profiles {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return nil, fmt.Errorf("parse profiles file: profile with empty name")
		}
		p.Name = name
		out[name] = p
	}
	return out, nil
}

// ResolveProfile loads the profile named by cfg and validates it.
func (c Config) ResolveProfile() (Profile, error) {
	profiles, err := LoadProfiles(c.ProfilesFile)
	if err != nil {
		return Profile{}, err
	}
	name := strings.ToLower(strings.TrimSpace(c.Profile))
	if name == "" {
		name = DefaultProfile
	}
	p, ok := profiles[name]
	if !ok {
		return Profile{}, &fault.InvalidConfigError{
			Field:  "profile",
			Reason: fmt.Sprintf("unknown profile %q (have %s)", c.Profile, strings.Join(names(profiles), ", ")),
		}
	}
	if c.Export.Suffix != "" {
		p.Suffix = c.Export.Suffix
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks the margins and the preset name.
func (p Profile) Validate() error {
	if err := p.Trim.Validate(); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	if _, err := pages.PresetByName(p.Preset); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, &fault.InvalidConfigError{Field: "preset", Reason: err.Error()})
	}
	return nil
}

// Rule is the load-time preset; nil means every page starts as None.
func (p Profile) Rule() pages.PresetRule {
	rule, err := pages.PresetByName(p.Preset)
	if err != nil {
		return nil
	}
	return rule
}

// Options converts the profile into rebuild options.
func (p Profile) Options() rebuild.Options {
	return rebuild.Options{Trim: p.Trim, CropBottomOnKeep: p.CropBottomOnKeep}
}

// OutputSuffix falls back to the default export suffix.
func (p Profile) OutputSuffix() string {
	if p.Suffix == "" {
		return rebuild.DefaultSuffix
	}
	return p.Suffix
}

func names(m map[string]Profile) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
