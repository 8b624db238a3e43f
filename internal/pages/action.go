package pages

import (
	"fmt"
	"strings"
)

// Action is the decision attached to one page.
type Action int

const (
	None Action = iota
	Remove
	Trim
)

// Next advances through the fixed cycle None -> Remove -> Trim -> None.
func (a Action) Next() Action {
	switch a {
	case None:
		return Remove
	case Remove:
		return Trim
	default:
		return None
	}
}

func (a Action) String() string {
	switch a {
	case Remove:
		return "remove"
	case Trim:
		return "trim"
	default:
		return "none"
	}
}

// Label is the overlay text shown on a page thumbnail; empty for None.
func (a Action) Label() string {
	switch a {
	case Remove:
		return "REMOVE"
	case Trim:
		return "TRIM"
	default:
		return ""
	}
}

// Valid reports whether a is one of the three defined actions.
func (a Action) Valid() bool { return a >= None && a <= Trim }

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseAction accepts the String form, case-insensitively.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return None, nil
	case "remove":
		return Remove, nil
	case "trim":
		return Trim, nil
	}
	return None, fmt.Errorf("unknown page action %q", s)
}

// PresetRule computes the initial action of a 1-based page at load time.
type PresetRule func(page int) Action

// WuolahPreset marks pages 1 and 4 for removal and trims page 2 plus every third page from 6 on.
func WuolahPreset(page int) Action {
	switch {
	case page == 1 || page == 4:
		return Remove
	case page == 2 || (page >= 6 && (page-6)%3 == 0):
		return Trim
	default:
		return None
	}
}

// PresetByName resolves a preset rule from configuration. The empty name and "none" mean no preset.
func PresetByName(name string) (PresetRule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return nil, nil
	case "wuolah":
		return WuolahPreset, nil
	}
	return nil, fmt.Errorf("unknown preset %q", name)
}
