package selector

import (
	"maps"
	"slices"
	"strings"
)

// RequiredDefaults are the keys every install must carry, with the value
// written when one is missing or empty.
var RequiredDefaults = map[string]string{
	KeyEnabled:  "true",
	KeyMode:     string(ModeAuto),
	KeyPrimary:  DefaultPrimary,
	KeyFallback: DefaultFallback,
	KeyPort:     DefaultPort,
}

// FillDefaults returns the pairs that must be written so every required key
// is present and non-empty. Present values are never touched; an empty
// result means nothing is missing.
func FillDefaults(values map[string]string) map[string]string {
	fill := map[string]string{}
	for k, def := range RequiredDefaults {
		if strings.TrimSpace(values[k]) == "" {
			fill[k] = def
		}
	}
	return fill
}

// RewriteLegacy returns replacements for relay address keys whose stored
// value exactly equals a superseded literal in table.
func RewriteLegacy(values map[string]string, table map[string]string) map[string]string {
	out := map[string]string{}
	for _, k := range []string{KeyPrimary, KeyFallback} {
		if to, ok := table[strings.TrimSpace(values[k])]; ok && to != values[k] {
			out[k] = to
		}
	}
	return out
}

// Store is the read/write side of the configuration store.
type Store interface {
	Snapshot() map[string]string
	SetMany(values map[string]string) error
}

// EnsureDefaults fills missing required keys and persists them. It reports
// the keys it wrote, sorted.
func EnsureDefaults(st Store) ([]string, error) {
	return apply(st, FillDefaults(st.Snapshot()))
}

// MigrateLegacy rewrites superseded relay addresses and persists them.
func MigrateLegacy(st Store, table map[string]string) ([]string, error) {
	return apply(st, RewriteLegacy(st.Snapshot(), table))
}

func apply(st Store, changes map[string]string) ([]string, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	if err := st.SetMany(changes); err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(changes)), nil
}
