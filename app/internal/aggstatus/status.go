// Package aggstatus reconciles what the feed containers leave behind into a
// small per-aggregator status lattice.
package aggstatus

import "fmt"

// Status is ordered by severity. Beast and MLAT each carry one.
type Status int

const (
	Disconnected Status = iota
	Unknown
	Warning
	Bad
	Good
	Disabled
	// Starting is reserved for the UI; the reconciler never produces it.
	Starting
	ContainerDown
)

var statusNames = [...]string{
	Disconnected:  "disconnected",
	Unknown:       "unknown",
	Warning:       "warning",
	Bad:           "bad",
	Good:          "good",
	Disabled:      "disabled",
	Starting:      "starting",
	ContainerDown: "container_down",
}

var statusSymbols = [...]string{
	Disconnected:  "✖",
	Unknown:       "?",
	Warning:       "⚠",
	Bad:           "✗",
	Good:          "✓",
	Disabled:      "○",
	Starting:      "⟳",
	ContainerDown: "▼",
}

func (s Status) valid() bool {
	return s >= Disconnected && s <= ContainerDown
}

func (s Status) String() string {
	if !s.valid() {
		return "unknown"
	}
	return statusNames[s]
}

// Symbol is the single glyph the dashboard shows for s.
func (s Status) Symbol() string {
	if !s.valid() {
		return statusSymbols[Unknown]
	}
	return statusSymbols[s]
}

// ParseStatus is the inverse of String.
func ParseStatus(v string) (Status, error) {
	for i, n := range statusNames {
		if n == v {
			return Status(i), nil
		}
	}
	return Unknown, fmt.Errorf("aggstatus: unknown status %q", v)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
