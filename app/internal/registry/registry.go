// Package registry holds the static list of upstream aggregators the
// appliance knows how to feed.
package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Identity describes one aggregator: how to find its container, which
// .env flags switch it on, and where its relay directives point.
type Identity struct {
	Name       string `yaml:"name" json:"name"`
	Container  string `yaml:"container" json:"container"`
	EnabledKey string `yaml:"enabled_key" json:"enabled_key"`
	MlatKey    string `yaml:"mlat_key" json:"mlat_key"`

	BeastHost     string   `yaml:"beast_host" json:"beast_host,omitempty"`
	BeastPort     string   `yaml:"beast_port" json:"beast_port,omitempty"`
	MlatHost      string   `yaml:"mlat_host" json:"mlat_host,omitempty"`
	MlatPort      string   `yaml:"mlat_port" json:"mlat_port,omitempty"`
	MlatLocalPort string   `yaml:"mlat_local_port" json:"mlat_local_port,omitempty"`
	RequiredKeys  []string `yaml:"required_keys" json:"required_keys,omitempty"`
	UUIDKey       string   `yaml:"uuid_key" json:"uuid_key,omitempty"`
}

// Registry is built once at startup and never mutated.
type Registry struct {
	aggregators []Identity
	byName      map[string]int

	// LegacyAddresses maps superseded relay addresses to their replacement.
	LegacyAddresses map[string]string
}

// file is the YAML layout of AGGREGATORS_FILE.
type file struct {
	Aggregators     []Identity        `yaml:"aggregators"`
	LegacyAddresses map[string]string `yaml:"legacy_addresses"`
}

// Defaults returns the built-in aggregator list.
func Defaults() []Identity {
	return []Identity{
		{
			Name: "fr24", Container: "fr24",
			BeastHost: "feed.flightradar24.com", BeastPort: "30004",
			MlatHost: "mlat.flightradar24.com", MlatPort: "31090", MlatLocalPort: "39000",
			RequiredKeys: []string{"FR24_SHARING_KEY"},
		},
		{
			Name: "adsbx", Container: "adsbx",
			BeastHost: "feed1.adsbexchange.com", BeastPort: "30004",
			MlatHost: "feed.adsbexchange.com", MlatPort: "31090", MlatLocalPort: "39001",
			RequiredKeys: []string{"ADSBX_UUID"}, UUIDKey: "ADSBX_UUID",
		},
		{
			Name: "airplaneslive", Container: "airplaneslive",
			BeastHost: "feed.airplanes.live", BeastPort: "30004",
			MlatHost: "mlat.airplanes.live", MlatPort: "31090", MlatLocalPort: "39002",
			RequiredKeys: []string{"AIRPLANESLIVE_UUID"}, UUIDKey: "AIRPLANESLIVE_UUID",
		},
		{
			Name: "radarbox", Container: "rbfeeder",
			BeastHost: "feed.radarbox.com", BeastPort: "30001",
			MlatHost: "mlat.radarbox.com", MlatPort: "31090", MlatLocalPort: "39003",
			RequiredKeys: []string{"RADARBOX_SHARING_KEY"},
		},
		{
			Name: "planefinder", Container: "pfclient",
			BeastHost: "feed.planefinder.net", BeastPort: "30054",
			RequiredKeys: []string{"PLANEFINDER_SHARECODE"},
		},
		{
			Name: "openskynetwork", Container: "opensky",
			BeastHost: "feed.opensky-network.org", BeastPort: "10004",
			RequiredKeys: []string{"OPENSKYNETWORK_USERNAME", "OPENSKYNETWORK_SERIAL"},
		},
		{Name: "adsbhub", Container: "adsbhub"},
	}
}

// New validates ids and fills in derived keys.
func New(ids []Identity, legacy map[string]string) (*Registry, error) {
	r := &Registry{byName: make(map[string]int, len(ids)), LegacyAddresses: map[string]string{}}
	for _, id := range ids {
		id.Name = strings.ToLower(strings.TrimSpace(id.Name))
		if id.Name == "" {
			return nil, errors.New("registry: aggregator with empty name")
		}
		if _, dup := r.byName[id.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate aggregator %q", id.Name)
		}
		if id.Container == "" {
			id.Container = id.Name
		}
		if id.EnabledKey == "" {
			id.EnabledKey = "AF_IS_" + strings.ToUpper(id.Name) + "_ENABLED"
		}
		if id.MlatKey == "" {
			id.MlatKey = "FEEDER_" + strings.ToUpper(id.Name) + "_MLAT"
		}
		r.byName[id.Name] = len(r.aggregators)
		r.aggregators = append(r.aggregators, id)
	}
	for from, to := range legacy {
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if from == "" || to == "" {
			return nil, fmt.Errorf("registry: empty legacy address mapping %q -> %q", from, to)
		}
		r.LegacyAddresses[from] = to
	}
	return r, nil
}

// Default returns the built-in registry.
func Default() *Registry {
	r, err := New(Defaults(), nil)
	if err != nil {
		panic(err)
	}
	return r
}

// Load reads a registry file. An empty path yields the defaults. Entries in
// the file replace defaults of the same name and append new ones.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aggregators file: %w", err)
	}
	return Parse(b)
}

// Parse decodes registry YAML merged over the defaults.
func Parse(b []byte) (*Registry, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode aggregators file: %w", err)
	}

	ids := Defaults()
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id.Name] = i
	}
	for _, id := range f.Aggregators {
		key := strings.ToLower(strings.TrimSpace(id.Name))
		if i, ok := index[key]; ok {
			ids[i] = id
			continue
		}
		index[key] = len(ids)
		ids = append(ids, id)
	}
	return New(ids, f.LegacyAddresses)
}

// All returns the aggregators in registration order.
func (r *Registry) All() []Identity {
	out := make([]Identity, len(r.aggregators))
	copy(out, r.aggregators)
	return out
}

// Get looks up an aggregator by name.
func (r *Registry) Get(name string) (Identity, bool) {
	i, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return Identity{}, false
	}
	return r.aggregators[i], true
}
