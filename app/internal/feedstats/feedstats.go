// Package feedstats reads the artifacts the feed containers leave in the
// ultrafeeder run directory: readsb's prometheus stats and mlat-client's
// per-server sync JSON.
package feedstats

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
)

// ConnectorMetric is readsb's per-connector gauge: seconds the outbound
// connection has been established, 0 when down.
const ConnectorMetric = "readsb_net_connector_status"

// Kind classifies an artifact read.
type Kind int

const (
	// Missing means the artifact does not exist.
	Missing Kind = iota
	// OK means the reading's values are valid.
	OK
	// NoMatch means the artifact parsed but held nothing for us.
	NoMatch
	// Malformed means the artifact could not be read or parsed.
	Malformed
)

func (k Kind) String() string {
	switch k {
	case Missing:
		return "missing"
	case OK:
		return "ok"
	case NoMatch:
		return "no-match"
	default:
		return "malformed"
	}
}

// BeastReading is one connector's uptime counter.
type BeastReading struct {
	Kind    Kind
	Seconds float64
	Err     error
}

// StatsPath is where readsb writes stats.prom under the run directory.
func StatsPath(runDir string) string {
	return filepath.Join(runDir, "readsb", "stats.prom")
}

// ReadConnectorStatus returns the first ConnectorMetric series in path. When
// host is set only series labelled host=<host> are considered.
func ReadConnectorStatus(path, host string) BeastReading {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return BeastReading{Kind: Missing}
	}
	if err != nil {
		return BeastReading{Kind: Malformed, Err: err}
	}
	defer f.Close()

	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(f)
	if err != nil {
		return BeastReading{Kind: Malformed, Err: fmt.Errorf("parse %s: %w", path, err)}
	}

	fam, ok := families[ConnectorMetric]
	if !ok {
		return BeastReading{Kind: NoMatch}
	}
	for _, m := range fam.GetMetric() {
		if host != "" && labelValue(m, "host") != host {
			continue
		}
		return BeastReading{Kind: OK, Seconds: sampleValue(m)}
	}
	return BeastReading{Kind: NoMatch}
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.Gauge != nil:
		return m.GetGauge().GetValue()
	case m.Counter != nil:
		return m.GetCounter().GetValue()
	default:
		return m.GetUntyped().GetValue()
	}
}

// SyncReading is mlat-client's view of its sync with one server.
type SyncReading struct {
	Kind        Kind
	GoodPercent float64
	BadPercent  float64
	Now         time.Time
	File        string
	Err         error
}

type syncJSON struct {
	GoodSync float64 `json:"good_sync_percentage_last_hour"`
	BadSync  float64 `json:"bad_sync_percentage_last_hour"`
	Now      float64 `json:"now"`
}

// SyncDir is where mlat-client writes its per-server JSON.
func SyncDir(runDir string) string {
	return filepath.Join(runDir, "mlat-client")
}

// SyncFileName is mlat-client's per-server file name.
func SyncFileName(host, port string) string {
	return host + ":" + port + ".json"
}

// ReadSync reads name from dir. An empty name selects the lexically first
// *.json file.
func ReadSync(dir, name string) SyncReading {
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return SyncReading{Kind: Missing}
		}
		return SyncReading{Kind: Malformed, Err: err}
	}

	path := filepath.Join(dir, name)
	if name == "" {
		matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil {
			return SyncReading{Kind: Malformed, Err: err}
		}
		if len(matches) == 0 {
			return SyncReading{Kind: Missing}
		}
		sort.Strings(matches)
		path = matches[0]
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return SyncReading{Kind: Missing, File: path}
	}
	if err != nil {
		return SyncReading{Kind: Malformed, File: path, Err: err}
	}

	var raw syncJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return SyncReading{Kind: Malformed, File: path, Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	sec := int64(raw.Now)
	nsec := int64((raw.Now - float64(sec)) * 1e9)
	return SyncReading{
		Kind:        OK,
		GoodPercent: raw.GoodSync,
		BadPercent:  raw.BadSync,
		Now:         time.Unix(sec, nsec),
		File:        path,
	}
}
