// Package tailnet reports whether the appliance is joined to the mesh VPN.
package tailnet

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"feederconsole/app/internal/shell"
)

// Status is what the selector needs from the mesh: is the node up, and
// under which DNS name.
type Status struct {
	Active   bool   `json:"active"`
	Identity string `json:"identity,omitempty"`
}

// statusJSON is the subset of `tailscale status --json` we read.
type statusJSON struct {
	BackendState   string `json:"BackendState"`
	MagicDNSSuffix string `json:"MagicDNSSuffix"`
	Self           *struct {
		DNSName string `json:"DNSName"`
		Online  bool   `json:"Online"`
	} `json:"Self"`
	CurrentTailnet *struct {
		MagicDNSSuffix string `json:"MagicDNSSuffix"`
	} `json:"CurrentTailnet"`
}

// Probe shells out to the tailscale CLI.
type Probe struct {
	Runner  shell.Runner
	Binary  string
	Timeout time.Duration
	Log     *zap.Logger
}

// NewProbe returns a probe using the tailscale binary on PATH.
func NewProbe(runner shell.Runner, timeout time.Duration, log *zap.Logger) *Probe {
	if runner == nil {
		runner = shell.Exec{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Probe{Runner: runner, Binary: "tailscale", Timeout: timeout, Log: log}
}

// Status never fails: a missing binary, a timeout or unparsable output all
// read as inactive.
func (p *Probe) Status(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	out, err := p.Runner.Run(ctx, p.Binary, "status", "--json")
	if err != nil {
		p.Log.Debug("tailscale status unavailable", zap.Error(err))
		return Status{}
	}
	st, err := Parse(out)
	if err != nil {
		p.Log.Warn("tailscale status unparsable", zap.Error(err))
		return Status{}
	}
	return st
}

// Parse decodes `tailscale status --json` output.
func Parse(b []byte) (Status, error) {
	var raw statusJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return Status{}, err
	}

	st := Status{Active: raw.BackendState == "Running"}
	switch {
	case raw.Self != nil && raw.Self.DNSName != "":
		st.Identity = raw.Self.DNSName
	case raw.CurrentTailnet != nil && raw.CurrentTailnet.MagicDNSSuffix != "":
		st.Identity = raw.CurrentTailnet.MagicDNSSuffix
	default:
		st.Identity = raw.MagicDNSSuffix
	}
	st.Identity = strings.TrimSuffix(strings.ToLower(st.Identity), ".")
	return st, nil
}

// InNamespace reports whether identity is suffix itself or a name under it.
// An empty suffix matches nothing.
func InNamespace(identity, suffix string) bool {
	identity = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(identity)), ".")
	suffix = strings.Trim(strings.ToLower(strings.TrimSpace(suffix)), ".")
	if identity == "" || suffix == "" {
		return false
	}
	return identity == suffix || strings.HasSuffix(identity, "."+suffix)
}
