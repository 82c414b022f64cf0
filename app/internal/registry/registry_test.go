package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	r := Default()
	all := r.All()
	if len(all) != 7 {
		t.Fatalf("expected 7 built-in aggregators, got %d", len(all))
	}
	rb, ok := r.Get("radarbox")
	if !ok {
		t.Fatal("radarbox should be registered")
	}
	if rb.Container != "rbfeeder" {
		t.Errorf("radarbox container = %q, want rbfeeder", rb.Container)
	}
	if rb.EnabledKey != "AF_IS_RADARBOX_ENABLED" {
		t.Errorf("EnabledKey = %q", rb.EnabledKey)
	}
	if rb.MlatKey != "FEEDER_RADARBOX_MLAT" {
		t.Errorf("MlatKey = %q", rb.MlatKey)
	}
	hub, _ := r.Get("adsbhub")
	if hub.Container != "adsbhub" {
		t.Errorf("adsbhub container = %q, want name fallback", hub.Container)
	}
}

func TestGet_CaseInsensitive(t *testing.T) {
	if _, ok := Default().Get("FR24"); !ok {
		t.Error("Get should ignore case")
	}
	if _, ok := Default().Get("nope"); ok {
		t.Error("unknown aggregator should not be found")
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	r := Default()
	all := r.All()
	all[0].Name = "tampered"
	if r.All()[0].Name == "tampered" {
		t.Error("All should return a copy")
	}
}

func TestNew_Rejects(t *testing.T) {
	if _, err := New([]Identity{{Name: ""}}, nil); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := New([]Identity{{Name: "a"}, {Name: "A"}}, nil); err == nil {
		t.Error("expected error for duplicate name")
	}
	if _, err := New(nil, map[string]string{"1.2.3.4": ""}); err == nil {
		t.Error("expected error for empty legacy target")
	}
}

func TestParse_MergesOverDefaults(t *testing.T) {
	yml := `
aggregators:
  - name: fr24
    container: fr24feed
    beast_host: feed2.flightradar24.com
    beast_port: "30004"
  - name: adsbfi
    beast_host: feed.adsb.fi
    beast_port: "30004"
    uuid_key: ADSBFI_UUID
legacy_addresses:
  "104.225.219.254": relay.example.net
`
	r, err := Parse([]byte(yml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(r.All()) != 8 {
		t.Errorf("expected 8 aggregators, got %d", len(r.All()))
	}
	fr24, _ := r.Get("fr24")
	if fr24.Container != "fr24feed" || fr24.BeastHost != "feed2.flightradar24.com" {
		t.Errorf("fr24 override not applied: %+v", fr24)
	}
	fi, ok := r.Get("adsbfi")
	if !ok {
		t.Fatal("adsbfi should be appended")
	}
	if fi.Container != "adsbfi" || fi.EnabledKey != "AF_IS_ADSBFI_ENABLED" {
		t.Errorf("derived fields not filled: %+v", fi)
	}
	if r.LegacyAddresses["104.225.219.254"] != "relay.example.net" {
		t.Errorf("legacy addresses = %v", r.LegacyAddresses)
	}
}

func TestParse_UnknownField(t *testing.T) {
	if _, err := Parse([]byte("aggregators:\n  - name: x\n    colour: red\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestParse_Empty(t *testing.T) {
	r, err := Parse(nil)
	if err != nil {
		t.Fatalf("empty file should yield defaults: %v", err)
	}
	if len(r.All()) != len(Defaults()) {
		t.Errorf("got %d aggregators", len(r.All()))
	}
}

func TestLoad(t *testing.T) {
	r, err := Load("")
	if err != nil || len(r.All()) != 7 {
		t.Fatalf("Load(\"\") = %v, %v", r, err)
	}

	path := filepath.Join(t.TempDir(), "aggregators.yaml")
	if err := os.WriteFile(path, []byte("legacy_addresses:\n  old.example: new.example\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err = Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if r.LegacyAddresses["old.example"] != "new.example" {
		t.Errorf("legacy addresses = %v", r.LegacyAddresses)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
