package config

import (
	"testing"

	log "github.com/ntess/dnetgo/pkg/minilog"
)

func TestLevelFromStringAcceptsEveryLevel(t *testing.T) {
	cases := map[string]log.Level{
		"debug": log.DEBUG,
		"INFO":  log.INFO,
		"warn":  log.WARN,
		"error": log.ERROR,
		"fatal": log.FATAL,
	}

	for s, want := range cases {
		got, err := levelFromString(s)
		if err != nil {
			t.Fatalf("levelFromString(%q): %v", s, err)
		}
		if got != want {
			t.Fatalf("levelFromString(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestLevelFromStringRejectsUnknown(t *testing.T) {
	if _, err := levelFromString("bogus"); err == nil {
		t.Fatalf("expected an error for an unknown level")
	}
}

func TestNodeConfigParsesCommaSeparatedSeeds(t *testing.T) {
	orig := *FSeeds
	defer func() { *FSeeds = orig }()
	*FSeeds = "10.0.0.1:7772,10.0.0.2:7772"

	cfg, err := NodeConfig([]byte{0x01})
	if err != nil {
		t.Fatalf("NodeConfig: %v", err)
	}
	if len(cfg.SeedAddrs) != 2 || cfg.SeedAddrs[0] != "10.0.0.1:7772" || cfg.SeedAddrs[1] != "10.0.0.2:7772" {
		t.Fatalf("unexpected seed parse: %v", cfg.SeedAddrs)
	}
}

func TestNodeConfigOIDOverridesDefault(t *testing.T) {
	orig := *FOID
	defer func() { *FOID = orig }()
	*FOID = "aabbcc"

	cfg, err := NodeConfig([]byte{0x99})
	if err != nil {
		t.Fatalf("NodeConfig: %v", err)
	}
	if string(cfg.OID) != string([]byte{0xaa, 0xbb, 0xcc}) {
		t.Fatalf("expected -oid to override the default, got %x", cfg.OID)
	}
}
