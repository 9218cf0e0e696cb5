package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "funding.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8080" {
		t.Fatalf("listen address %q", cfg.ListenAddress)
	}
	if cfg.Backend != "memory" {
		t.Fatalf("backend %q", cfg.Backend)
	}
	if cfg.ChainID != 1 {
		t.Fatalf("chain id %d", cfg.ChainID)
	}
	if cfg.IssuedToken.Decimals != 18 || cfg.CollateralToken.Decimals != 18 {
		t.Fatalf("decimals %d/%d", cfg.IssuedToken.Decimals, cfg.CollateralToken.Decimals)
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh", "funding.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != "memory" {
		t.Fatalf("backend %q", cfg.Backend)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, "Backend = \"cassandra\"\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown backend") {
		t.Fatalf("expected backend rejection, got %v", err)
	}
}

func TestLoadRejectsExcessiveFee(t *testing.T) {
	path := writeConfig(t, "[Fees]\nProjectSellBps = 10000\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "ProjectSellBps") {
		t.Fatalf("expected fee rejection, got %v", err)
	}
}

func TestLoadRejectsExcessiveDecimals(t *testing.T) {
	path := writeConfig(t, "[IssuedToken]\nDecimals = 19\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "decimals") {
		t.Fatalf("expected decimals rejection, got %v", err)
	}
}

func TestLoadRejectsMalformedAddress(t *testing.T) {
	path := writeConfig(t, "EngineAddress = \"0x1234\"\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "EngineAddress") {
		t.Fatalf("expected address rejection, got %v", err)
	}
}

func TestLoadValidatesGenesisAccounts(t *testing.T) {
	path := writeConfig(t, `
[[Genesis]]
Address = "0x0000000000000000000000000000000000000001"
Token = "equity"
Amount = "100"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "Genesis[0].Token") {
		t.Fatalf("expected genesis token rejection, got %v", err)
	}

	path = writeConfig(t, `
[[Genesis]]
Address = "0x0000000000000000000000000000000000000001"
Token = "issued"
Amount = "not-a-number"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "Genesis[0]") {
		t.Fatalf("expected genesis amount rejection, got %v", err)
	}

	path = writeConfig(t, `
[[Genesis]]
Address = "0x0000000000000000000000000000000000000001"
Token = "collateral"
Amount = "1000000"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Genesis) != 1 || cfg.Genesis[0].Amount != "1000000" {
		t.Fatalf("unexpected genesis %+v", cfg.Genesis)
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x00000000000000000000000000000000000000aa")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if addr[19] != 0xaa {
		t.Fatalf("unexpected decode: %x", addr)
	}
	if _, err := ParseAddress("not-hex"); err == nil {
		t.Fatal("expected error for junk input")
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":9090"
Backend = "bolt"
ChainID = 7
EngineAddress = "0x00000000000000000000000000000000000000e0"
QueueAddress = "0x00000000000000000000000000000000000000ab"

[IssuedToken]
Address = "0x0000000000000000000000000000000000000010"
Decimals = 6

[CollateralToken]
Address = "0x0000000000000000000000000000000000000011"
Decimals = 6

[Fees]
ProjectSellBps = 100
ProjectTreasury = "0x0000000000000000000000000000000000000005"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != "bolt" || cfg.ChainID != 7 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Fees.ProjectSellBps != 100 {
		t.Fatalf("fee %d", cfg.Fees.ProjectSellBps)
	}
	if cfg.IssuedToken.Decimals != 6 {
		t.Fatalf("decimals %d", cfg.IssuedToken.Decimals)
	}
}
