package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:3001" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Fatalf("read timeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Fatalf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Auth.ProfileHeader != "profile_id" {
		t.Fatalf("profile header = %q", cfg.Auth.ProfileHeader)
	}
	if !cfg.DepositCapRatio().Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("ratio = %s", cfg.DepositCapRatio())
	}
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("server:\n  addr: 0.0.0.0:9000\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Log.Level != "info" || cfg.Auth.ProfileHeader != "profile_id" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad driver":        "database:\n  driver: mysql\n",
		"postgres no dsn":   "database:\n  driver: postgres\n",
		"bad ratio":         "payments:\n  deposit_cap_ratio: lots\n",
		"negative ratio":    "payments:\n  deposit_cap_ratio: \"-0.1\"\n",
		"empty header":      "auth:\n  profile_header: \"\"\n",
		"bad level":         "log:\n  level: loud\n",
		"bad format":        "log:\n  format: xml\n",
		"relative basepath": "server:\n  base_path: api\n",
		"empty addr":        "server:\n  addr: \"\"\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
}

func TestInvalidYAML(t *testing.T) {
	_, err := FromYAML([]byte("server: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "invalid config yaml") {
		t.Fatalf("expected yaml error, got %v", err)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Database.Workspace != dir {
		t.Fatalf("workspace = %q, want %q", cfg.Database.Workspace, dir)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected Load to fail without a file")
	}

	if err := os.WriteFile(filepath.Join(dir, "jobpay.yml"), []byte("payments:\n  deposit_cap_ratio: \"0.5\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.DepositCapRatio().Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("ratio = %s", cfg.DepositCapRatio())
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Auth.AdminJWTSecret = "s3cret"
	out, err := cfg.YAML()
	if err != nil {
		t.Fatal(err)
	}
	back, err := FromYAML([]byte(out))
	if err != nil {
		t.Fatalf("reparse: %v\n%s", err, out)
	}
	if back.Auth.AdminJWTSecret != "s3cret" || back.Server.IdleTimeout != 60*time.Second {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}
