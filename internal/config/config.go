package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config models jobpay.yml.
type Config struct {
	Server struct {
		Addr         string        `yaml:"addr"`
		BasePath     string        `yaml:"base_path"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
	} `yaml:"server"`
	Database struct {
		Driver    string `yaml:"driver"`
		Workspace string `yaml:"workspace"`
		DSN       string `yaml:"dsn"`
		MaxConns  int32  `yaml:"max_conns"`
	} `yaml:"database"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Payments struct {
		DepositCapRatio string `yaml:"deposit_cap_ratio"`
	} `yaml:"payments"`
	Auth struct {
		ProfileHeader  string `yaml:"profile_header"`
		AdminJWTSecret string `yaml:"admin_jwt_secret"`
	} `yaml:"auth"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with jobpay config show > %s", path, path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.Database.Workspace = workspace
			return cfg, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	for name, d := range map[string]time.Duration{
		"read_timeout":  c.Server.ReadTimeout,
		"write_timeout": c.Server.WriteTimeout,
		"idle_timeout":  c.Server.IdleTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("config.server.%s must not be negative", name)
		}
	}
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("config.database.dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf("config.database.driver must be %q or %q", DriverSQLite, DriverPostgres)
	}
	if c.Database.MaxConns < 0 {
		return fmt.Errorf("config.database.max_conns must not be negative")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is invalid", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format %q is invalid", c.Log.Format)
	}
	ratio, err := decimal.NewFromString(c.Payments.DepositCapRatio)
	if err != nil {
		return fmt.Errorf("config.payments.deposit_cap_ratio: %w", err)
	}
	if ratio.IsNegative() {
		return fmt.Errorf("config.payments.deposit_cap_ratio must not be negative")
	}
	if strings.TrimSpace(c.Auth.ProfileHeader) == "" {
		return fmt.Errorf("config.auth.profile_header is required")
	}
	return nil
}

// DepositCapRatio is the share of outstanding in-progress work a client may deposit at once.
func (c *Config) DepositCapRatio() decimal.Decimal {
	ratio, err := decimal.NewFromString(c.Payments.DepositCapRatio)
	if err != nil {
		return defaultCapRatio
	}
	return ratio
}

var defaultCapRatio = decimal.RequireFromString("0.25")

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "jobpay.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// the document keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to YAML.
func (c *Config) YAML() (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:3001
  base_path: ""
  read_timeout: 15s
  write_timeout: 15s
  idle_timeout: 60s

database:
  driver: sqlite
  workspace: .
  dsn: ""
  max_conns: 10

log:
  level: info
  format: text

payments:
  # share of unpaid in-progress work a client may deposit in one operation
  deposit_cap_ratio: "0.25"

auth:
  profile_header: profile_id
  # when set, /admin routes require an HS256 bearer token with the admin role
  admin_jwt_secret: ""
`
