package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"yieldledger/native/accrual"
)

// Config is the on-disk configuration of a yieldd node.
type Config struct {
	DataDir     string `toml:"DataDir" yaml:"dataDir"`
	Environment string `toml:"Environment" yaml:"environment"`
	LogFile     string `toml:"LogFile" yaml:"logFile,omitempty"`
	LogLevel    string `toml:"LogLevel" yaml:"logLevel"`

	Ledger    Ledger    `toml:"Ledger" yaml:"ledger"`
	Curve     Curve     `toml:"Curve" yaml:"curve"`
	Vesting   Vesting   `toml:"Vesting" yaml:"vesting"`
	Access    Access    `toml:"Access" yaml:"access"`
	RPC       RPC       `toml:"RPC" yaml:"rpc"`
	Telemetry Telemetry `toml:"Telemetry" yaml:"telemetry"`
	Webhook   Webhook   `toml:"Webhook" yaml:"webhook,omitempty"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by the defaults, which are written back so operators can edit them.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written for new nodes.
func Default() *Config {
	return &Config{
		DataDir:     "./yield-data",
		Environment: "local",
		LogLevel:    "info",
		Ledger: Ledger{
			IDPolicy:         "sequential",
			AccrualInterval:  "1m",
			MaxSplitChildren: accrual.DefaultMaxSplitChildren,
		},
		Curve: DefaultCurve(),
		Vesting: Vesting{
			PeriodHours: 168,
		},
		RPC: RPC{
			ListenAddress:  "127.0.0.1:8547",
			EventBuffer:    256,
			ReadTimeoutSec: 10,
		},
		Telemetry: Telemetry{
			Endpoint:    "localhost:4318",
			Insecure:    true,
			SampleRatio: 1,
		},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Save writes cfg to path in TOML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	return persist(path, cfg)
}

// Marshal renders the effective configuration as YAML for display.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Config) normalize() {
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.Environment = strings.TrimSpace(c.Environment)
	c.LogFile = strings.TrimSpace(c.LogFile)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Ledger.SaleStart = strings.TrimSpace(c.Ledger.SaleStart)
	c.Ledger.IDPolicy = strings.ToLower(strings.TrimSpace(c.Ledger.IDPolicy))
	if c.Ledger.IDPolicy == "" {
		c.Ledger.IDPolicy = "sequential"
	}
	if c.Access.Roles == nil {
		c.Access.Roles = map[string][]string{}
	}
}

// DatabasePath is the LevelDB directory under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "ledger")
}
