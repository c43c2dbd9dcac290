package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config holds all case distribution settings.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Policy  PolicyConfig  `yaml:"policy"`
	Engine  EngineConfig  `yaml:"engine"`
	Notify  NotifyConfig  `yaml:"notify"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig selects the persistence backend for roster, catalog and ledger.
type StoreConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite, postgres
	DSN    string `yaml:"dsn"`
	// SeedPath is an optional YAML file with the team roster and case catalog.
	SeedPath string `yaml:"seed_path"`
}

// PolicyConfig carries the distribution policy knobs.
type PolicyConfig struct {
	// TriagerFactor multiplies the weight charged to the member on triage duty.
	TriagerFactor float64 `yaml:"triager_factor"`
	// CorrelatedSurcharge is the flat weight added per extra case in a correlated bundle.
	CorrelatedSurcharge float64 `yaml:"correlated_surcharge"`
	// LeaveBufferBusinessDays blocks members this many business days before leave.
	LeaveBufferBusinessDays int    `yaml:"leave_buffer_business_days"`
	Timezone                string `yaml:"timezone"`
}

type EngineConfig struct {
	LockTimeout        string `yaml:"lock_timeout"`
	MaxConflictRetries int    `yaml:"max_conflict_retries"`
}

// NotifyConfig configures the JetStream assignment feed. Empty URL disables it.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject"`
	// Durable names the listener's consumer; SheetPath is the CSV it maintains.
	Durable   string `yaml:"durable"`
	SheetPath string `yaml:"sheet_path"`
	// Timeout bounds one publish attempt; RetryInterval paces republishing of
	// entries whose publish failed.
	Timeout       string `yaml:"timeout"`
	RetryInterval string `yaml:"retry_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "data/distribution.db",
		},
		Policy: PolicyConfig{
			TriagerFactor:           2.0,
			CorrelatedSurcharge:     0.10,
			LeaveBufferBusinessDays: 3,
			Timezone:                "America/Sao_Paulo",
		},
		Engine: EngineConfig{
			LockTimeout:        "2s",
			MaxConflictRetries: 3,
		},
		Notify: NotifyConfig{
			Stream:    "ASSIGNMENTS",
			Subject:   "distribution.assignments",
			Durable:       "sheet-export",
			SheetPath:     "data/distribution.csv",
			Timeout:       "5s",
			RetryInterval: "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML config at path. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CASEDIST_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CASEDIST_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("CASEDIST_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("CASEDIST_SEED"); v != "" {
		c.Store.SeedPath = v
	}
	if v := os.Getenv("CASEDIST_TRIAGER_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Policy.TriagerFactor = f
		}
	}
	if v := os.Getenv("CASEDIST_NATS_URL"); v != "" {
		c.Notify.NATSURL = v
	}
	if v := os.Getenv("CASEDIST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// GetLockTimeout returns the bounded wait for the assignment critical section.
func (c *Config) GetLockTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.LockTimeout)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

func (c *Config) GetNotifyTimeout() time.Duration {
	d, err := time.ParseDuration(c.Notify.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

func (c *Config) GetRetryInterval() time.Duration {
	d, err := time.ParseDuration(c.Notify.RetryInterval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// GetLocation resolves the policy timezone used to compute "today".
func (c *Config) GetLocation() *time.Location {
	loc, err := time.LoadLocation(c.Policy.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ValidDrivers lists the supported store backends.
var ValidDrivers = []string{"memory", "sqlite", "postgres"}

// Validate checks values that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	valid := false
	for _, d := range ValidDrivers {
		if c.Store.Driver == d {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid store driver: %s (valid: %v)", c.Store.Driver, ValidDrivers)
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("store dsn is required for driver %s", c.Store.Driver)
	}
	if c.Policy.TriagerFactor <= 0 {
		return fmt.Errorf("policy.triager_factor must be positive, got %v", c.Policy.TriagerFactor)
	}
	if c.Policy.CorrelatedSurcharge < 0 {
		return fmt.Errorf("policy.correlated_surcharge must not be negative, got %v", c.Policy.CorrelatedSurcharge)
	}
	if c.Policy.LeaveBufferBusinessDays < 0 {
		return fmt.Errorf("policy.leave_buffer_business_days must not be negative, got %d", c.Policy.LeaveBufferBusinessDays)
	}
	if _, err := time.LoadLocation(c.Policy.Timezone); err != nil {
		return fmt.Errorf("invalid policy.timezone %q: %w", c.Policy.Timezone, err)
	}
	if c.Engine.MaxConflictRetries < 0 {
		return fmt.Errorf("engine.max_conflict_retries must not be negative")
	}
	return nil
}
