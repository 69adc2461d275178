// Package config loads and validates scraper configuration via Viper.
package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Scrape  ScrapeConfig  `mapstructure:"scrape"`
	Browser BrowserConfig `mapstructure:"browser"`
	Store   StoreConfig   `mapstructure:"store"`
	Spool   SpoolConfig   `mapstructure:"spool"`
	Dedup   DedupConfig   `mapstructure:"dedup"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ScrapeConfig governs the batch.
type ScrapeConfig struct {
	Targets      []string      `mapstructure:"targets"`
	TargetsFile  string        `mapstructure:"targets_file"`
	Policy       string        `mapstructure:"policy"`
	Delay        time.Duration `mapstructure:"delay"`
	HostRPS      float64       `mapstructure:"host_rps"`
	HostBurst    int           `mapstructure:"host_burst"`
	ItemsTable   string        `mapstructure:"items_table"`
	VenuesTable  string        `mapstructure:"venues_table"`
	TargetColumn string        `mapstructure:"target_column"`
}

// BrowserConfig configures both fetchers.
type BrowserConfig struct {
	UserAgent          string        `mapstructure:"user_agent"`
	NavTimeout         time.Duration `mapstructure:"nav_timeout"`
	ExpandTimeout      time.Duration `mapstructure:"expand_timeout"`
	ExpandPollInterval time.Duration `mapstructure:"expand_poll_interval"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
	RespectRobots      bool          `mapstructure:"respect_robots"`
	NoSandbox          bool          `mapstructure:"no_sandbox"`
}

// StoreConfig selects the relational store.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// SpoolConfig selects where failed payloads go.
type SpoolConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// DedupConfig bounds the extraction notice cache.
type DedupConfig struct {
	Size int `mapstructure:"size"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig controls the optional metrics listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Spool backends.
const (
	SpoolNone  = "none"
	SpoolLocal = "local"
	SpoolGCS   = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MENU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scrape.targets", []string{})
	v.SetDefault("scrape.targets_file", "")
	v.SetDefault("scrape.policy", string(scrape.PolicyAbort))
	v.SetDefault("scrape.delay", 100*time.Millisecond)
	v.SetDefault("scrape.host_rps", 0)
	v.SetDefault("scrape.host_burst", 1)
	v.SetDefault("scrape.items_table", "items")
	v.SetDefault("scrape.venues_table", "venues")
	v.SetDefault("scrape.target_column", "source_url")
	v.SetDefault("browser.user_agent", "menu-scraper/0.1")
	v.SetDefault("browser.nav_timeout", 45*time.Second)
	v.SetDefault("browser.expand_timeout", 2*time.Second)
	v.SetDefault("browser.expand_poll_interval", 500*time.Millisecond)
	v.SetDefault("browser.http_timeout", 5*time.Second)
	v.SetDefault("browser.respect_robots", false)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.dsn", "menu.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.max_conn_lifetime", time.Hour)
	v.SetDefault("spool.backend", SpoolNone)
	v.SetDefault("spool.dir", "spool")
	v.SetDefault("spool.bucket", "")
	v.SetDefault("spool.prefix", "failed")
	v.SetDefault("dedup.size", 4096)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := scrape.ParsePolicy(c.Scrape.Policy); err != nil {
		return fmt.Errorf("scrape.policy: %w", err)
	}
	if c.Scrape.Delay < 0 {
		return fmt.Errorf("scrape.delay must be >= 0")
	}
	if c.Scrape.HostRPS < 0 || c.Scrape.HostBurst < 0 {
		return fmt.Errorf("scrape.host_rps and scrape.host_burst must be >= 0")
	}
	for key, name := range map[string]string{
		"scrape.items_table":   c.Scrape.ItemsTable,
		"scrape.venues_table":  c.Scrape.VenuesTable,
		"scrape.target_column": c.Scrape.TargetColumn,
	} {
		if !validTableName.MatchString(name) {
			return fmt.Errorf("%s must be a plain SQL identifier, got %q", key, name)
		}
	}
	if c.Browser.NavTimeout <= 0 || c.Browser.ExpandTimeout <= 0 || c.Browser.ExpandPollInterval <= 0 {
		return fmt.Errorf("browser timeouts must be > 0")
	}
	if c.Browser.HTTPTimeout <= 0 {
		return fmt.Errorf("browser.http_timeout must be > 0")
	}
	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Store.Driver)
	}
	if strings.TrimSpace(c.Store.DSN) == "" {
		return fmt.Errorf("store.dsn is required")
	}
	switch c.Spool.Backend {
	case SpoolNone:
	case SpoolLocal:
		if strings.TrimSpace(c.Spool.Dir) == "" {
			return fmt.Errorf("spool.dir is required for the local spool")
		}
	case SpoolGCS:
		if strings.TrimSpace(c.Spool.Bucket) == "" {
			return fmt.Errorf("spool.bucket is required for the gcs spool")
		}
	default:
		return fmt.Errorf("spool.backend must be one of none, local, gcs; got %q", c.Spool.Backend)
	}
	if c.Dedup.Size <= 0 {
		return fmt.Errorf("dedup.size must be > 0")
	}
	return nil
}

// FailurePolicy returns the parsed scrape.policy.
func (c Config) FailurePolicy() scrape.Policy {
	p, err := scrape.ParsePolicy(c.Scrape.Policy)
	if err != nil {
		return scrape.PolicyAbort
	}
	return p
}

// Targets returns the configured targets followed by those in the targets
// file, in order. Blank lines and lines starting with '#' are skipped.
func (c Config) Targets() ([]string, error) {
	var out []string
	for _, t := range c.Scrape.Targets {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if c.Scrape.TargetsFile == "" {
		return out, nil
	}
	fromFile, err := ReadTargetsFile(c.Scrape.TargetsFile)
	if err != nil {
		return nil, err
	}
	return append(out, fromFile...), nil
}

// ReadTargetsFile reads one target per line.
func ReadTargetsFile(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 -- operator supplied path.
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	return out, nil
}
