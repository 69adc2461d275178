package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FailurePolicy() != scrape.PolicyAbort {
		t.Fatalf("expected abort policy by default, got %s", cfg.Scrape.Policy)
	}
	if cfg.Scrape.Delay != 100*time.Millisecond {
		t.Fatalf("expected 100ms delay, got %v", cfg.Scrape.Delay)
	}
	if cfg.Browser.ExpandTimeout != 2*time.Second || cfg.Browser.ExpandPollInterval != 500*time.Millisecond {
		t.Fatalf("unexpected expansion defaults: %+v", cfg.Browser)
	}
	if cfg.Store.Driver != DriverSQLite || cfg.Spool.Backend != SpoolNone {
		t.Fatalf("unexpected store/spool defaults: %+v %+v", cfg.Store, cfg.Spool)
	}
	if cfg.Scrape.TargetColumn != "source_url" || cfg.Scrape.ItemsTable != "items" {
		t.Fatalf("unexpected table defaults: %+v", cfg.Scrape)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", `
scrape:
  targets: ["https://bars.example/a", "https://bars.example/b"]
  policy: continue
  delay: 2s
  items_table: beers
browser:
  user_agent: real-agent
  nav_timeout: 30s
  expand_timeout: 3s
store:
  driver: postgres
  dsn: postgres://localhost/menu
  max_conns: 8
spool:
  backend: gcs
  bucket: failed-pages
logging:
  development: false
metrics:
  addr: ":9091"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FailurePolicy() != scrape.PolicyContinue || cfg.Scrape.Delay != 2*time.Second {
		t.Fatalf("expected scrape overrides to apply: %+v", cfg.Scrape)
	}
	if cfg.Scrape.ItemsTable != "beers" || cfg.Scrape.VenuesTable != "venues" {
		t.Fatalf("expected table override with default fallback: %+v", cfg.Scrape)
	}
	if cfg.Browser.NavTimeout != 30*time.Second || cfg.Browser.UserAgent != "real-agent" {
		t.Fatalf("expected browser overrides: %+v", cfg.Browser)
	}
	if cfg.Store.Driver != DriverPostgres || cfg.Store.MaxConns != 8 {
		t.Fatalf("expected store overrides: %+v", cfg.Store)
	}
	if cfg.Spool.Bucket != "failed-pages" || cfg.Logging.Development || cfg.Metrics.Addr != ":9091" {
		t.Fatalf("expected spool/logging/metrics overrides: %+v", cfg)
	}
	targets, err := cfg.Targets()
	if err != nil || len(targets) != 2 {
		t.Fatalf("expected two targets, got %v (%v)", targets, err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MENU_SCRAPE_POLICY", "continue")
	t.Setenv("MENU_STORE_DSN", "/tmp/other.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FailurePolicy() != scrape.PolicyContinue || cfg.Store.DSN != "/tmp/other.db" {
		t.Fatalf("expected env overrides: %+v", cfg)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", "scrape:\n  policy: retry\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "scrape.policy") {
		t.Fatalf("expected policy error, got %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestTargetsMergesFile(t *testing.T) {
	t.Parallel()

	file := writeFile(t, "targets.txt", `
# venues in Brooklyn
https://bars.example/b

  https://bars.example/c
`)
	cfg := Config{Scrape: ScrapeConfig{Targets: []string{" https://bars.example/a ", ""}, TargetsFile: file}}
	got, err := cfg.Targets()
	if err != nil {
		t.Fatalf("Targets() error = %v", err)
	}
	want := []string{"https://bars.example/a", "https://bars.example/b", "https://bars.example/c"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, got)
	}

	cfg.Scrape.TargetsFile = filepath.Join(t.TempDir(), "nope.txt")
	if _, err := cfg.Targets(); err == nil {
		t.Fatal("expected error for missing targets file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative delay", func(c *Config) { c.Scrape.Delay = -time.Second }, "scrape.delay"},
		{"negative host rps", func(c *Config) { c.Scrape.HostRPS = -1 }, "scrape.host_rps"},
		{"bad table", func(c *Config) { c.Scrape.ItemsTable = "items;drop" }, "scrape.items_table"},
		{"zero expand timeout", func(c *Config) { c.Browser.ExpandTimeout = 0 }, "browser timeouts"},
		{"zero http timeout", func(c *Config) { c.Browser.HTTPTimeout = 0 }, "browser.http_timeout"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"missing dsn", func(c *Config) { c.Store.DSN = " " }, "store.dsn"},
		{"local spool without dir", func(c *Config) { c.Spool.Backend = SpoolLocal; c.Spool.Dir = "" }, "spool.dir"},
		{"gcs spool without bucket", func(c *Config) { c.Spool.Backend = SpoolGCS }, "spool.bucket"},
		{"unknown spool", func(c *Config) { c.Spool.Backend = "s3" }, "spool.backend"},
		{"zero dedup", func(c *Config) { c.Dedup.Size = 0 }, "dedup.size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
