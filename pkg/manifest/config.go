// Package manifest reads worker.toml, the description of a worker's vars,
// secrets, cron triggers and local dev host settings.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
)

// Config is the top-level manifest.
type Config struct {
	Name     string            `toml:"name"`
	Vars     map[string]string `toml:"vars"`
	Secrets  []string          `toml:"secrets"` // names; values come from the process environment
	Triggers Triggers          `toml:"triggers"`
	Dev      Dev               `toml:"dev"`
}

type Triggers struct {
	Crons []string `toml:"crons"`
}

// Dev configures the local host that emulates the runtime.
type Dev struct {
	Listen            string `toml:"listen"`
	TLSCert           string `toml:"tls_cert"`
	TLSKey            string `toml:"tls_key"`
	MaxBodyBytes      int64  `toml:"max_body_bytes"`
	RespondWithErrors bool   `toml:"respond_with_errors"`
}

const (
	DefaultListen       = ":8787"
	DefaultMaxBodyBytes = 100 << 20
)

// CronParser accepts standard five-field expressions and descriptors like @hourly.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func (c *Config) normalize() {
	c.Name = strings.TrimSpace(c.Name)
	if c.Dev.Listen == "" {
		c.Dev.Listen = DefaultListen
	}
	if c.Dev.MaxBodyBytes == 0 {
		c.Dev.MaxBodyBytes = DefaultMaxBodyBytes
	}
	for i, s := range c.Secrets {
		c.Secrets[i] = strings.TrimSpace(s)
	}
	for i, expr := range c.Triggers.Crons {
		c.Triggers.Crons[i] = strings.TrimSpace(expr)
	}
}

// Validate normalizes defaults and checks the manifest.
func (c *Config) Validate() error {
	c.normalize()
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.Dev.MaxBodyBytes < 0 {
		return fmt.Errorf("dev.max_body_bytes must be positive, got %d", c.Dev.MaxBodyBytes)
	}
	if (c.Dev.TLSCert == "") != (c.Dev.TLSKey == "") {
		return errors.New("dev.tls_cert and dev.tls_key must be set together")
	}
	seen := map[string]bool{}
	for _, s := range c.Secrets {
		if s == "" {
			return errors.New("secrets: empty name")
		}
		if _, clash := c.Vars[s]; clash {
			return fmt.Errorf("secrets: %q is also declared in vars", s)
		}
		if seen[s] {
			return fmt.Errorf("secrets: %q declared twice", s)
		}
		seen[s] = true
	}
	for i, expr := range c.Triggers.Crons {
		if _, err := CronParser.Parse(expr); err != nil {
			return fmt.Errorf("triggers.crons[%d] %q: %w", i, expr, err)
		}
	}
	return nil
}

// SecretValues resolves declared secrets from the process environment.
// Secrets that are not set are left out.
func (c *Config) SecretValues() map[string]string {
	out := make(map[string]string, len(c.Secrets))
	for _, name := range c.Secrets {
		if v, ok := os.LookupEnv(name); ok {
			out[name] = v
		}
	}
	return out
}
