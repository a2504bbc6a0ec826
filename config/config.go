/*
Package config loads deployment configuration.

PURPOSE:
  One place for everything that varies per deployment: the HTTP port, the
  database path, CORS origins, and the treasury policy knobs (which
  designated buckets are remitted 100% to the national fund, and the
  optional pastoral salary cap).

SOURCES (later wins):
  1. Built-in defaults
  2. tesoreria.yaml in ./ or /etc/tesoreria/
  3. Environment variables with the TESORERIA_ prefix
     (TESORERIA_PORT, TESORERIA_DB_PATH, ...)

POLICY KNOBS:
  remitted_buckets: The designated buckets forwarded in full. The default
  set matches the national convention; deployments may add or drop
  buckets without a code change.

  salary_cap_gs: Upper bound on the calculated pastoral salary, in whole
  Guaraníes. Zero means uncapped, in which case the monthly ledger can
  never show a surplus.

SEE ALSO:
  - cmd/server/main.go: Loads this at startup
  - treasury/buckets.go: DefaultRemittedBuckets
*/
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/ipupy/tesoreria/treasury"
)

// Config is the resolved deployment configuration.
type Config struct {
	Port        int      `mapstructure:"port"`
	DBPath      string   `mapstructure:"db_path"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	RemittedBuckets []string `mapstructure:"remitted_buckets"`
	SalaryCapGs     int64    `mapstructure:"salary_cap_gs"`
}

// Load reads the configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("tesoreria")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/tesoreria")

	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "tesoreria.db")
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("remitted_buckets", []string{})
	v.SetDefault("salary_cap_gs", 0)

	v.SetEnvPrefix("tesoreria")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Remitted converts the configured bucket names to treasury buckets,
// falling back to the default national set when none are configured.
func (c *Config) Remitted() []treasury.Bucket {
	if len(c.RemittedBuckets) == 0 {
		return treasury.DefaultRemittedBuckets()
	}
	buckets := make([]treasury.Bucket, len(c.RemittedBuckets))
	for i, name := range c.RemittedBuckets {
		buckets[i] = treasury.Bucket(name)
	}
	return buckets
}
