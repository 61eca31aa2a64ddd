// Package config loads aegis settings from defaults, an optional YAML file,
// AEGIS_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vulnverified/aegis/internal/engine"
	"github.com/vulnverified/aegis/internal/logger"
	"github.com/vulnverified/aegis/internal/osint"
	"github.com/vulnverified/aegis/internal/output"
	"github.com/vulnverified/aegis/pkg/ports"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "AEGIS"

type Config struct {
	Logger     logger.Config    `mapstructure:"logger"`
	Output     OutputConfig     `mapstructure:"output"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Subdomains SubdomainsConfig `mapstructure:"subdomains"`
	OSINT      OSINTConfig      `mapstructure:"osint"`
	Deadline   time.Duration    `mapstructure:"deadline"`
}

type OutputConfig struct {
	Format      string `mapstructure:"format"`
	NoColor     bool   `mapstructure:"no_color"`
	MetricsFile string `mapstructure:"metrics_file"`
}

type ScanConfig struct {
	Ports   string        `mapstructure:"ports"`
	Timeout time.Duration `mapstructure:"timeout"`
	Workers int           `mapstructure:"workers"`
}

type SubdomainsConfig struct {
	Mode        string        `mapstructure:"mode"`
	Wordlist    string        `mapstructure:"wordlist"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
}

type OSINTConfig struct {
	ShodanAPIKey     string        `mapstructure:"shodan_api_key"`
	VirusTotalAPIKey string        `mapstructure:"virustotal_api_key"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RateLimit        float64       `mapstructure:"rate_limit"`
	Concurrency      int           `mapstructure:"concurrency"`
	ZoneTransfer     bool          `mapstructure:"zone_transfer"`
	PassiveDNS       bool          `mapstructure:"passive_dns"`
}

// SetDefaults registers every key, so environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "warn")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_paths", []string{"stderr"})

	v.SetDefault("output.format", string(output.FormatTable))
	v.SetDefault("output.no_color", false)
	v.SetDefault("output.metrics_file", "")

	v.SetDefault("scan.ports", "common")
	v.SetDefault("scan.timeout", time.Second)
	v.SetDefault("scan.workers", 50)

	v.SetDefault("subdomains.mode", string(engine.ModeReachability))
	v.SetDefault("subdomains.wordlist", "")
	v.SetDefault("subdomains.concurrency", 50)
	v.SetDefault("subdomains.timeout", 5*time.Second)
	v.SetDefault("subdomains.user_agent", "")

	v.SetDefault("osint.shodan_api_key", "")
	v.SetDefault("osint.virustotal_api_key", "")
	v.SetDefault("osint.timeout", 15*time.Second)
	v.SetDefault("osint.rate_limit", 1.0)
	v.SetDefault("osint.concurrency", 4)
	v.SetDefault("osint.zone_transfer", false)
	v.SetDefault("osint.passive_dns", false)

	v.SetDefault("deadline", time.Duration(0))
}

// Load reads configuration into a validated Config. file may be empty.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("osint.shodan_api_key", "AEGIS_OSINT_SHODAN_API_KEY", "AEGIS_SHODAN_API_KEY", "SHODAN_API_KEY")
	_ = v.BindEnv("osint.virustotal_api_key", "AEGIS_OSINT_VIRUSTOTAL_API_KEY", "AEGIS_VIRUSTOTAL_API_KEY", "VT_API_KEY")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option values. Every error matches engine.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	if _, err := engine.ParseProbeMode(c.Subdomains.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := output.ParseFormat(c.Output.Format); err != nil {
		errs = append(errs, err)
	}
	if _, err := ports.Parse(c.Scan.Ports); err != nil {
		errs = append(errs, &engine.ConfigError{Option: "ports", Value: c.Scan.Ports, Reason: err.Error()})
	}

	positive := []struct {
		option string
		ok     bool
	}{
		{"scan.timeout", c.Scan.Timeout > 0},
		{"scan.workers", c.Scan.Workers > 0},
		{"subdomains.timeout", c.Subdomains.Timeout > 0},
		{"subdomains.concurrency", c.Subdomains.Concurrency > 0},
		{"osint.timeout", c.OSINT.Timeout > 0},
		{"osint.concurrency", c.OSINT.Concurrency > 0},
		{"osint.rate_limit", c.OSINT.RateLimit >= 0},
		{"deadline", c.Deadline >= 0},
	}
	for _, p := range positive {
		if !p.ok {
			errs = append(errs, &engine.ConfigError{Option: p.option, Reason: "must be positive"})
		}
	}
	return errors.Join(errs...)
}

// Credentials returns the configured API keys by source name.
func (c *Config) Credentials() engine.Credentials {
	creds := engine.Credentials{}
	if k := strings.TrimSpace(c.OSINT.ShodanAPIKey); k != "" {
		creds[osint.SourceShodan] = k
	}
	if k := strings.TrimSpace(c.OSINT.VirusTotalAPIKey); k != "" {
		creds[osint.SourceVirusTotal] = k
	}
	return creds
}

// EngineConfig translates the loaded settings into the engine's options.
// labels are the candidate subdomain labels already read by the caller.
func (c *Config) EngineConfig(labels []string) (engine.Config, error) {
	portList, err := ports.Parse(c.Scan.Ports)
	if err != nil {
		return engine.Config{}, &engine.ConfigError{Option: "ports", Value: c.Scan.Ports, Reason: err.Error()}
	}
	mode, err := engine.ParseProbeMode(c.Subdomains.Mode)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Ports:            portList,
		PortTimeout:      c.Scan.Timeout,
		PortConcurrency:  c.Scan.Workers,
		Labels:           labels,
		ProbeMode:        mode,
		ProbeConcurrency: c.Subdomains.Concurrency,
		Credentials:      c.Credentials(),
	}, nil
}
