// Package config resolves runtime configuration from CLI flags and an
// optional YAML file, and exposes the fixed parameter set CONFIG GET can
// report.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ReplicaOf identifies the primary this node replicates from.
type ReplicaOf struct {
	Host string
	Port int
}

// LoggingConfig controls the ambient structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// AdminConfig controls the loopback/CIDR-gated HTTP observability surface.
type AdminConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Listen       string   `yaml:"listen"`
	AllowOrigins []string `yaml:"allow_origins"` // IP or CIDR, deny-by-default

	// ParsedCIDRs is filled in by validate(); it never comes from YAML.
	ParsedCIDRs []*net.IPNet `yaml:"-"`
}

// ThrottleConfig controls the propagation rate limiter applied to
// replica writes.
type ThrottleConfig struct {
	BytesPerSec string `yaml:"bytes_per_sec"` // "0" or empty disables throttling
	BytesPerSecRaw int64 `yaml:"-"`
}

// ExpiryConfig controls the active expiry sweeper's cron schedule.
type ExpiryConfig struct {
	Schedule string `yaml:"schedule"` // cron spec, default "@every 1s"
}

// StatsConfig controls the periodic stats-reporter log line.
type StatsConfig struct {
	Interval time.Duration `yaml:"interval"` // default 5m
}

// Config is the fully resolved runtime configuration.
type Config struct {
	Port       int
	ReplicaOf  *ReplicaOf
	Dir        string
	DBFilename string

	Logging  LoggingConfig
	Admin    AdminConfig
	Throttle ThrottleConfig
	Expiry   ExpiryConfig
	Stats    StatsConfig
}

// IsReplica reports whether this node starts as a replica.
func (c *Config) IsReplica() bool { return c.ReplicaOf != nil }

// fileConfig is the shape of the optional --config YAML file. Any field
// here may also be set by a CLI flag; the CLI always wins on overlap.
type fileConfig struct {
	Port       int    `yaml:"port"`
	ReplicaOf  string `yaml:"replicaof"`
	Dir        string `yaml:"dir"`
	DBFilename string `yaml:"dbfilename"`

	Logging  LoggingConfig  `yaml:"logging"`
	Admin    AdminConfig    `yaml:"admin"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Expiry   ExpiryConfig   `yaml:"expiry"`
	Stats    StatsConfig    `yaml:"stats"`
}

// CLIOptions carries the flags the caller actually passed on the command
// line; a nil pointer means "not set, defer to file or default".
type CLIOptions struct {
	Port       *int
	ReplicaOf  *string
	Dir        *string
	DBFilename *string
	ConfigPath string
}

// Load resolves a Config from CLI options and, if ConfigPath is set, a
// YAML file. CLI values always take precedence over the file; the file
// always takes precedence over built-in defaults.
func Load(opts CLIOptions) (*Config, error) {
	var fc fileConfig
	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg := &Config{
		Port:       6379,
		Dir:        fc.Dir,
		DBFilename: fc.DBFilename,
		Logging:    fc.Logging,
		Admin:      fc.Admin,
		Throttle:   fc.Throttle,
		Expiry:     fc.Expiry,
		Stats:      fc.Stats,
	}
	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if fc.ReplicaOf != "" {
		r, err := parseReplicaOf(fc.ReplicaOf)
		if err != nil {
			return nil, err
		}
		cfg.ReplicaOf = r
	}

	if opts.Port != nil {
		cfg.Port = *opts.Port
	}
	if opts.Dir != nil {
		cfg.Dir = *opts.Dir
	}
	if opts.DBFilename != nil {
		cfg.DBFilename = *opts.DBFilename
	}
	if opts.ReplicaOf != nil {
		if *opts.ReplicaOf == "" {
			cfg.ReplicaOf = nil
		} else {
			r, err := parseReplicaOf(*opts.ReplicaOf)
			if err != nil {
				return nil, err
			}
			cfg.ReplicaOf = r
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func parseReplicaOf(s string) (*ReplicaOf, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return nil, fmt.Errorf("replicaof: expected \"<host> <port>\", got %q", s)
	}
	port, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("replicaof: invalid port %q", fields[1])
	}
	return &ReplicaOf{Host: fields[0], Port: port}, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Admin.Listen == "" {
		c.Admin.Listen = "127.0.0.1:0"
	}
	if c.Admin.Enabled {
		if len(c.Admin.AllowOrigins) == 0 {
			return fmt.Errorf("admin.allow_origins is required when admin is enabled (deny-by-default)")
		}
		for _, origin := range c.Admin.AllowOrigins {
			_, cidr, err := net.ParseCIDR(origin)
			if err != nil {
				ip := net.ParseIP(strings.TrimSpace(origin))
				if ip == nil {
					return fmt.Errorf("admin.allow_origins: %q is not a valid IP or CIDR", origin)
				}
				suffix := "/32"
				if ip.To4() == nil {
					suffix = "/128"
				}
				_, cidr, _ = net.ParseCIDR(ip.String() + suffix)
			}
			c.Admin.ParsedCIDRs = append(c.Admin.ParsedCIDRs, cidr)
		}
	}
	if c.Expiry.Schedule == "" {
		c.Expiry.Schedule = "@every 1s"
	}
	if c.Stats.Interval <= 0 {
		c.Stats.Interval = 5 * time.Minute
	}
	if c.Throttle.BytesPerSec == "" || c.Throttle.BytesPerSec == "0" {
		c.Throttle.BytesPerSecRaw = 0
	} else {
		n, err := ParseByteSize(c.Throttle.BytesPerSec)
		if err != nil {
			return fmt.Errorf("throttle.bytes_per_sec: %w", err)
		}
		c.Throttle.BytesPerSecRaw = n
	}
	return nil
}

// ParseByteSize parses a byte-size string with an optional kb/mb/gb
// suffix (case-insensitive) into a raw byte count.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "gb"):
		multiplier = 1 << 30
		s = strings.TrimSuffix(s, "gb")
	case strings.HasSuffix(s, "mb"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "mb")
	case strings.HasSuffix(s, "kb"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "kb")
	}
	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	return n * multiplier, nil
}

// ConfigGet implements CONFIG GET's fixed parameter set.
func (c *Config) ConfigGet(param string) (string, bool) {
	switch strings.ToLower(param) {
	case "dir":
		return c.Dir, true
	case "dbfilename":
		return c.DBFilename, true
	case "port":
		return strconv.Itoa(c.Port), true
	default:
		return "", false
	}
}
