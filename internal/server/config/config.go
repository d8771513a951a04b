// Package config handles configuration for the cache daemon, including
// defaults, JSON overlay, and command-line flags.
package config

import (
	"os"
	"time"
)

// Config holds runtime settings for hscached.
//
// Fields:
//   - EndpointAddrGRPC: bind address for the gRPC cache service.
//   - MetricsAddr: bind address for /metrics; empty disables it.
//   - GroupsFile: JSON file with the backend groups.
//   - DefaultGroup: group used by requests that name none; empty keeps the file's choice.
//   - SecretKey: HMAC secret for access tokens (HS256). Empty disables auth.
//   - TokenValidityDuration: lifetime of tokens minted by hsctl.
//   - GCInterval: how often every open cache is garbage collected; 0 disables it.
//   - LogLevel / LogFormat: slog level and handler ("json" or "text").
type Config struct {
	EndpointAddrGRPC      string
	MetricsAddr           string
	GroupsFile            string
	DefaultGroup          string
	SecretKey             string
	TokenValidityDuration time.Duration
	GCInterval            time.Duration
	LogLevel              string
	LogFormat             string
}

// LoadDefaults populates Config with development defaults. The default
// groups file is resolved relative to the working directory.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50061"
	c.MetricsAddr = ":9108"
	c.GroupsFile = "hs.json"
	c.DefaultGroup = ""
	c.SecretKey = ""
	c.TokenValidityDuration = 24 * time.Hour
	c.GCInterval = time.Minute
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// Load builds a Config from defaults, then the JSON file named by -c or
// -config in args, then the remaining flags in args.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig is Load over the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}
