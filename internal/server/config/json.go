package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gohs/internal/flagx"
	"github.com/dmitrijs2005/gohs/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations accept either Go
// duration strings ("1m") or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC      *string         `json:"endpoint_addr_grpc"`
	MetricsAddr           *string         `json:"metrics_addr"`
	GroupsFile            *string         `json:"groups_file"`
	DefaultGroup          *string         `json:"default_group"`
	SecretKey             *string         `json:"secret_key"`
	TokenValidityDuration *timex.Duration `json:"token_validity_duration"`
	GCInterval            *timex.Duration `json:"gc_interval"`
	LogLevel              *string         `json:"log_level"`
	LogFormat             *string         `json:"log_format"`
}

// parseJson overlays the JSON file named by -c/-config onto config. Keys
// absent from the file keep their current values.
func parseJson(config *Config, args []string) error {
	jsonConfigFile := flagx.JsonConfigFlag(args)

	// nothing to load
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", jsonConfigFile, err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.MetricsAddr, c.MetricsAddr)
	setString(&config.GroupsFile, c.GroupsFile)
	setString(&config.DefaultGroup, c.DefaultGroup)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	if c.TokenValidityDuration != nil {
		config.TokenValidityDuration = c.TokenValidityDuration.Duration
	}
	if c.GCInterval != nil {
		config.GCInterval = c.GCInterval.Duration
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
