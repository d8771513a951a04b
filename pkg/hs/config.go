package hs

import (
	"fmt"
	"time"
)

const (
	DefaultPortRead        = 9998
	DefaultPortWrite       = 9999
	DefaultTimeout         = 5 * time.Second
	DefaultHandleCacheSize = 256
)

// Config describes how to reach one HandlerSocket server.
type Config struct {
	Host      string
	PortRead  int
	PortWrite int
	DBName    string
	// AuthSecret, when set, is sent with "A 1" on every new connection.
	AuthSecret string
	// Timeout bounds dialing and each request/response exchange.
	Timeout         time.Duration
	HandleCacheSize int
}

// DefaultConfig returns a Config for a local server.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		PortRead:        DefaultPortRead,
		PortWrite:       DefaultPortWrite,
		Timeout:         DefaultTimeout,
		HandleCacheSize: DefaultHandleCacheSize,
	}
}

func (c Config) withDefaults() Config {
	if c.PortRead == 0 {
		c.PortRead = DefaultPortRead
	}
	if c.PortWrite == 0 {
		c.PortWrite = DefaultPortWrite
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HandleCacheSize <= 0 {
		c.HandleCacheSize = DefaultHandleCacheSize
	}
	return c
}

// Validate checks the settings needed by the TCP transport.
func (c Config) Validate() error {
	return c.validate(true)
}

func (c Config) validate(needHost bool) error {
	if needHost && c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrConfiguration)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: dbname is required", ErrConfiguration)
	}
	for name, p := range map[string]int{"port_read": c.PortRead, "port_write": c.PortWrite} {
		if p < 0 || p > 65535 {
			return fmt.Errorf("%w: %s %d out of range", ErrConfiguration, name, p)
		}
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrConfiguration)
	}
	return nil
}
