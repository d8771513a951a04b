// Package config loads named backend groups from a JSON file.
//
// A groups file looks like
//
//	{
//	  "default_group": "default",
//	  "groups": {
//	    "default": {"backend": "handlersocket", "host": "127.0.0.1", "dbname": "app", "table": "caches"},
//	    "local":   {"backend": "sqlite", "dsn": "file:cache.db", "timeout": "2s"}
//	  }
//	}
//
// Every group resolves to an hs.Config for the client and an
// hscache.Config for the cache built on top of it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/dmitrijs2005/gohs/internal/timex"
	"github.com/dmitrijs2005/gohs/pkg/hs"
	"github.com/dmitrijs2005/gohs/pkg/hscache"
	"github.com/dmitrijs2005/gohs/pkg/registry"
)

// Backend selects what a group talks to.
type Backend string

const (
	BackendHandlerSocket Backend = "handlersocket"
	BackendMemory        Backend = "memory"
	BackendSQLite        Backend = "sqlite"
	BackendPostgres      Backend = "postgres"
)

// Group is a resolved, validated group.
type Group struct {
	Name    string
	Backend Backend
	HS      hs.Config
	Cache   hscache.Config
	// DSN is used by the sqlite and postgres backends.
	DSN string
}

// JsonGroup is the on-disk form of a group.
type JsonGroup struct {
	Backend         Backend        `json:"backend"`
	Host            string         `json:"host"`
	PortRead        int            `json:"port_read"`
	PortWrite       int            `json:"port_write"`
	DBName          string         `json:"dbname"`
	AuthSecret      string         `json:"auth_secret"`
	Timeout         timex.Duration `json:"timeout"`
	HandleCacheSize int            `json:"handle_cache_size"`
	Table           string         `json:"table"`
	ExpirationIndex string         `json:"expiration_index"`
	DSN             string         `json:"dsn"`
}

// JsonGroups is the on-disk form of a groups file.
type JsonGroups struct {
	DefaultGroup string               `json:"default_group"`
	Groups       map[string]JsonGroup `json:"groups"`
}

// Groups holds the raw groups; Resolve validates one at a time so a broken
// group does not take the others down.
type Groups struct {
	defaultGroup string
	groups       map[string]JsonGroup
}

// Load reads a groups file.
func Load(path string) (*Groups, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read groups file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a groups document.
func Parse(data []byte) (*Groups, error) {
	var raw JsonGroups
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: groups file: %v", hs.ErrConfiguration, err)
	}
	return New(raw.DefaultGroup, raw.Groups), nil
}

// New builds Groups from already decoded groups.
func New(defaultGroup string, groups map[string]JsonGroup) *Groups {
	if defaultGroup == "" {
		defaultGroup = registry.DefaultGroup
	}
	if groups == nil {
		groups = map[string]JsonGroup{}
	}
	return &Groups{defaultGroup: defaultGroup, groups: groups}
}

// DefaultGroup is the group used for an empty name.
func (g *Groups) DefaultGroup() string { return g.defaultGroup }

// WithDefault returns a copy of g whose default group is name.
func (g *Groups) WithDefault(name string) *Groups {
	if name == "" {
		name = g.defaultGroup
	}
	return &Groups{defaultGroup: name, groups: g.groups}
}

// Names lists the configured groups in order.
func (g *Groups) Names() []string {
	out := make([]string, 0, len(g.groups))
	for name := range g.groups {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the validated group name. An empty name selects the
// default group. Failures wrap hs.ErrConfiguration.
func (g *Groups) Resolve(name string) (Group, error) {
	if name == "" {
		name = g.defaultGroup
	}
	raw, ok := g.groups[name]
	if !ok {
		return Group{}, fmt.Errorf("%w: group %q is not defined", hs.ErrConfiguration, name)
	}
	grp, err := raw.resolve(name)
	if err != nil {
		return Group{}, fmt.Errorf("group %q: %w", name, err)
	}
	return grp, nil
}

func (j JsonGroup) resolve(name string) (Group, error) {
	backend := j.Backend
	if backend == "" {
		backend = BackendHandlerSocket
	}

	hc := hs.DefaultConfig()
	hc.Host = j.Host
	hc.DBName = j.DBName
	hc.AuthSecret = j.AuthSecret
	if j.PortRead != 0 {
		hc.PortRead = j.PortRead
	}
	if j.PortWrite != 0 {
		hc.PortWrite = j.PortWrite
	}
	if j.Timeout.Duration != 0 {
		hc.Timeout = j.Timeout.Duration
	}
	if j.HandleCacheSize != 0 {
		hc.HandleCacheSize = j.HandleCacheSize
	}

	cc := hscache.Config{Table: j.Table, ExpirationIndex: j.ExpirationIndex}
	if cc.Table == "" {
		cc.Table = hscache.DefaultTable
	}

	grp := Group{Name: name, Backend: backend, HS: hc, Cache: cc, DSN: j.DSN}

	switch backend {
	case BackendHandlerSocket:
		if err := hc.Validate(); err != nil {
			return Group{}, err
		}
	case BackendMemory, BackendSQLite, BackendPostgres:
		// the emulated backends ignore host and ports
		if grp.HS.DBName == "" {
			grp.HS.DBName = "main"
		}
		if backend != BackendMemory && grp.DSN == "" {
			return Group{}, fmt.Errorf("%w: dsn is required for %s", hs.ErrConfiguration, backend)
		}
	default:
		return Group{}, fmt.Errorf("%w: unknown backend %q", hs.ErrConfiguration, backend)
	}

	if err := cc.Validate(); err != nil {
		return Group{}, err
	}
	return grp, nil
}
