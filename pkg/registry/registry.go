// Package registry keeps one lazily built instance per named config group.
//
// It replaces process-wide singletons: callers own a Registry, pass it
// where it is needed and Close it on shutdown.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DefaultGroup is used when Get is called with an empty name.
const DefaultGroup = "default"

var ErrClosed = errors.New("registry closed")

// Factory builds the instance for group.
type Factory[T io.Closer] func(ctx context.Context, group string) (T, error)

// Registry is safe for concurrent use. Concurrent first lookups of the
// same group share a single Factory call.
type Registry[T io.Closer] struct {
	factory      Factory[T]
	defaultGroup string

	sf        singleflight.Group
	mu        sync.Mutex
	instances map[string]T
	closed    bool
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	defaultGroup string
}

// WithDefaultGroup changes the group used for empty names.
func WithDefaultGroup(name string) Option {
	return func(o *options) {
		if name != "" {
			o.defaultGroup = name
		}
	}
}

func New[T io.Closer](factory Factory[T], opts ...Option) *Registry[T] {
	o := options{defaultGroup: DefaultGroup}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[T]{
		factory:      factory,
		defaultGroup: o.defaultGroup,
		instances:    make(map[string]T),
	}
}

// DefaultGroup returns the name Get uses for "".
func (r *Registry[T]) DefaultGroup() string { return r.defaultGroup }

// Get returns the instance for group, building it on first use. A failed
// build is not cached; the next Get tries again. The build is shared by
// every caller waiting on group, so it ignores the cancellation of ctx.
func (r *Registry[T]) Get(ctx context.Context, group string) (T, error) {
	var zero T
	if group == "" {
		group = r.defaultGroup
	}

	if inst, ok, err := r.lookup(group); err != nil || ok {
		return inst, err
	}

	v, err, _ := r.sf.Do(group, func() (any, error) {
		if inst, ok, err := r.lookup(group); err != nil || ok {
			return inst, err
		}

		inst, err := r.factory(context.WithoutCancel(ctx), group)
		if err != nil {
			return zero, fmt.Errorf("group %q: %w", group, err)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			// lost the race with Close
			return zero, errors.Join(ErrClosed, inst.Close())
		}
		r.instances[group] = inst
		return inst, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (r *Registry[T]) lookup(group string) (T, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if r.closed {
		return zero, false, ErrClosed
	}
	inst, ok := r.instances[group]
	return inst, ok, nil
}

// Groups lists the groups built so far.
func (r *Registry[T]) Groups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.instances))
	for g := range r.instances {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Close closes every instance. Later calls to Get fail with ErrClosed.
func (r *Registry[T]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	instances := r.instances
	r.instances = nil
	r.mu.Unlock()

	var errs []error
	for group, inst := range instances {
		if err := inst.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", group, err))
		}
	}
	return errors.Join(errs...)
}
