package cli

import (
	"time"

	"github.com/dmitrijs2005/gohs/pkg/hscache"
	"github.com/spf13/cobra"
)

// CacheOptions holds flags for the cache commands.
type CacheOptions struct {
	*RootOptions
	TTL time.Duration
}

func (o *CacheOptions) run(cmd *cobra.Command, fn func(c *hscache.Cache, p *printer) error) error {
	inst, err := o.open(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	c, err := inst.Cache()
	if err != nil {
		inst.Close()
		return err
	}
	defer c.Close()
	return fn(c, newPrinter(o.RootOptions, cmd.OutOrStdout()))
}

// NewCacheCommand creates the cache command group operating directly on
// the store of the selected group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the TTL cache of a group",
	}

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Print a cached value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(c *hscache.Cache, p *printer) error {
				v, ok, err := c.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return NewExitError(ExitNotFound, "not found")
				}
				return p.value("value", v)
			})
		},
	}

	set := &cobra.Command{
		Use:   "set ID VALUE",
		Short: "Store a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(c *hscache.Cache, p *printer) error {
				return c.Set(cmd.Context(), args[0], []byte(args[1]), opts.TTL)
			})
		},
	}
	set.Flags().DurationVar(&opts.TTL, "ttl", hscache.DefaultLifetime, "lifetime, 0 never expires")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(c *hscache.Cache, p *printer) error {
				ok, err := c.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return p.value("deleted", ok)
			})
		},
	}

	flush := &cobra.Command{
		Use:   "flush",
		Short: "Remove every value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(c *hscache.Cache, p *printer) error {
				n, err := c.DeleteAll(cmd.Context())
				if err != nil {
					return err
				}
				return p.value("removed", n)
			})
		},
	}

	gc := &cobra.Command{
		Use:   "gc",
		Short: "Remove expired values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(c *hscache.Cache, p *printer) error {
				n, err := c.GarbageCollect(cmd.Context())
				if err != nil {
					return err
				}
				return p.value("removed", n)
			})
		},
	}

	cmd.AddCommand(get, set, del, flush, gc)
	return cmd
}
