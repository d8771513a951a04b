package cli

import (
	"time"

	"github.com/dmitrijs2005/gohs/pkg/cacherpc"
	"github.com/dmitrijs2005/gohs/pkg/hscache"
	"github.com/spf13/cobra"
)

// RemoteOptions holds flags for the remote commands.
type RemoteOptions struct {
	*RootOptions
	Server string
	Token  string
	TTL    time.Duration
}

func (o *RemoteOptions) run(cmd *cobra.Command, fn func(c *cacherpc.Client, p *printer) error) error {
	c, err := cacherpc.Dial(o.Server, cacherpc.WithGroup(o.Group), cacherpc.WithAccessToken(o.Token))
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c, newPrinter(o.RootOptions, cmd.OutOrStdout()))
}

// NewRemoteCommand creates the command group talking to hscached.
func NewRemoteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RemoteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Use the cache through a running hscached",
	}
	cmd.PersistentFlags().StringVarP(&opts.Server, "server", "s", envOr("HSCACHED_ADDR", "127.0.0.1:50061"), "daemon address")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", envOr("HSCACHED_TOKEN", ""), "access token for writes")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Print a cached value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(c *cacherpc.Client, p *printer) error {
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
			return opts.run(cmd, func(c *cacherpc.Client, p *printer) error {
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
			return opts.run(cmd, func(c *cacherpc.Client, p *printer) error {
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
			return opts.run(cmd, func(c *cacherpc.Client, p *printer) error {
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
			return opts.run(cmd, func(c *cacherpc.Client, p *printer) error {
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
