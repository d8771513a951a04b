package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/gohs/internal/backend"
	"github.com/dmitrijs2005/gohs/internal/config"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	GroupsFile string
	Group      string
	Format     string // "text" | "json"
	Verbose    bool
	AskAuth    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of hsctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "hsctl",
		Short: "hsctl - HandlerSocket client",
		Long:  "Run indexed operations and manage TTL caches on HandlerSocket stores.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.GroupsFile, "config", "c", envOr("HS_CONFIG", "hs.json"), "groups file")
	cmd.PersistentFlags().StringVarP(&opts.Group, "group", "g", "", "config group (default: the file's default group)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log client activity to stderr")
	cmd.PersistentFlags().BoolVar(&opts.AskAuth, "ask-auth", false, "prompt for the HandlerSocket auth secret")

	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewInsertCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewCacheCommand(opts))
	cmd.AddCommand(NewRemoteCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// open resolves the selected group and opens its backend.
func (o *RootOptions) open(ctx context.Context, cmd *cobra.Command) (*backend.Instance, error) {
	groups, err := config.Load(o.GroupsFile)
	if err != nil {
		return nil, err
	}
	grp, err := groups.Resolve(o.Group)
	if err != nil {
		return nil, err
	}

	if o.AskAuth {
		secret, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "Auth secret: ")
		if err != nil {
			return nil, err
		}
		grp.HS.AuthSecret = secret
	}

	log := slog.New(slog.DiscardHandler)
	if o.Verbose {
		log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return backend.Open(ctx, grp, backend.WithLogger(log))
}
