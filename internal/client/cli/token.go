package cli

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gohs/internal/server/auth"
	"github.com/spf13/cobra"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	Secret   string
	Subject  string
	Groups   []string
	Validity time.Duration
}

// NewTokenCommand creates the command minting daemon access tokens.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for hscached",
		Long: `Mint an HS256 access token signed with the daemon secret.

The secret is read from --secret, from HSCACHED_SECRET, or prompted for
when neither is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := opts.Secret
			if secret == "" {
				var err error
				secret, err = readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "Daemon secret: ")
				if err != nil {
					return err
				}
			}
			if secret == "" {
				return errors.New("empty secret")
			}

			tok, err := auth.GenerateToken(opts.Subject, opts.Groups, []byte(secret), opts.Validity)
			if err != nil {
				return err
			}
			return newPrinter(rootOpts, cmd.OutOrStdout()).value("token", tok)
		},
	}
	cmd.Flags().StringVar(&opts.Secret, "secret", envOr("HSCACHED_SECRET", ""), "daemon secret")
	cmd.Flags().StringVar(&opts.Subject, "subject", "hsctl", "token subject")
	cmd.Flags().StringSliceVar(&opts.Groups, "groups", nil, "groups the token may write to (default all)")
	cmd.Flags().DurationVar(&opts.Validity, "validity", 24*time.Hour, "token lifetime")
	return cmd
}
