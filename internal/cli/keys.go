package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-resultlink/core"
	"github.com/goliatone/go-resultlink/security"
	"github.com/goliatone/go-resultlink/token"
)

const defaultSecretBytes = 32

func newKeygenCommand(opts *rootOptions) *cobra.Command {
	var (
		keyID string
		size  int
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a token signing secret as environment lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keyID = strings.TrimSpace(keyID)
			if err := security.ValidateKeyID(keyID); err != nil {
				return err
			}
			if size < 16 {
				return fmt.Errorf("secret size must be at least 16 bytes")
			}
			secret := make([]byte, size)
			if _, err := io.ReadFull(opts.random, secret); err != nil {
				return fmt.Errorf("read random bytes: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "RESULTLINK_TOKEN_KEYS=%s:%s\n", keyID, security.EncodeSecret(secret))
			fmt.Fprintf(out, "RESULTLINK_TOKEN_ACTIVE_KEY=%s\n", keyID)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyID, "kid", core.DefaultActiveKeyID, "key id embedded in issued tokens")
	cmd.Flags().IntVar(&size, "bytes", defaultSecretBytes, "secret length in bytes")
	return cmd
}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Encode or inspect result tokens with the configured keyring",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "encode <identifier>",
			Short: "Print a token for identifier",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				codec, err := codecFromEnv(cmd, opts)
				if err != nil {
					return err
				}
				raw, err := codec.Encode(core.Identifier(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), raw)
				return nil
			},
		},
		&cobra.Command{
			Use:   "decode <token>",
			Short: "Verify a token and print its claims",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				codec, err := codecFromEnv(cmd, opts)
				if err != nil {
					return err
				}
				claims, err := codec.DecodeClaims(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "identifier: %s\n", claims.Identifier)
				fmt.Fprintf(out, "key_id: %s\n", claims.KeyID)
				fmt.Fprintf(out, "issued_at: %s\n", claims.IssuedAt.UTC().Format(time.RFC3339))
				return nil
			},
		},
	)
	return cmd
}

func codecFromEnv(cmd *cobra.Command, opts *rootOptions) (*token.Codec, error) {
	cfg, err := loadConfig(cmd.Context(), opts)
	if err != nil {
		return nil, err
	}
	keyring, err := security.NewKeyringFromConfig(cfg.Token)
	if err != nil {
		return nil, err
	}
	return token.NewCodec(keyring, token.WithExpiryWindow(cfg.Token.ExpiryWindow))
}
