package cli

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/homevault/internal/adapter/driven/crypto"
)

type derivedKeyOutput struct {
	Key         string `json:"key" yaml:"key"`
	Salt        string `json:"salt" yaml:"salt"`
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
	Iterations  int    `json:"iterations" yaml:"iterations"`
}

func (c *cli) deriveKeyCommand() *cobra.Command {
	var saltText string

	cmd := &cobra.Command{
		Use:   "derive-key",
		Short: "Derive a vault key from a passphrase for escrow",
		Long: `Derive a vault key from a passphrase with PBKDF2-HMAC-SHA256.

Keep the printed salt: the same passphrase and salt always derive the same
key, so the pair can be written down and used to rebuild HOMEVAULT_KEY.
Without --salt a fresh random salt is generated and the passphrase is
asked for twice.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{noVault: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var salt []byte
			if saltText != "" {
				var err error
				salt, err = base64.URLEncoding.DecodeString(saltText)
				if err != nil {
					return fmt.Errorf("invalid --salt: %w", err)
				}
				if len(salt) < crypto.SaltSize {
					return fmt.Errorf("invalid --salt: want at least %d bytes, got %d", crypto.SaltSize, len(salt))
				}
			}

			pass, err := c.opts.Prompt("Passphrase")
			if err != nil {
				return err
			}
			if salt == nil {
				confirm, err := c.opts.Prompt("Confirm passphrase")
				if err != nil {
					return err
				}
				if confirm != pass {
					return errors.New("passphrases do not match")
				}
			}

			key, salt, err := crypto.DeriveKey(pass, salt)
			if err != nil {
				return fmt.Errorf("derive key: %w", err)
			}

			out := derivedKeyOutput{
				Key:         key.Encode(),
				Salt:        base64.URLEncoding.EncodeToString(salt),
				Fingerprint: key.Fingerprint(),
				Iterations:  crypto.PBKDF2Iterations,
			}
			if ok, err := c.structured(out); ok {
				return err
			}

			w := c.table()
			fmt.Fprintf(w, "Key:\t%s\n", out.Key)
			fmt.Fprintf(w, "Salt:\t%s\n", out.Salt)
			fmt.Fprintf(w, "Fingerprint:\t%s\n", out.Fingerprint)
			fmt.Fprintf(w, "Iterations:\t%d\n", out.Iterations)
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&saltText, "salt", "", "Base64url salt from an earlier derivation")
	return cmd
}
