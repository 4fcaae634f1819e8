package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/homevault/internal/application"
	"github.com/ericfisherdev/homevault/internal/domain/model"
)

func (c *cli) addCommand() *cobra.Command {
	var (
		req            application.AddCredentialRequest
		authType       string
		promptPassword bool
		promptToken    bool
	)

	cmd := &cobra.Command{
		Use:   "add <type> <id>",
		Short: "Store a credential",
		Long: `Store a credential for a device, host, vm or service.

Secrets are never taken from the command line. --password and --api-token
prompt for the value, or read one line each from stdin when it is not a
terminal.

Examples:
  homevault add device NAS --username admin --password
  homevault add service grafana --username admin --api-token --name "Grafana"
  homevault add host pve1 --username root --ssh-key ~/.ssh/pve1 --root`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.TargetType, req.TargetID = args[0], args[1]
			req.AuthType = model.AuthType(authType)
			req.Actor = c.actor

			if promptPassword {
				pw, err := c.opts.Prompt("Password")
				if err != nil {
					return err
				}
				req.Password = pw
			}
			if promptToken {
				tok, err := c.opts.Prompt("API token")
				if err != nil {
					return err
				}
				req.APIToken = tok
			}

			id, err := c.svc.Vault.AddCredential(cmd.Context(), req)
			if err != nil {
				return err
			}

			if ok, err := c.structured(map[string]int64{"id": id}); ok {
				return err
			}
			fmt.Fprintf(c.out(), "%s credential %d stored for %s:%s\n", okFmt("✓"), id, req.TargetType, req.TargetID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&req.Username, "username", "u", "", "Login username (required)")
	f.BoolVar(&promptPassword, "password", false, "Prompt for a password")
	f.BoolVar(&promptToken, "api-token", false, "Prompt for an API token")
	f.StringVar(&req.SSHKeyPath, "ssh-key", "", "Path to an SSH private key")
	f.StringVar(&req.TargetName, "name", "", "Alternate name the target can be looked up by")
	f.StringVar(&req.DisplayName, "display-name", "", "Human-friendly label")
	f.StringVar(&authType, "auth-type", "", "password, key, token or both (derived when omitted)")
	f.BoolVar(&req.IsRoot, "root", false, "Mark as a root or administrator credential")
	f.StringVar(&req.Notes, "notes", "", "Free-form notes")
	return cmd
}

// credentialOutput is the printable form of a credential view. Secret
// fields hold plaintext only when --reveal is set.
type credentialOutput struct {
	ID            int64               `json:"id" yaml:"id"`
	Target        string              `json:"target" yaml:"target"`
	TargetName    string              `json:"target_name,omitempty" yaml:"target_name,omitempty"`
	DisplayName   string              `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Username      string              `json:"username" yaml:"username"`
	Password      string              `json:"password,omitempty" yaml:"password,omitempty"`
	APIToken      string              `json:"api_token,omitempty" yaml:"api_token,omitempty"`
	SSHKeyPath    string              `json:"ssh_key_path,omitempty" yaml:"ssh_key_path,omitempty"`
	AuthType      model.AuthType      `json:"auth_type" yaml:"auth_type"`
	IsRoot        bool                `json:"is_root" yaml:"is_root"`
	Notes         string              `json:"notes,omitempty" yaml:"notes,omitempty"`
	Undecryptable []model.SecretField `json:"undecryptable,omitempty" yaml:"undecryptable,omitempty"`
	CreatedAt     time.Time           `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" yaml:"updated_at"`
}

func secretText(s model.Secret, reveal bool) string {
	if reveal && s.State == model.SecretDecrypted {
		return s.Reveal()
	}
	return s.String()
}

func (c *cli) getCommand() *cobra.Command {
	var (
		username string
		reveal   bool
	)

	cmd := &cobra.Command{
		Use:   "get <type:id>",
		Short: "Retrieve and decrypt a credential",
		Long: `Retrieve a credential by target address, e.g. device:NAS or vm:k3s-worker-1.
The id part also matches the credential's --name.

Secrets are shown as [REDACTED] unless --reveal is given. Fields that fail
to decrypt are shown as [DECRYPTION_FAILED].`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.svc.Vault.GetCredentialByAddress(cmd.Context(), args[0], username, c.actor)
			if err != nil {
				return err
			}

			var (
				view   model.CredentialView
				failed []model.SecretField
			)
			switch r := res.(type) {
			case application.Found:
				view = r.View
			case application.DecryptFailed:
				view, failed = r.View, r.Fields
			case application.NotFound:
				return &model.NotFoundError{What: "credential", Key: r.Target.String()}
			case application.InvalidTarget:
				return r.Err
			default:
				return fmt.Errorf("unexpected result %T", res)
			}

			out := credentialOutput{
				ID:            view.ID,
				Target:        view.Target.String(),
				TargetName:    view.TargetName,
				DisplayName:   view.DisplayName,
				Username:      view.Username,
				Password:      secretText(view.Password, reveal),
				APIToken:      secretText(view.APIToken, reveal),
				SSHKeyPath:    view.SSHKeyPath,
				AuthType:      view.AuthType,
				IsRoot:        view.IsRoot,
				Notes:         view.Notes,
				Undecryptable: failed,
				CreatedAt:     view.CreatedAt,
				UpdatedAt:     view.UpdatedAt,
			}

			if len(failed) > 0 {
				fmt.Fprintf(c.err(), "%s %d secret field(s) could not be decrypted; the key may have changed\n", warnFmt("warning:"), len(failed))
			}
			if ok, err := c.structured(out); ok {
				return err
			}

			secret := func(s model.Secret, text string) string {
				if s.State == model.SecretUndecryptable {
					return errFmt(text)
				}
				return orDash(text)
			}
			w := c.table()
			fmt.Fprintf(w, "ID:\t%d\n", out.ID)
			fmt.Fprintf(w, "Target:\t%s\n", out.Target)
			fmt.Fprintf(w, "Name:\t%s\n", orDash(out.TargetName))
			fmt.Fprintf(w, "Display name:\t%s\n", orDash(out.DisplayName))
			fmt.Fprintf(w, "Username:\t%s\n", out.Username)
			fmt.Fprintf(w, "Password:\t%s\n", secret(view.Password, out.Password))
			fmt.Fprintf(w, "API token:\t%s\n", secret(view.APIToken, out.APIToken))
			fmt.Fprintf(w, "SSH key:\t%s\n", orDash(out.SSHKeyPath))
			fmt.Fprintf(w, "Auth type:\t%s\n", out.AuthType)
			fmt.Fprintf(w, "Root:\t%s\n", yesNo(out.IsRoot))
			fmt.Fprintf(w, "Notes:\t%s\n", orDash(out.Notes))
			fmt.Fprintf(w, "Updated:\t%s\n", formatTime(out.UpdatedAt))
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Select among several credentials for the target")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print decrypted secrets")
	return cmd
}

func (c *cli) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored credentials without secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			summaries, err := c.svc.Vault.ListCredentials(cmd.Context())
			if err != nil {
				return err
			}
			if summaries == nil {
				summaries = []model.CredentialSummary{}
			}
			if ok, err := c.structured(summaries); ok {
				return err
			}

			if len(summaries) == 0 {
				fmt.Fprintln(c.out(), "No credentials stored.")
				return nil
			}

			w := c.table()
			fmt.Fprintln(w, "ID\tTARGET\tNAME\tUSERNAME\tAUTH\tSECRETS\tROOT\tUPDATED")
			for _, s := range summaries {
				fmt.Fprintf(w, "%d\t%s:%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					s.ID,
					s.TargetType, s.TargetID,
					orDash(s.TargetName),
					s.Username,
					s.AuthType,
					secretsHeld(s),
					yesNo(s.IsRoot),
					formatTime(s.UpdatedAt))
			}
			return w.Flush()
		},
	}
}

func secretsHeld(s model.CredentialSummary) string {
	switch {
	case s.HasPassword && s.HasAPIToken:
		return "password,api_token"
	case s.HasPassword:
		return "password"
	case s.HasAPIToken:
		return "api_token"
	default:
		return "-"
	}
}

func (c *cli) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a credential by ID",
		Long: `Delete a credential by the numeric ID shown by "homevault list".
Audit entries for the credential are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid credential id %q", args[0])
			}
			if err := c.svc.Vault.DeleteCredential(cmd.Context(), id, c.actor); err != nil {
				return err
			}
			if ok, err := c.structured(map[string]int64{"deleted": id}); ok {
				return err
			}
			fmt.Fprintf(c.out(), "%s credential %d deleted\n", okFmt("✓"), id)
			return nil
		},
	}
}

type verifyOutput struct {
	Records  int                 `json:"records" yaml:"records"`
	Fields   int                 `json:"fields" yaml:"fields"`
	Failures []verifyFailureItem `json:"failures" yaml:"failures"`
}

type verifyFailureItem struct {
	ID       int64             `json:"id" yaml:"id"`
	Target   string            `json:"target" yaml:"target"`
	Username string            `json:"username" yaml:"username"`
	Field    model.SecretField `json:"field" yaml:"field"`
}

func (c *cli) verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that every stored secret decrypts with the active key",
		Long: `Decrypt every stored password and API token without printing them.
Exits non-zero if any field fails, which usually means the key changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := c.svc.Vault.VerifyCredentials(cmd.Context(), c.actor)
			if err != nil {
				return err
			}

			out := verifyOutput{Records: report.Records, Fields: report.Fields, Failures: []verifyFailureItem{}}
			for _, f := range report.Failures {
				out.Failures = append(out.Failures, verifyFailureItem{
					ID:       f.CredentialID,
					Target:   f.Target.String(),
					Username: f.Username,
					Field:    f.Field,
				})
			}

			if ok, err := c.structured(out); ok {
				if err != nil {
					return err
				}
			} else {
				fmt.Fprintf(c.out(), "Checked %d secret field(s) across %d credential(s)\n", out.Fields, out.Records)
				if len(out.Failures) > 0 {
					w := c.table()
					fmt.Fprintln(w, "ID\tTARGET\tUSERNAME\tFIELD")
					for _, f := range out.Failures {
						fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", f.ID, f.Target, f.Username, errFmt(f.Field))
					}
					if err := w.Flush(); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(c.out(), "%s all secrets decrypt\n", okFmt("✓"))
				}
			}

			if len(out.Failures) > 0 {
				return fmt.Errorf("%d secret field(s) failed to decrypt", len(out.Failures))
			}
			return nil
		},
	}
}
