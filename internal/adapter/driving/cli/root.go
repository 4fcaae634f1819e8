// Package cli implements the homevault command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/homevault/internal/application"
)

// Services are the application services the commands drive.
type Services struct {
	Vault *application.VaultService
	Audit *application.AuditService
}

// Opener resolves the key and opens the backing store. The returned func
// releases the store.
type Opener func(ctx context.Context) (*Services, func() error, error)

// Options configures Run.
type Options struct {
	Open    Opener
	Actor   string // Default for --actor.
	Version string
	Prompt  Prompter // Defaults to a no-echo terminal prompt on In.

	In  *os.File
	Out io.Writer
	Err io.Writer
}

// noVault marks commands that run without opening the store.
const noVault = "homevault/no-vault"

type cli struct {
	opts   Options
	output string
	actor  string

	svc     *Services
	closeFn func() error
}

// Run builds the command tree, executes args and releases the store if a
// command opened it.
func Run(ctx context.Context, opts Options, args []string) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.Prompt == nil {
		opts.Prompt = terminalPrompter(opts.In, opts.Err)
	}

	c := &cli{opts: opts}
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	err := root.ExecuteContext(ctx)
	if c.closeFn != nil {
		if cerr := c.closeFn(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close store: %w", cerr))
		}
	}
	return err
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "homevault",
		Short: "Encrypted credential vault for homelab infrastructure",
		Long: `homevault stores credentials for homelab devices, hosts, VMs and services.

Passwords and API tokens are encrypted with AES-256-GCM before they reach
the database, and every add, read and delete is written to an append-only
audit log.`,
		Version:       c.opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch c.output {
			case outputTable, outputJSON, outputYAML:
			default:
				return fmt.Errorf("unknown output format %q: want table, json or yaml", c.output)
			}
			if cmd.Annotations[noVault] != "" || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return c.openVault(cmd.Context())
		},
	}

	root.PersistentFlags().StringVarP(&c.output, "output", "o", outputTable, "Output format: table, json, yaml")
	root.PersistentFlags().StringVar(&c.actor, "actor", c.opts.Actor, "Actor recorded in audit entries")

	root.AddCommand(
		c.addCommand(),
		c.getCommand(),
		c.listCommand(),
		c.deleteCommand(),
		c.verifyCommand(),
		c.auditCommand(),
		c.deriveKeyCommand(),
	)
	return root
}

func (c *cli) openVault(ctx context.Context) error {
	if c.svc != nil {
		return nil
	}
	if c.opts.Open == nil {
		return errors.New("no vault configured")
	}
	svc, closeFn, err := c.opts.Open(ctx)
	if err != nil {
		return err
	}
	c.svc, c.closeFn = svc, closeFn
	return nil
}

func (c *cli) out() io.Writer { return c.opts.Out }
func (c *cli) err() io.Writer { return c.opts.Err }
