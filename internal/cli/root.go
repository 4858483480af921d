// Package cli implements cartctl, a command-line client for the cart session
// service. Each command performs a single cart operation, making it
// composable for scripts; the session handle is kept in a file between runs.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server      string
	SessionFile string
	Version     string // storefront version sent with the session handle
	Format      string // "json" | "text"
	Verbose     bool
	Quiet       bool
	NoColor     bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for cartctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cartctl",
		Short: "cartctl - drive a cart session from the command line",
		Long: `cartctl talks to the cart session service over its REST API.

The Cart-Session handle returned by the service is saved between runs, so
consecutive commands act on the same cart:

  cartctl add 60 --qty 2
  cartctl show
  cartctl inc <line-id>
  cartctl availability 60 --variant 61`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.Server, "server", envOr("CARTCTL_SERVER", "http://localhost:8080"), "cart service base URL")
	cmd.PersistentFlags().StringVar(&opts.SessionFile, "session-file", envOr("CARTCTL_SESSION_FILE", defaultSessionFile()), "file holding the Cart-Session handle")
	cmd.PersistentFlags().StringVar(&opts.Version, "storefront-version", "", "storefront version to report (semver)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "show full request/response")
	cmd.PersistentFlags().BoolVarP(&opts.Quiet, "quiet", "q", false, "only print essential output")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	// Add subcommands
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewIncrementCommand(opts))
	cmd.AddCommand(NewDecrementCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewAvailabilityCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".cartctl-session"
	}
	return filepath.Join(dir, "cartctl", "session")
}
