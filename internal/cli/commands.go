package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const requestTimeout = 30 * time.Second

// cartOp is one cart call made by a command.
type cartOp func(ctx context.Context, c *Client) (*CartResponse, []byte, error)

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the session's cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCartOp(cmd, opts, func(ctx context.Context, c *Client) (*CartResponse, []byte, error) {
				return c.Cart(ctx)
			})
		},
	}
}

// NewAddCommand creates the add command.
func NewAddCommand(opts *RootOptions) *cobra.Command {
	var variant string
	var qty int

	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product or variant to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if qty < 1 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid quantity %d: must be at least 1", qty))
			}
			productID := args[0]
			return runCartOp(cmd, opts, func(ctx context.Context, c *Client) (*CartResponse, []byte, error) {
				return c.Add(ctx, productID, variant, qty)
			})
		},
	}

	cmd.Flags().StringVar(&variant, "variant", "", "variant ID for products with options")
	cmd.Flags().IntVarP(&qty, "qty", "n", 1, "units to add")

	return cmd
}

// NewIncrementCommand creates the inc command.
func NewIncrementCommand(opts *RootOptions) *cobra.Command {
	return lineCommand(opts, "inc <line-id>", "Add one unit to a cart line",
		func(ctx context.Context, c *Client, lineID string) (*CartResponse, []byte, error) {
			return c.Increment(ctx, lineID)
		})
}

// NewDecrementCommand creates the dec command.
func NewDecrementCommand(opts *RootOptions) *cobra.Command {
	return lineCommand(opts, "dec <line-id>", "Remove one unit from a cart line",
		func(ctx context.Context, c *Client, lineID string) (*CartResponse, []byte, error) {
			return c.Decrement(ctx, lineID)
		})
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(opts *RootOptions) *cobra.Command {
	cmd := lineCommand(opts, "rm <line-id>", "Remove a line from the cart",
		func(ctx context.Context, c *Client, lineID string) (*CartResponse, []byte, error) {
			return c.Remove(ctx, lineID)
		})
	cmd.Aliases = []string{"remove"}
	return cmd
}

func lineCommand(opts *RootOptions, use, short string, op func(context.Context, *Client, string) (*CartResponse, []byte, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lineID := args[0]
			return runCartOp(cmd, opts, func(ctx context.Context, c *Client) (*CartResponse, []byte, error) {
				return op(ctx, c, lineID)
			})
		},
	}
}

// NewAvailabilityCommand creates the availability command.
func NewAvailabilityCommand(opts *RootOptions) *cobra.Command {
	var variant string

	cmd := &cobra.Command{
		Use:     "availability <product-id>",
		Aliases: []string{"avail"},
		Short:   "Show how many more units of a selection can be added",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, p, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			resp, body, err := client.Availability(ctx, args[0], variant)
			if err := finish(client, opts, p, err); err != nil {
				return err
			}
			if opts.Format == "json" {
				p.Raw(body)
				return nil
			}
			p.Availability(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&variant, "variant", "", "variant ID for products with options")

	return cmd
}

// NewResetCommand creates the reset command.
func NewResetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the saved session; the next command starts a new cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := os.Remove(opts.SessionFile)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return WrapExitError(ExitCommandError, "removing session file", err)
			}
			if !opts.Quiet && opts.Format == "text" {
				fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
			}
			return nil
		},
	}
}

func runCartOp(cmd *cobra.Command, opts *RootOptions, op cartOp) error {
	client, p, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	resp, body, err := op(ctx, client)
	if err := finish(client, opts, p, err); err != nil {
		return err
	}
	if opts.Format == "json" {
		p.Raw(body)
		return nil
	}
	p.Cart(resp)
	return nil
}

func setup(cmd *cobra.Command, opts *RootOptions) (*Client, *Printer, error) {
	handle, err := loadHandle(opts.SessionFile)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "loading session", err)
	}
	p := newPrinter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	client := &Client{
		BaseURL: opts.Server,
		HTTP:    &http.Client{Timeout: requestTimeout},
		Handle:  handle,
		Version: opts.Version,
	}
	if opts.Verbose {
		client.Trace = p.Trace
	}
	return client, p, nil
}

// finish saves the session handle and classifies the call's error. The
// handle is saved even on failure: a refused add still started a session.
func finish(client *Client, opts *RootOptions, p *Printer, callErr error) error {
	if err := saveHandle(opts.SessionFile, client.Handle); err != nil {
		return WrapExitError(ExitCommandError, "saving session", err)
	}
	if callErr == nil {
		return nil
	}
	p.Failure(callErr)

	var reqErr *RequestError
	if errors.As(callErr, &reqErr) {
		return NewExitError(ExitFailure, reqErr.Error())
	}
	return WrapExitError(ExitCommandError, "calling cart service", callErr)
}
