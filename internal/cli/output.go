package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"storefront-cart/internal/cart"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The service refused or failed the operation
	ExitCommandError = 2 // Command error (bad flags, unreachable server, unreadable session file)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ANSI color codes
type palette struct {
	reset, red, green, yellow, cyan, gray, bold string
}

var colors = palette{
	reset:  "\033[0m",
	red:    "\033[31m",
	green:  "\033[32m",
	yellow: "\033[33m",
	cyan:   "\033[36m",
	gray:   "\033[90m",
	bold:   "\033[1m",
}

// Printer renders command results as text or JSON.
type Printer struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // request/response traces and diagnostics
	Verbose   bool
	Quiet     bool
	c         palette
}

func newPrinter(opts *RootOptions, out, errOut io.Writer) *Printer {
	p := &Printer{
		Format:    opts.Format,
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   opts.Verbose,
		Quiet:     opts.Quiet,
		c:         colors,
	}
	if opts.NoColor || opts.Format == "json" {
		p.c = palette{}
	}
	return p
}

// Trace echoes a request and its response; wired to Client.Trace in verbose mode.
func (p *Printer) Trace(method, path string, reqBody []byte, status int, respBody []byte, d time.Duration) {
	fmt.Fprintf(p.ErrWriter, "\n%s▶ REQUEST%s %s%s %s%s\n", p.c.yellow, p.c.reset, p.c.bold, method, path, p.c.reset)
	if reqBody != nil {
		p.printJSON(reqBody, "  ")
	}
	statusColor := p.c.green
	if status >= 400 {
		statusColor = p.c.red
	}
	fmt.Fprintf(p.ErrWriter, "\n%s◀ RESPONSE%s %s%d%s (%v)\n", p.c.cyan, p.c.reset, statusColor, status, p.c.reset, d.Round(time.Millisecond))
	p.printJSON(respBody, "  ")
}

func (p *Printer) printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Fprintf(p.ErrWriter, "%s%s\n", prefix, string(data))
		return
	}
	fmt.Fprintln(p.ErrWriter, prefix+pretty.String())
}

// Raw writes a service response body unchanged (json format).
func (p *Printer) Raw(body []byte) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		p.Writer.Write(body)
		fmt.Fprintln(p.Writer)
		return
	}
	fmt.Fprintln(p.Writer, pretty.String())
}

// Cart prints the cart as a line table with its subtotal.
func (p *Printer) Cart(resp *CartResponse) {
	p.Notifications(resp.Notifications)
	if p.Quiet {
		fmt.Fprintln(p.Writer, resp.Cart.TotalQuantity)
		return
	}

	view := resp.Cart
	if len(view.Lines) == 0 {
		p.info("cart is empty")
		return
	}

	tw := tabwriter.NewWriter(p.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%sLINE\tITEM\tQTY\tUNIT\tTOTAL%s\n", p.c.bold, p.c.reset)
	for _, l := range view.Lines {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", l.ID, l.Title(), l.Quantity, l.UnitPrice, l.UnitPrice.Mul(l.Quantity))
	}
	tw.Flush()

	fmt.Fprintf(p.Writer, "\n%sSubtotal:%s %s (%d items)\n", p.c.bold, p.c.reset, view.Subtotal, view.TotalQuantity)
	if view.Pending > 0 {
		p.warning("%d change(s) still pending", view.Pending)
	}
	if resp.GuestEmailRequired {
		p.info("guest email required at checkout")
	}
}

// Availability prints how many more units of a selection can be added.
func (p *Printer) Availability(a *AvailabilityResponse) {
	if p.Quiet {
		if a.Remaining != nil {
			fmt.Fprintln(p.Writer, *a.Remaining)
		} else {
			fmt.Fprintln(p.Writer, a.Kind)
		}
		return
	}

	item := a.ProductID
	if a.VariantID != "" {
		item += "/" + a.VariantID
	}
	fmt.Fprintf(p.Writer, "%s%s%s: %s", p.c.bold, item, p.c.reset, a.Kind)
	if a.Remaining != nil {
		fmt.Fprintf(p.Writer, " (%d more can be added)", *a.Remaining)
	}
	fmt.Fprintf(p.Writer, ", %d in cart\n", a.InCart)
	if a.StockMessage != "" {
		p.warning("%s", a.StockMessage)
	}
	if a.AddDisabled {
		p.info("add to cart is disabled for this selection")
	}
}

// Notifications prints shopper-facing toasts.
func (p *Printer) Notifications(ns []cart.Notification) {
	if p.Quiet {
		return
	}
	for _, n := range ns {
		switch n.Level {
		case cart.LevelError:
			p.fail("%s", n.Message)
		default:
			p.success("%s", n.Message)
		}
	}
}

// Failure writes a command error as JSON, mirroring the service's error
// body. Text-mode errors are reported by the caller on stderr; a transient
// failure gets a retry hint.
func (p *Printer) Failure(err error) {
	var reqErr *RequestError
	isReq := errors.As(err, &reqErr)

	if p.Format != "json" {
		if isReq && reqErr.Retryable {
			p.info("temporary failure, try again in a moment")
		}
		return
	}

	body := struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			Retryable bool   `json:"retryable,omitempty"`
		} `json:"error"`
		Notifications []cart.Notification `json:"notifications,omitempty"`
	}{}
	if isReq {
		body.Error.Code = reqErr.Code
		body.Error.Message = reqErr.Message
		body.Error.Retryable = reqErr.Retryable
		body.Notifications = reqErr.Notifications
	} else {
		body.Error.Code = "COMMAND_ERROR"
		body.Error.Message = err.Error()
	}
	json.NewEncoder(p.Writer).Encode(body)
}

func (p *Printer) success(format string, args ...any) {
	if !p.Quiet {
		fmt.Fprintf(p.Writer, "%s✓ %s%s\n", p.c.green, fmt.Sprintf(format, args...), p.c.reset)
	}
}

func (p *Printer) fail(format string, args ...any) {
	fmt.Fprintf(p.ErrWriter, "%s✗ %s%s\n", p.c.red, fmt.Sprintf(format, args...), p.c.reset)
}

func (p *Printer) warning(format string, args ...any) {
	fmt.Fprintf(p.Writer, "%s⚠ %s%s\n", p.c.yellow, fmt.Sprintf(format, args...), p.c.reset)
}

func (p *Printer) info(format string, args ...any) {
	if !p.Quiet {
		fmt.Fprintf(p.Writer, "%s→ %s%s\n", p.c.gray, strings.TrimSpace(fmt.Sprintf(format, args...)), p.c.reset)
	}
}
