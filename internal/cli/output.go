package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/shopsync/internal/admin"
	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/optimistic"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The action was refused or failed (rejection, invalid cart, failed scenario)
	ExitCommandError = 2 // Command error (bad config, unreadable paths, bad arguments)
)

// Error codes for outcomes that are not failure kinds.
const (
	CodeInFlight = "IN_FLIGHT"
	CodeDeclined = "DECLINED"
	CodeCommand  = "COMMAND"
	CodeInternal = "ERROR"
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

// reported marks an error whose message was already written by Fail.
type reported struct {
	err *ExitError
}

func (r reported) Error() string { return r.err.Error() }

func (r reported) Unwrap() error { return r.err }

// IsReported reports whether err was already shown to the user.
func IsReported(err error) bool {
	var r reported
	return errors.As(err, &r)
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer

	mu      sync.Mutex
	notices []string
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string    `json:"status"`            // "ok" or "error"
	Data    any       `json:"data,omitempty"`    // success payload
	Error   *CLIError `json:"error,omitempty"`   // error details
	Notices []string  `json:"notices,omitempty"` // confirmations published during the command
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // failure kind, e.g. "REMOTE_REJECTION"
	Message string `json:"message"`           // user-visible description
	Details any    `json:"details,omitempty"` // additional context
}

// Notice queues a confirmation message to print with the result.
func (f *OutputFormatter) Notice(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, msg)
}

func (f *OutputFormatter) takeNotices() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.notices
	f.notices = nil
	return n
}

// Success outputs text in text mode and data in JSON mode.
func (f *OutputFormatter) Success(text string, data any) error {
	notices := f.takeNotices()
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data, Notices: notices})
	}

	for _, n := range notices {
		fmt.Fprintln(f.Writer, n)
	}
	if text != "" {
		fmt.Fprint(f.Writer, text)
	}
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	notices := f.takeNotices()
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status:  "error",
			Error:   &CLIError{Code: code, Message: message, Details: details},
			Notices: notices,
		})
	}

	for _, n := range notices {
		fmt.Fprintln(f.Writer, n)
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err to the user and returns the ExitError the command
// should return. prefix is prepended to remote failures, e.g.
// "Failed to place order".
func (f *OutputFormatter) Fail(prefix string, err error) error {
	code, exit := classify(err)
	msg := failure.Describe(err)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		msg = exitErr.Error()
	}
	if prefix != "" && failure.IsRemote(err) {
		msg = prefix + ": " + msg
	}
	if werr := f.Error(code, msg, nil); werr != nil {
		return werr
	}
	return reported{WrapExitError(exit, msg, err)}
}

// classify maps err to an error code and exit code.
func classify(err error) (string, int) {
	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		return CodeCommand, exitErr.Code
	case errors.Is(err, optimistic.ErrInFlight):
		return CodeInFlight, ExitFailure
	case errors.Is(err, admin.ErrDeclined):
		return CodeDeclined, ExitFailure
	}
	if kind := failure.KindOf(err); kind != "" {
		return string(kind), ExitFailure
	}
	return CodeInternal, ExitFailure
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

var printer = message.NewPrinter(language.English)

// formatMoney renders an amount with thousands grouping and two decimals.
func formatMoney(v float64) string {
	return printer.Sprintf("%.2f", v)
}
