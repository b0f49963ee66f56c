package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/roach88/geoquery/internal/filegdb"
	"github.com/roach88/geoquery/internal/query"
	"github.com/roach88/geoquery/internal/schema"
	"github.com/roach88/geoquery/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Query failure (bad filter, unsupported operator, row errors)
	ExitCommandError = 2 // Command error (invalid flags, schema not found, database not found)
)

// Error codes reported in CLI output.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeSchemaLoad  = "E002" // Schema file missing or invalid
	ErrCodeParse       = "E003" // Malformed filter or query option
	ErrCodeSchema      = "E004" // Field or table not in the schema
	ErrCodeUnsupported = "E005" // Operator or expression has no translation
	ErrCodeCannotEval  = "E006" // Condition cannot be evaluated in memory
	ErrCodeStore       = "E007" // Backend failure
	ErrCodeRow         = "E008" // Write failure confined to one record
	ErrCodeUsage       = "E009" // Invalid flag combination
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
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
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode maps an error onto the CLI error code reported for it.
func ErrorCode(err error) string {
	var schemaErr *schema.Error
	switch {
	case isUsageError(err):
		return ErrCodeUsage
	case errors.As(err, &schemaErr):
		return ErrCodeSchemaLoad
	case query.IsParseError(err):
		return ErrCodeParse
	case query.IsSchemaError(err):
		return ErrCodeSchema
	case query.IsUnsupportedOperator(err), query.IsUnsupportedExpression(err):
		return ErrCodeUnsupported
	case query.IsCannotFilter(err):
		return ErrCodeCannotEval
	case store.IsRowError(err):
		return ErrCodeRow
	case filegdb.NativeCode(err) != 0:
		return ErrCodeStore
	default:
		return ErrCodeGeneric
	}
}

// isUsageError reports whether the innermost ExitError of err carries no
// cause, which is how flag validation failures are built.
func isUsageError(err error) bool {
	var exitErr *ExitError
	for errors.As(err, &exitErr) {
		if exitErr.Err == nil {
			return true
		}
		err = exitErr.Err
	}
	return false
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
func (f *OutputFormatter) Fail(exitCode int, message string, err error) error {
	_ = f.Error(ErrorCode(err), fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(exitCode, message, err)
}

// Table outputs rows under a header. Text output is an aligned table; JSON
// output is a list of objects keyed by header.
func (f *OutputFormatter) Table(header []string, rows [][]string) error {
	if f.Format == "json" {
		objs := make([]map[string]string, len(rows))
		for i, row := range rows {
			obj := make(map[string]string, len(header))
			for j, h := range header {
				obj[h] = row[j]
			}
			objs[i] = obj
		}
		return f.Success(objs)
	}

	table := tablewriter.NewWriter(f.Writer)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
