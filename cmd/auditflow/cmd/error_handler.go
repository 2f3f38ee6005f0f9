package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// CLIErrorHandler turns command errors into messages and exit codes
type CLIErrorHandler struct {
	logger  logger.Logger
	out     io.Writer
	verbose bool
}

// NewCLIErrorHandler creates a handler writing to stderr
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		out:     os.Stderr,
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}
	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range err.ContextKeys() {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case isFileNotFoundError(err):
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	case isPermissionError(err):
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	case isDiskFullError(err):
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	// cobra's own flag and argument errors land here
	fmt.Fprintf(h.out, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(h.out, "Run with --help for usage or --verbose for details\n")
	}
	return 1
}

func getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that the file exists and is readable
• Verify the path (use an absolute path if needed)
• Check the permissions of the output directory`

	case errors.CategoryParse:
		return `Parse error help:
• Check the CSV header row against 'auditflow import-bank --help'
• Amounts must be plain numbers; dates YYYY-MM-DD or DD/MM/YYYY
• Fixtures files must be JSON without unknown fields`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required fields have values
• Dates use YYYY-MM-DD and periods YYYY-MM
• Allocations use INVOICE_ID=AMOUNT with a positive amount`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and AUDITFLOW_ environment variables
• Verify the config file syntax if using --config
• Choose one store: --fixtures, --sqlite or --database-url`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• Check that the documents belong to the same vendor and organization
• Review matching thresholds under reconciler.matcher in the config file`

	case errors.CategoryNotFound:
		return `Lookup error help:
• Check the id and the --org flag
• Make sure the store holds the document (load it with --fixtures or an import command)`

	case errors.CategoryStorage, errors.CategoryNetwork:
		return `Connection error help:
• Check the database URL or SQLite path
• Check that PostgreSQL, Redis and the oracle endpoint are reachable`

	default:
		return `For more help:
• Use 'auditflow --help' for general help
• Use 'auditflow <command> --help' for command-specific help`
	}
}

func isFileNotFoundError(err error) bool {
	return stderrors.Is(err, os.ErrNotExist) || strings.Contains(err.Error(), "no such file or directory")
}

func isPermissionError(err error) bool {
	return stderrors.Is(err, os.ErrPermission) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func isDiskFullError(err error) bool {
	if stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full")
}
