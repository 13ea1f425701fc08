package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose") || verbose,
		out:     os.Stderr,
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if reportErr, ok := errors.AsReportError(err); ok {
		return h.handleReportError(reportErr)
	}
	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReportError(err *errors.ReportError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case h.isFileNotFoundError(err):
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	case h.isPermissionError(err):
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	case h.isDiskFullError(err):
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(h.out, "\nRun with --verbose for more detail\n")
	}
	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that the DPLDmmyyyy.csv and LNLDmmyyyy.csv extracts exist for all three months
• Verify --csv-dir and the file name patterns
• Ensure you have permission to read the extracts and write the output`

	case errors.CategoryParse:
		return `Parse error help:
• Verify the extract has the ACCTNO, TRANDT and TRANAMT columns
• Check that the file is comma separated and UTF-8 encoded
• Use 'chequereport generate-sample' to see the expected layout`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that all required fields have values
• Verify dates use YYYY-MM-DD or DDMONYYYY`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and CHEQUEREPORT_* variables
• Verify configuration file syntax if using --config
• Use 'chequereport report --help' to see all available options`

	case errors.CategorySource:
		return `Data source error help:
• Check that the database is reachable and the dpld/lnld tables exist
• Run 'chequereport init-db' to create the tables in a sqlite database
• Confirm the ledgers have been loaded for the reporting month`

	case errors.CategoryReport:
		return `Report error help:
• Check the output path and the SMTP settings
• Try --output-format console to rule out delivery problems`

	default:
		return `For more help:
• Use 'chequereport --help' for general help
• Use 'chequereport report --help' for command-specific help`
	}
}

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if errors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full")
}
