package reporter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"cheque-report-service/pkg/errors"
)

// wrapGenerationError converts a rendering failure into a ReportError naming the output
func wrapGenerationError(err error, format OutputFormat, writer io.Writer) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsReportError(err); ok {
		return err
	}

	reportErr := errors.ReportingError(errors.CodeRenderFailed, string(format), err).
		WithContext("output", getWriterDescription(writer))
	if isSpaceError(err) {
		reportErr = reportErr.WithSuggestion("Free up disk space or choose another output location")
	}
	return reportErr
}

// fileError maps an os error on path to the matching file error code
func fileError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return errors.FileError(errors.CodeFileNotFound, path, err)
	case os.IsPermission(err):
		return errors.FileError(errors.CodeFilePermission, path, err)
	default:
		return errors.FileError(errors.CodeDirectoryError, path, err)
	}
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		switch w {
		case os.Stdout:
			return "stdout"
		case os.Stderr:
			return "stderr"
		}
		return w.Name()
	case nil:
		return "none"
	default:
		return fmt.Sprintf("%T", writer)
	}
}

func isSpaceError(err error) bool {
	if errors.Is(err, syscall.ENOSPC) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left") || strings.Contains(msg, "disk full")
}
