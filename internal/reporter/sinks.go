package reporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cheque-report-service/internal/reconciler"
	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

// DefaultFileName returns EIBQEPC1_MMYYYY.<ext> for the result's reporting month
func DefaultFileName(result *reconciler.ReportResult, format OutputFormat) string {
	return fmt.Sprintf("%s_%s.%s", result.Header.ReportID, result.Periods.Current.Label(), format.Extension())
}

// WriterSink renders the report to an io.Writer such as stdout
type WriterSink struct {
	name      string
	generator *ReportGenerator
	writer    io.Writer
}

// NewWriterSink creates a sink writing to w
func NewWriterSink(name string, generator *ReportGenerator, w io.Writer) *WriterSink {
	return &WriterSink{name: name, generator: generator, writer: w}
}

// Name implements reconciler.Sink
func (s *WriterSink) Name() string {
	return s.name
}

// Deliver implements reconciler.Sink
func (s *WriterSink) Deliver(ctx context.Context, result *reconciler.ReportResult) error {
	if err := ctx.Err(); err != nil {
		return errors.InternalError(errors.CodeCancelled, "report delivery", err)
	}
	return s.generator.GenerateReport(result, s.writer)
}

// FileSink writes the report to a file. The file is written to a temporary
// name in the same directory and renamed into place once complete.
type FileSink struct {
	generator *ReportGenerator
	path      string
	logger    logger.Logger
}

// NewFileSink creates a sink writing to path. A path ending in a separator or
// naming an existing directory receives DefaultFileName.
func NewFileSink(generator *ReportGenerator, path string) *FileSink {
	return &FileSink{
		generator: generator,
		path:      path,
		logger:    logger.GetGlobalLogger().WithComponent("file_sink"),
	}
}

// Name implements reconciler.Sink
func (s *FileSink) Name() string {
	return "file"
}

// ResolvePath returns the file the result will be written to
func (s *FileSink) ResolvePath(result *reconciler.ReportResult) string {
	if s.path == "" {
		return DefaultFileName(result, s.generator.config.Format)
	}
	if os.IsPathSeparator(s.path[len(s.path)-1]) {
		return filepath.Join(s.path, DefaultFileName(result, s.generator.config.Format))
	}
	if info, err := os.Stat(s.path); err == nil && info.IsDir() {
		return filepath.Join(s.path, DefaultFileName(result, s.generator.config.Format))
	}
	return s.path
}

// Deliver implements reconciler.Sink
func (s *FileSink) Deliver(ctx context.Context, result *reconciler.ReportResult) error {
	if err := ctx.Err(); err != nil {
		return errors.InternalError(errors.CodeCancelled, "report delivery", err)
	}

	path := s.ResolvePath(result)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fileError(dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fileError(dir, err)
	}
	defer os.Remove(tmp.Name())

	if err := s.generator.GenerateReport(result, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fileError(tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fileError(path, err)
	}

	s.logger.WithFields(logger.Fields{
		"path":   path,
		"format": s.generator.config.Format,
	}).Info("Report written")
	return nil
}
