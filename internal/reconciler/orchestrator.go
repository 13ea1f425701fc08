package reconciler

import (
	"context"
	"fmt"
	"sync"

	"cheque-report-service/internal/period"
	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

// Sink receives a finished report
type Sink interface {
	Name() string
	Deliver(ctx context.Context, result *ReportResult) error
}

// RunProgress describes where a run currently is
type RunProgress struct {
	Step      string `json:"step"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// ProgressCallback is called as a run moves between steps
type ProgressCallback func(RunProgress)

// ReportOrchestrator ties one report run together: pick the periods from the
// clock, generate the report and hand it to every sink in order.
type ReportOrchestrator struct {
	service *ReportService
	clock   period.Clock
	sinks   []Sink
	logger  logger.Logger

	progressCallbacks []ProgressCallback
	progressMutex     sync.Mutex
}

// NewReportOrchestrator creates an orchestrator for service
func NewReportOrchestrator(service *ReportService, clock period.Clock, sinks ...Sink) (*ReportOrchestrator, error) {
	if service == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "report_service", nil, nil).
			WithSuggestion("Provide a valid ReportService instance")
	}
	if clock == nil {
		clock = period.SystemClock{}
	}

	return &ReportOrchestrator{
		service: service,
		clock:   clock,
		sinks:   sinks,
		logger:  logger.GetGlobalLogger().WithComponent("report_orchestrator"),
	}, nil
}

// AddSink appends a sink
func (ro *ReportOrchestrator) AddSink(sink Sink) {
	ro.sinks = append(ro.sinks, sink)
}

// AddProgressCallback adds a progress callback function
func (ro *ReportOrchestrator) AddProgressCallback(callback ProgressCallback) {
	ro.progressMutex.Lock()
	defer ro.progressMutex.Unlock()
	ro.progressCallbacks = append(ro.progressCallbacks, callback)
}

func (ro *ReportOrchestrator) notify(step string, completed, total int) {
	ro.progressMutex.Lock()
	callbacks := append([]ProgressCallback(nil), ro.progressCallbacks...)
	ro.progressMutex.Unlock()

	progress := RunProgress{Step: step, Completed: completed, Total: total}
	for _, callback := range callbacks {
		callback(progress)
	}
}

// Run generates the report for the clock's current month and delivers it.
// The first failing sink aborts delivery to the remaining sinks.
func (ro *ReportOrchestrator) Run(ctx context.Context) (*ReportResult, error) {
	now := ro.clock.Now()
	request := NewReportRequest(now)
	total := 1 + len(ro.sinks)

	ro.logger.WithFields(logger.Fields{
		"as_of":  now.Format("2006-01-02"),
		"period": request.Periods.Current.String(),
		"sinks":  len(ro.sinks),
	}).Info("Starting report run")

	ro.notify("generate", 0, total)
	result, err := ro.service.Generate(ctx, request)
	if err != nil {
		ro.logger.WithError(err).Error("Report generation failed")
		return nil, err
	}

	for i, sink := range ro.sinks {
		ro.notify("deliver:"+sink.Name(), i+1, total)
		if err := sink.Deliver(ctx, result); err != nil {
			ro.logger.WithError(err).WithField("sink", sink.Name()).Error("Report delivery failed")
			return result, errors.WrapIfNeeded(err, errors.CategoryReport, errors.CodeDeliveryFailed,
				fmt.Sprintf("failed to deliver report to %s", sink.Name()))
		}
		ro.logger.WithField("sink", sink.Name()).Debug("Report delivered")
	}

	ro.notify("done", total, total)
	ro.logger.WithField("run_id", result.RunID.String()).Info("Report run completed")
	return result, nil
}
