package logger

import (
	"time"
)

// StageTiming records how long one pipeline stage took and how many rows it produced.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration"`
}

// StageTracker logs the start and completion of each pipeline stage
// and keeps the timings for the run summary.
type StageTracker struct {
	logger    Logger
	operation string
	startTime time.Time
	current   string
	stageFrom time.Time
	timings   []StageTiming
	now       func() time.Time
}

// NewStageTracker creates a tracker for a single run of the named operation.
func NewStageTracker(operation string, logger Logger) *StageTracker {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	st := &StageTracker{
		logger:    logger.WithComponent("stage"),
		operation: operation,
		now:       time.Now,
	}
	st.startTime = st.now()

	st.logger.WithField("operation", operation).Info("Starting operation")
	return st
}

// Begin marks the start of a stage. A stage left open by a previous Begin is closed with zero rows.
func (st *StageTracker) Begin(stage string) {
	if st.current != "" {
		st.Done(0)
	}
	st.current = stage
	st.stageFrom = st.now()
	st.logger.WithFields(Fields{
		"operation": st.operation,
		"stage":     stage,
	}).Debug("Stage started")
}

// Done closes the current stage and logs the number of rows it produced.
func (st *StageTracker) Done(rows int) {
	if st.current == "" {
		return
	}

	timing := StageTiming{
		Stage:    st.current,
		Rows:     rows,
		Duration: st.now().Sub(st.stageFrom),
	}
	st.timings = append(st.timings, timing)
	st.current = ""

	st.logger.WithFields(Fields{
		"operation": st.operation,
		"stage":     timing.Stage,
		"rows":      timing.Rows,
		"duration":  timing.Duration.String(),
	}).Info("Stage completed")
}

// Fail closes the current stage with an error.
func (st *StageTracker) Fail(err error) {
	stage := st.current
	st.current = ""

	st.logger.WithError(err).WithFields(Fields{
		"operation": st.operation,
		"stage":     stage,
		"duration":  st.now().Sub(st.startTime).String(),
		"status":    "error",
	}).Error("Operation failed")
}

// Complete logs the total duration of the operation.
func (st *StageTracker) Complete() time.Duration {
	if st.current != "" {
		st.Done(0)
	}
	total := st.now().Sub(st.startTime)

	st.logger.WithFields(Fields{
		"operation": st.operation,
		"stages":    len(st.timings),
		"duration":  total.String(),
		"status":    "success",
	}).Info("Operation completed")

	return total
}

// Timings returns the recorded stage timings in execution order.
func (st *StageTracker) Timings() []StageTiming {
	out := make([]StageTiming, len(st.timings))
	copy(out, st.timings)
	return out
}

// TimedOperation executes a function and logs timing information
func TimedOperation(operation string, logger Logger, fn func() error) error {
	st := NewStageTracker(operation, logger)

	if err := fn(); err != nil {
		st.Fail(err)
		return err
	}

	st.Complete()
	return nil
}
