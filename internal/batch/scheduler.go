package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/juris/backend/internal/cases"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/cnj"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/movements"
	"github.com/juju/clock"
	"go.uber.org/zap"
)

const (
	// DefaultHour and DefaultMinute place the daily sweep at 03:00.
	DefaultHour   = 3
	DefaultMinute = 0

	outcomeSuccess = "success"
	outcomeError   = "error"
)

var (
	errMissingCases        = errors.New("batch: case lister is required")
	errMissingSynchronizer = errors.New("batch: synchronizer is required")
	errInvalidRunTime      = errors.New("batch: run time must be a valid hour and minute")
)

// CaseLister enumerates cases that have a stored process number.
type CaseLister interface {
	ListCaseIDsWithNumber(ctx context.Context) ([]cases.CaseNumber, error)
}

// CaseSynchronizer runs one synchronization for a case.
type CaseSynchronizer interface {
	SyncCase(ctx context.Context, caseID string) (*movements.Snapshot, error)
}

// Recorder receives batch tallies.
type Recorder interface {
	RecordBatchCase(outcome string)
	RecordBatchRun(finishedAt time.Time)
}

// SchedulerConfig describes the dependencies and run time of the Scheduler.
type SchedulerConfig struct {
	Cases        CaseLister
	Synchronizer CaseSynchronizer
	Clock        clock.Clock
	Hour         int
	Minute       int
	Location     *time.Location
	Logger       *zap.Logger
	Metrics      Recorder
}

// Result tallies one sweep.
type Result struct {
	Total   int
	Success int
	Error   int
}

// Scheduler sweeps every eligible case once a day.
type Scheduler struct {
	cases        CaseLister
	synchronizer CaseSynchronizer
	clock        clock.Clock
	hour         int
	minute       int
	location     *time.Location
	logger       *zap.Logger
	metrics      Recorder
}

// NewScheduler constructs a Scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Cases == nil {
		return nil, errMissingCases
	}
	if cfg.Synchronizer == nil {
		return nil, errMissingSynchronizer
	}
	if cfg.Hour < 0 || cfg.Hour > 23 || cfg.Minute < 0 || cfg.Minute > 59 {
		return nil, fmt.Errorf("%w: %02d:%02d", errInvalidRunTime, cfg.Hour, cfg.Minute)
	}
	wallClock := cfg.Clock
	if wallClock == nil {
		wallClock = clock.WallClock
	}
	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cases:        cfg.Cases,
		synchronizer: cfg.Synchronizer,
		clock:        wallClock,
		hour:         cfg.Hour,
		minute:       cfg.Minute,
		location:     location,
		logger:       logger,
		metrics:      cfg.Metrics,
	}, nil
}

// ListEligibleCaseIDs returns the cases whose stored number parses as a CNJ
// identifier. Malformed numbers are skipped silently.
func (s *Scheduler) ListEligibleCaseIDs(ctx context.Context) ([]string, error) {
	numbers, err := s.cases.ListCaseIDsWithNumber(ctx)
	if err != nil {
		return nil, err
	}
	eligible := make([]string, 0, len(numbers))
	for _, number := range numbers {
		if _, ok := cnj.Parse(number.Number); ok {
			eligible = append(eligible, number.ID)
		}
	}
	return eligible, nil
}

// RunBatch synchronizes every eligible case one at a time. A failing case is
// counted and skipped. Cancelling ctx stops the sweep between cases; the case
// in progress still runs to completion.
func (s *Scheduler) RunBatch(ctx context.Context) (Result, error) {
	ids, err := s.ListEligibleCaseIDs(ctx)
	if err != nil {
		s.logger.Error("batch listing failed", zap.Error(err))
		return Result{}, err
	}

	result := Result{Total: len(ids)}
	startedAt := s.clock.Now()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("batch interrupted",
				zap.Int("processed", result.Success+result.Error),
				zap.Int("total", result.Total))
			return result, err
		}
		if err := s.syncOne(context.WithoutCancel(ctx), id); err != nil {
			result.Error++
			s.record(outcomeError)
			s.logger.Warn("batch case failed", zap.String("case_id", id), zap.Error(err))
			continue
		}
		result.Success++
		s.record(outcomeSuccess)
	}

	finishedAt := s.clock.Now()
	if s.metrics != nil {
		s.metrics.RecordBatchRun(finishedAt)
	}
	s.logger.Info("batch finished",
		zap.Int("total", result.Total),
		zap.Int("success", result.Success),
		zap.Int("error", result.Error),
		zap.Duration("elapsed", finishedAt.Sub(startedAt)))
	return result, nil
}

// Run sleeps until the next configured wall-clock time, sweeps, and
// reschedules for the following day until ctx is cancelled. The next target
// is always recomputed from the current time.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		delay := NextRunDelay(s.clock.Now().In(s.location), s.hour, s.minute)
		s.logger.Info("batch scheduled", zap.Duration("in", delay))

		timer := s.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.Chan():
		}

		s.runScheduled(ctx)
	}
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("batch run panicked", zap.Any("panic", recovered))
		}
	}()
	if _, err := s.RunBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("batch run failed", zap.Error(err))
	}
}

func (s *Scheduler) syncOne(ctx context.Context, caseID string) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("synchronization panicked: %v", recovered)
		}
	}()
	_, err = s.synchronizer.SyncCase(ctx, caseID)
	return err
}

func (s *Scheduler) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordBatchCase(outcome)
	}
}

// NextRunDelay returns the time from now until the next hour:minute in now's
// location. A target equal to now is pushed to the following day.
func NextRunDelay(now time.Time, hour, minute int) time.Duration {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !target.After(now) {
		target = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return target.Sub(now)
}
