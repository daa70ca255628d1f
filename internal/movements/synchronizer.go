package movements

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/juris/backend/internal/cases"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/cnj"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/datajud"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	opSynchronizerNew = "movements.synchronizer.new"
	opSyncCase        = "movements.sync_case"

	tracerName = "github.com/MarcoPoloResearchLab/juris/backend/internal/movements"

	messageInvalidIdentifier = "case number is not a valid CNJ identifier"
	messageNotFound          = "no process found for the canonical number"
)

// CaseRepository is the case-record collaborator the synchronizer projects onto.
type CaseRepository interface {
	GetCaseByID(ctx context.Context, id string) (cases.Case, error)
	UpdateProjection(ctx context.Context, id string, update cases.ProjectionUpdate) (cases.ProjectionOutcome, error)
}

// MovementFetcher retrieves the provider document for one identifier.
type MovementFetcher interface {
	FetchMovements(ctx context.Context, id cnj.Identifier) (datajud.FetchResult, error)
}

// MovementEvent reports that a case's latest movement date advanced.
type MovementEvent struct {
	CaseID         string
	SnapshotID     string
	LastMovementAt time.Time
}

// MovementNotifier receives movement events after the projection commits.
type MovementNotifier interface {
	NotifyMovement(event MovementEvent)
}

// SyncRecorder counts synchronization attempts by status.
type SyncRecorder interface {
	RecordSyncAttempt(status string)
}

// SynchronizerConfig describes the dependencies of the Synchronizer.
type SynchronizerConfig struct {
	Cases    CaseRepository
	Fetcher  MovementFetcher
	Store    *Store
	Clock    func() time.Time
	Logger   *zap.Logger
	Notifier MovementNotifier
	Metrics  SyncRecorder
}

// Synchronizer refreshes one case against the judiciary search service.
type Synchronizer struct {
	cases    CaseRepository
	fetcher  MovementFetcher
	store    *Store
	clock    func() time.Time
	logger   *zap.Logger
	notifier MovementNotifier
	metrics  SyncRecorder
}

// NewSynchronizer constructs a Synchronizer.
func NewSynchronizer(cfg SynchronizerConfig) (*Synchronizer, error) {
	if cfg.Cases == nil {
		return nil, newServiceError(opSynchronizerNew, "missing_cases", errMissingCases)
	}
	if cfg.Fetcher == nil {
		return nil, newServiceError(opSynchronizerNew, "missing_fetcher", errMissingFetcher)
	}
	if cfg.Store == nil {
		return nil, newServiceError(opSynchronizerNew, "missing_store", errMissingStore)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		cases:    cfg.Cases,
		fetcher:  cfg.Fetcher,
		store:    cfg.Store,
		clock:    clock,
		logger:   logger,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
	}, nil
}

// SyncCase runs one synchronization to a terminal state. It returns the new
// snapshot on a hit, nil on a miss, and an error when the case is unknown,
// its number is invalid, or the fetch or persistence fails. Every outcome
// except an unknown case is recorded in the sync log.
func (s *Synchronizer) SyncCase(ctx context.Context, caseID string) (*Snapshot, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "movements.sync_case")
	defer span.End()
	span.SetAttributes(attribute.String("case.id", caseID))

	snapshot, status, err := s.syncCase(ctx, caseID)
	if status != "" {
		span.SetAttributes(attribute.String("sync.status", string(status)))
		if s.metrics != nil {
			s.metrics.RecordSyncAttempt(string(status))
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return snapshot, err
}

func (s *Synchronizer) syncCase(ctx context.Context, caseID string) (*Snapshot, SyncStatus, error) {
	record, err := s.cases.GetCaseByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, cases.ErrCaseNotFound) || errors.Is(err, cases.ErrInvalidCaseID) {
			return nil, "", err
		}
		s.logError(opSyncCase, "case_load_failed", err, zap.String("case_id", caseID))
		return nil, "", newServiceError(opSyncCase, "case_load_failed", err)
	}

	identifier, ok := cnj.Parse(record.Number)
	if !ok {
		s.appendLog(ctx, LogInput{CaseID: caseID, Status: StatusInvalid, Message: messageInvalidIdentifier})
		return nil, StatusInvalid, ErrInvalidIdentifier
	}
	canonical, _ := identifier.Digits()

	result, err := s.fetcher.FetchMovements(ctx, identifier)
	if err != nil {
		s.logger.Warn("movement fetch failed",
			zap.String("case_id", caseID),
			zap.String("tribunal_alias", result.Alias),
			zap.Error(err))
		s.appendLog(ctx, LogInput{
			CaseID:          caseID,
			Status:          StatusError,
			Message:         err.Error(),
			CanonicalNumber: canonical,
			TribunalAlias:   result.Alias,
		})
		return nil, StatusError, err
	}

	if result.Hit == nil {
		s.appendLog(ctx, LogInput{
			CaseID:          caseID,
			Status:          StatusNotFound,
			Message:         messageNotFound,
			CanonicalNumber: result.CanonicalNumber,
			TribunalAlias:   result.Alias,
		})
		return nil, StatusNotFound, nil
	}

	var lastMovementAt *time.Time
	if resolved, found := result.Hit.LastMovementAt(); found {
		lastMovementAt = &resolved
	}

	snapshot, err := s.store.SaveSnapshot(ctx, SnapshotInput{
		CaseID:          caseID,
		CanonicalNumber: result.CanonicalNumber,
		TribunalAlias:   result.Alias,
		LastMovementAt:  lastMovementAt,
		Payload:         result.Hit,
	})
	if err != nil {
		s.appendLog(ctx, LogInput{
			CaseID:          caseID,
			Status:          StatusError,
			Message:         err.Error(),
			CanonicalNumber: result.CanonicalNumber,
			TribunalAlias:   result.Alias,
		})
		return nil, StatusError, err
	}

	outcome, err := s.cases.UpdateProjection(ctx, caseID, cases.ProjectionUpdate{
		LastMovementAt: lastMovementAt,
		SyncedAt:       s.clock().UTC(),
	})
	if err != nil {
		s.logError(opSyncCase, "projection_failed", err, zap.String("case_id", caseID))
		s.appendLog(ctx, LogInput{
			CaseID:          caseID,
			Status:          StatusError,
			Message:         err.Error(),
			CanonicalNumber: result.CanonicalNumber,
			TribunalAlias:   result.Alias,
		})
		return nil, StatusError, newServiceError(opSyncCase, "projection_failed", err)
	}
	if outcome.Advanced && s.notifier != nil && lastMovementAt != nil {
		s.notifier.NotifyMovement(MovementEvent{
			CaseID:         caseID,
			SnapshotID:     snapshot.ID,
			LastMovementAt: *lastMovementAt,
		})
	}

	var contextMovement any
	if lastMovementAt != nil {
		contextMovement = lastMovementAt.UTC().Format(time.RFC3339Nano)
	}
	s.appendLog(ctx, LogInput{
		CaseID:          caseID,
		Status:          StatusSuccess,
		CanonicalNumber: result.CanonicalNumber,
		TribunalAlias:   result.Alias,
		Context:         map[string]any{"lastMovementAt": contextMovement},
	})
	return &snapshot, StatusSuccess, nil
}

// appendLog writes the audit row; a failed write never changes the sync outcome.
func (s *Synchronizer) appendLog(ctx context.Context, input LogInput) {
	if err := s.store.AppendLog(ctx, input); err != nil {
		s.logger.Warn("sync log write dropped",
			zap.String("case_id", input.CaseID),
			zap.String("status", string(input.Status)),
			zap.Error(err))
	}
}

func (s *Synchronizer) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("movements synchronizer error", attrs...)
}
