package movements

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	opStoreNew     = "movements.store.new"
	opSaveSnapshot = "movements.save_snapshot"
	opLatest       = "movements.latest_snapshot"
	opAppendLog    = "movements.append_log"
	opListLogs     = "movements.list_logs"

	// DefaultLogLimit bounds ListLogs when no positive limit is supplied.
	DefaultLogLimit = 20
	// MaxLogLimit is the largest page ListLogs returns.
	MaxLogLimit = 100
)

// StoreConfig describes the dependencies of the snapshot store and sync log.
type StoreConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Store persists append-only snapshots and sync-log rows.
type Store struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewStore constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opStoreNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// SaveSnapshot appends a snapshot and returns the created row.
func (s *Store) SaveSnapshot(ctx context.Context, input SnapshotInput) (Snapshot, error) {
	payload, err := json.Marshal(input.Payload)
	if err != nil {
		s.logError(opSaveSnapshot, "payload_encode_failed", err, zap.String("case_id", input.CaseID))
		return Snapshot{}, newServiceError(opSaveSnapshot, "payload_encode_failed", err)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSaveSnapshot, "id_generation_failed", err, zap.String("case_id", input.CaseID))
		return Snapshot{}, newServiceError(opSaveSnapshot, "id_generation_failed", err)
	}

	snapshot := Snapshot{
		ID:              id,
		CaseID:          input.CaseID,
		Source:          SourceDatajud,
		CanonicalNumber: input.CanonicalNumber,
		TribunalAlias:   input.TribunalAlias,
		Payload:         datatypes.JSON(payload),
		CreatedAtMilli:  s.clock().UTC().UnixMilli(),
	}
	if input.LastMovementAt != nil {
		value := input.LastMovementAt.UTC().UnixMilli()
		snapshot.LastMovementAtMilli = &value
	}

	if err := s.db.WithContext(ctx).Create(&snapshot).Error; err != nil {
		s.logError(opSaveSnapshot, "insert_failed", err, zap.String("case_id", input.CaseID))
		return Snapshot{}, newServiceError(opSaveSnapshot, "insert_failed", err)
	}
	return snapshot, nil
}

// LatestSnapshot returns the newest snapshot for the case, or nil when none exists.
func (s *Store) LatestSnapshot(ctx context.Context, caseID string) (*Snapshot, error) {
	var snapshot Snapshot
	err := s.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at_ms DESC").
		Order("id DESC").
		Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opLatest, "query_failed", err, zap.String("case_id", caseID))
		return nil, newServiceError(opLatest, "query_failed", err)
	}
	return &snapshot, nil
}

// AppendLog records one synchronization attempt. Failures are logged and
// returned, but callers treat the audit trail as best effort.
func (s *Store) AppendLog(ctx context.Context, input LogInput) error {
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAppendLog, "id_generation_failed", err, zap.String("case_id", input.CaseID))
		return newServiceError(opAppendLog, "id_generation_failed", err)
	}

	entry := SyncLogEntry{
		ID:              id,
		CaseID:          optionalString(input.CaseID),
		Status:          input.Status,
		Message:         optionalString(input.Message),
		CanonicalNumber: optionalString(input.CanonicalNumber),
		TribunalAlias:   optionalString(input.TribunalAlias),
		CreatedAtMilli:  s.clock().UTC().UnixMilli(),
	}
	if input.Context != nil {
		encoded, err := json.Marshal(input.Context)
		if err != nil {
			s.logError(opAppendLog, "context_encode_failed", err, zap.String("case_id", input.CaseID))
			return newServiceError(opAppendLog, "context_encode_failed", err)
		}
		entry.Context = datatypes.JSON(encoded)
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logError(opAppendLog, "insert_failed", err,
			zap.String("case_id", input.CaseID),
			zap.String("status", string(input.Status)))
		return newServiceError(opAppendLog, "insert_failed", err)
	}
	return nil
}

// ListLogs returns up to limit sync-log rows for the case, most recent first.
func (s *Store) ListLogs(ctx context.Context, caseID string, limit int) ([]SyncLogEntry, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}
	var entries []SyncLogEntry
	if err := s.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at_ms DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		s.logError(opListLogs, "query_failed", err, zap.String("case_id", caseID))
		return nil, newServiceError(opListLogs, "query_failed", err)
	}
	return entries, nil
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("movements store error", attrs...)
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
