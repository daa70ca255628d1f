package cases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrCaseNotFound indicates that no case exists for the requested identifier.
	ErrCaseNotFound = errors.New("cases: case not found")
	// ErrInvalidCaseID indicates that a case identifier is empty.
	ErrInvalidCaseID = errors.New("cases: invalid case id")

	errMissingDatabase = errors.New("database handle is required")
)

const (
	opGetCase          = "cases.get_case"
	opUpdateProjection = "cases.update_projection"
	opMarkSeen         = "cases.mark_seen"
	opListNumbers      = "cases.list_case_numbers"
	opCreateCase       = "cases.create_case"

	columnID                = "id"
	columnLastMovementAt    = "last_movement_at_ms"
	columnLastSyncedAt      = "last_synced_at_ms"
	columnHasUnseenMovement = "has_unseen_movement"
	queryCaseID             = columnID + " = ?"
	queryMovementAdvances   = columnID + " = ? AND (" + columnLastMovementAt + " IS NULL OR " + columnLastMovementAt + " < ?)"
)

// RepositoryConfig describes the dependencies of the case repository.
type RepositoryConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Repository reads case records and applies the movement projection to them.
type Repository struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewRepository constructs a Repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("%s: %w", "cases.repository.new", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Create inserts a case record. CreatedAtMilli defaults to the repository clock.
func (r *Repository) Create(ctx context.Context, record Case) (Case, error) {
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return Case{}, ErrInvalidCaseID
	}
	if record.CreatedAtMilli == 0 {
		record.CreatedAtMilli = r.clock().UTC().UnixMilli()
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		r.logError(opCreateCase, err, zap.String("case_id", record.ID))
		return Case{}, fmt.Errorf("%s: %w", opCreateCase, err)
	}
	return record, nil
}

// GetCaseByID loads one case record.
func (r *Repository) GetCaseByID(ctx context.Context, id string) (Case, error) {
	if strings.TrimSpace(id) == "" {
		return Case{}, ErrInvalidCaseID
	}
	var record Case
	err := r.db.WithContext(ctx).Where(queryCaseID, id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Case{}, ErrCaseNotFound
	}
	if err != nil {
		r.logError(opGetCase, err, zap.String("case_id", id))
		return Case{}, fmt.Errorf("%s: %w", opGetCase, err)
	}
	return record, nil
}

// UpdateProjection records a synchronization on the case. The movement date
// only moves forward: a conditional update sets it (and flags the case as
// having an unseen movement) only when the stored value is absent or older.
// The synchronization time is always recorded.
func (r *Repository) UpdateProjection(ctx context.Context, id string, update ProjectionUpdate) (ProjectionOutcome, error) {
	if strings.TrimSpace(id) == "" {
		return ProjectionOutcome{}, ErrInvalidCaseID
	}
	syncedAt := update.SyncedAt.UTC().UnixMilli()
	db := r.db.WithContext(ctx)

	if update.LastMovementAt != nil {
		movementAt := update.LastMovementAt.UTC().UnixMilli()
		result := db.Model(&Case{}).
			Where(queryMovementAdvances, id, movementAt).
			Updates(map[string]any{
				columnLastMovementAt:    movementAt,
				columnHasUnseenMovement: true,
				columnLastSyncedAt:      syncedAt,
			})
		if result.Error != nil {
			r.logError(opUpdateProjection, result.Error, zap.String("case_id", id))
			return ProjectionOutcome{}, fmt.Errorf("%s: %w", opUpdateProjection, result.Error)
		}
		if result.RowsAffected > 0 {
			return ProjectionOutcome{Advanced: true}, nil
		}
	}

	result := db.Model(&Case{}).Where(queryCaseID, id).Update(columnLastSyncedAt, syncedAt)
	if result.Error != nil {
		r.logError(opUpdateProjection, result.Error, zap.String("case_id", id))
		return ProjectionOutcome{}, fmt.Errorf("%s: %w", opUpdateProjection, result.Error)
	}
	if result.RowsAffected == 0 {
		return ProjectionOutcome{}, ErrCaseNotFound
	}
	return ProjectionOutcome{Advanced: false}, nil
}

// MarkSeen clears the unseen-movement flag unconditionally.
func (r *Repository) MarkSeen(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidCaseID
	}
	result := r.db.WithContext(ctx).Model(&Case{}).Where(queryCaseID, id).Update(columnHasUnseenMovement, false)
	if result.Error != nil {
		r.logError(opMarkSeen, result.Error, zap.String("case_id", id))
		return fmt.Errorf("%s: %w", opMarkSeen, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCaseNotFound
	}
	return nil
}

// ListCaseIDsWithNumber returns every case that has a non-empty stored number,
// ordered by identifier.
func (r *Repository) ListCaseIDsWithNumber(ctx context.Context) ([]CaseNumber, error) {
	var numbers []CaseNumber
	err := r.db.WithContext(ctx).
		Model(&Case{}).
		Select("id, numero_processo").
		Where("TRIM(numero_processo) <> ''").
		Order("id ASC").
		Scan(&numbers).Error
	if err != nil {
		r.logError(opListNumbers, err)
		return nil, fmt.Errorf("%s: %w", opListNumbers, err)
	}
	return numbers, nil
}

func (r *Repository) logError(operation string, err error, fields ...zap.Field) {
	attrs := []zap.Field{zap.String("operation", operation), zap.Error(err)}
	attrs = append(attrs, fields...)
	r.logger.Error("cases repository error", attrs...)
}
