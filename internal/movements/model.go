package movements

import (
	"encoding/json"
	"time"

	"github.com/MarcoPoloResearchLab/juris/backend/internal/datajud"
	"gorm.io/datatypes"
)

// SourceDatajud tags snapshots retrieved from the public judiciary search service.
const SourceDatajud = "datajud"

// SyncStatus enumerates the outcome of one synchronization attempt.
type SyncStatus string

const (
	// StatusSuccess records a fetch that produced a snapshot.
	StatusSuccess SyncStatus = "success"
	// StatusNotFound records a successful fetch that matched nothing.
	StatusNotFound SyncStatus = "not_found"
	// StatusInvalid records a case whose stored number is not a valid identifier.
	StatusInvalid SyncStatus = "invalid"
	// StatusError records a routing, remote or storage failure.
	StatusError SyncStatus = "error"
)

// Snapshot is one immutable copy of a case's movement history. Timestamps are unix milliseconds.
type Snapshot struct {
	ID                  string         `gorm:"column:id;primaryKey;size:64"`
	CaseID              string         `gorm:"column:case_id;size:190;not null;index:idx_process_snapshots_case_created,priority:1"`
	Source              string         `gorm:"column:source;size:32;not null"`
	CanonicalNumber     string         `gorm:"column:canonical_number;size:20;not null"`
	TribunalAlias       string         `gorm:"column:tribunal_alias;size:16;not null"`
	LastMovementAtMilli *int64         `gorm:"column:last_movement_at_ms"`
	Payload             datatypes.JSON `gorm:"column:payload;not null"`
	CreatedAtMilli      int64          `gorm:"column:created_at_ms;not null;index:idx_process_snapshots_case_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Snapshot) TableName() string {
	return "process_snapshots"
}

// CreatedAt returns the snapshot creation time.
func (s Snapshot) CreatedAt() time.Time {
	return time.UnixMilli(s.CreatedAtMilli).UTC()
}

// LastMovementAt returns the movement date resolved when the snapshot was taken.
func (s Snapshot) LastMovementAt() *time.Time {
	if s.LastMovementAtMilli == nil {
		return nil
	}
	value := time.UnixMilli(*s.LastMovementAtMilli).UTC()
	return &value
}

// Document decodes the stored provider payload.
func (s Snapshot) Document() (datajud.Document, error) {
	if len(s.Payload) == 0 {
		return datajud.Document{}, nil
	}
	var document datajud.Document
	if err := json.Unmarshal(s.Payload, &document); err != nil {
		return nil, err
	}
	return document, nil
}

// SyncLogEntry is one audit row per synchronization attempt.
type SyncLogEntry struct {
	ID              string         `gorm:"column:id;primaryKey;size:64"`
	CaseID          *string        `gorm:"column:case_id;size:190;index:idx_process_sync_logs_case_created,priority:1"`
	Status          SyncStatus     `gorm:"column:status;size:16;not null"`
	Message         *string        `gorm:"column:message"`
	CanonicalNumber *string        `gorm:"column:canonical_number;size:20"`
	TribunalAlias   *string        `gorm:"column:tribunal_alias;size:16"`
	Context         datatypes.JSON `gorm:"column:context"`
	CreatedAtMilli  int64          `gorm:"column:created_at_ms;not null;index:idx_process_sync_logs_case_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (SyncLogEntry) TableName() string {
	return "process_sync_logs"
}

// CreatedAt returns the time the attempt was recorded.
func (e SyncLogEntry) CreatedAt() time.Time {
	return time.UnixMilli(e.CreatedAtMilli).UTC()
}

// SnapshotInput carries the values of a successful fetch to be persisted.
type SnapshotInput struct {
	CaseID          string
	CanonicalNumber string
	TribunalAlias   string
	LastMovementAt  *time.Time
	Payload         datajud.Document
}

// LogInput describes one synchronization attempt. Empty strings are stored as NULL.
type LogInput struct {
	CaseID          string
	Status          SyncStatus
	Message         string
	CanonicalNumber string
	TribunalAlias   string
	Context         map[string]any
}
