package cases

import "time"

// Case is the subset of the case record read and projected by movement
// synchronization. Timestamps are unix milliseconds.
type Case struct {
	ID                  string `gorm:"column:id;primaryKey;size:190;not null"`
	Number              string `gorm:"column:numero_processo;size:64;not null;default:''"`
	Title               string `gorm:"column:title;size:320;not null;default:''"`
	LastMovementAtMilli *int64 `gorm:"column:last_movement_at_ms"`
	LastSyncedAtMilli   *int64 `gorm:"column:last_synced_at_ms"`
	HasUnseenMovement   bool   `gorm:"column:has_unseen_movement;not null;default:false"`
	CreatedAtMilli      int64  `gorm:"column:created_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Case) TableName() string {
	return "cases"
}

// LastMovementAt returns the projected latest movement date, if any.
func (c Case) LastMovementAt() *time.Time {
	return fromMilli(c.LastMovementAtMilli)
}

// LastSyncedAt returns the time of the latest successful synchronization, if any.
func (c Case) LastSyncedAt() *time.Time {
	return fromMilli(c.LastSyncedAtMilli)
}

// CaseNumber pairs a case identifier with its stored process number.
type CaseNumber struct {
	ID     string `gorm:"column:id"`
	Number string `gorm:"column:numero_processo"`
}

// ProjectionUpdate carries the values produced by one successful synchronization.
type ProjectionUpdate struct {
	LastMovementAt *time.Time
	SyncedAt       time.Time
}

// ProjectionOutcome reports whether the update advanced the case's movement date.
type ProjectionOutcome struct {
	Advanced bool
}

func fromMilli(value *int64) *time.Time {
	if value == nil {
		return nil
	}
	converted := time.UnixMilli(*value).UTC()
	return &converted
}
