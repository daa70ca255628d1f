package movements

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/juris/backend/internal/cases"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/cnj"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/datajud"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var databaseSequence int

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(delta)
}

type fixture struct {
	db    *gorm.DB
	clock *manualClock
	cases *cases.Repository
	store *Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	databaseSequence++
	dsn := fmt.Sprintf("file:movements_%d?mode=memory&cache=shared", databaseSequence)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&cases.Case{}, &Snapshot{}, &SyncLogEntry{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	clock := newManualClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	repository, err := cases.NewRepository(cases.RepositoryConfig{Database: db, Clock: clock.Now})
	if err != nil {
		t.Fatalf("failed to construct case repository: %v", err)
	}
	store, err := NewStore(StoreConfig{Database: db, Clock: clock.Now, IDProvider: NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return &fixture{db: db, clock: clock, cases: repository, store: store}
}

func (f *fixture) createCase(t *testing.T, id, number string) {
	t.Helper()
	if _, err := f.cases.Create(context.Background(), cases.Case{ID: id, Number: number}); err != nil {
		t.Fatalf("failed to create case: %v", err)
	}
}

func (f *fixture) logs(t *testing.T, caseID string) []SyncLogEntry {
	t.Helper()
	entries, err := f.store.ListLogs(context.Background(), caseID, MaxLogLimit)
	if err != nil {
		t.Fatalf("failed to list logs: %v", err)
	}
	return entries
}

type stubFetcher struct {
	mu    sync.Mutex
	hit   datajud.Document
	err   error
	calls int
}

func (f *stubFetcher) FetchMovements(_ context.Context, id cnj.Identifier) (datajud.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	alias, _ := cnj.TribunalAlias(id)
	digits, _ := id.Digits()
	result := datajud.FetchResult{Alias: alias, CanonicalNumber: digits}
	if f.err != nil {
		return result, f.err
	}
	result.Hit = f.hit
	return result, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []MovementEvent
}

func (n *recordingNotifier) NotifyMovement(event MovementEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

type countingRecorder struct {
	mu       sync.Mutex
	statuses []string
}

func (r *countingRecorder) RecordSyncAttempt(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}
