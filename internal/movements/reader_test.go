package movements

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/juris/backend/internal/datajud"
)

type blockingSynchronizer struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
	panics  bool
	once    sync.Once
}

func newBlockingSynchronizer() *blockingSynchronizer {
	return &blockingSynchronizer{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *blockingSynchronizer) SyncCase(context.Context, string) (*Snapshot, error) {
	s.calls.Add(1)
	s.once.Do(func() { close(s.started) })
	<-s.release
	if s.panics {
		panic("remote exploded")
	}
	return nil, s.err
}

func newTestReader(t *testing.T, f *fixture, synchronizer CaseSynchronizer) *Reader {
	t.Helper()
	reader, err := NewReader(ReaderConfig{Snapshots: f.store, Synchronizer: synchronizer, Clock: f.clock.Now})
	if err != nil {
		t.Fatalf("failed to construct reader: %v", err)
	}
	return reader
}

func seedSnapshot(t *testing.T, f *fixture, caseID string) Snapshot {
	t.Helper()
	snapshot, err := f.store.SaveSnapshot(context.Background(), SnapshotInput{
		CaseID:          caseID,
		CanonicalNumber: "00000075520204010000",
		TribunalAlias:   "trf1",
		Payload:         datajud.Document{"movimentos": []any{}},
	})
	if err != nil {
		t.Fatalf("failed to seed snapshot: %v", err)
	}
	return snapshot
}

func TestReadWithOptionalRefreshStalenessBoundary(t *testing.T) {
	const staleAfter = 12 * time.Hour
	testCases := []struct {
		name          string
		age           time.Duration
		wantRefreshed bool
	}{
		{name: "fresh", age: time.Hour, wantRefreshed: false},
		{name: "exactly-threshold", age: staleAfter, wantRefreshed: false},
		{name: "threshold-plus-epsilon", age: staleAfter + time.Millisecond, wantRefreshed: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			f := newFixture(t)
			seeded := seedSnapshot(t, f, "case-1")
			f.clock.Advance(testCase.age)

			synchronizer := newBlockingSynchronizer()
			close(synchronizer.release)
			reader := newTestReader(t, f, synchronizer)

			result, err := reader.ReadWithOptionalRefresh(context.Background(), "case-1", staleAfter)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			reader.Wait()

			if result.Refreshed != testCase.wantRefreshed {
				t.Fatalf("unexpected refreshed flag %v", result.Refreshed)
			}
			if result.Latest == nil || result.Latest.ID != seeded.ID {
				t.Fatalf("expected the cached snapshot to be returned, got %+v", result.Latest)
			}
			wantCalls := int32(0)
			if testCase.wantRefreshed {
				wantCalls = 1
			}
			if synchronizer.calls.Load() != wantCalls {
				t.Fatalf("unexpected synchronizer calls %d", synchronizer.calls.Load())
			}
		})
	}
}

func TestReadWithOptionalRefreshDoesNotWaitForSynchronization(t *testing.T) {
	f := newFixture(t)
	synchronizer := newBlockingSynchronizer()
	synchronizer.err = errors.New("remote unavailable")
	reader := newTestReader(t, f, synchronizer)

	result, err := reader.ReadWithOptionalRefresh(context.Background(), "case-1", time.Hour)
	if err != nil {
		t.Fatalf("background failures must not reach the reader: %v", err)
	}
	if result.Latest != nil || !result.Refreshed {
		t.Fatalf("expected empty result with refresh triggered, got %+v", result)
	}

	<-synchronizer.started
	close(synchronizer.release)
	reader.Wait()
}

func TestReadWithOptionalRefreshJoinsInFlightRefresh(t *testing.T) {
	f := newFixture(t)
	synchronizer := newBlockingSynchronizer()
	reader := newTestReader(t, f, synchronizer)

	for attempt := 0; attempt < 3; attempt++ {
		result, err := reader.ReadWithOptionalRefresh(context.Background(), "case-1", time.Hour)
		if err != nil || !result.Refreshed {
			t.Fatalf("attempt %d: unexpected result %+v err %v", attempt, result, err)
		}
	}
	if _, err := reader.ReadWithOptionalRefresh(context.Background(), "case-2", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	<-synchronizer.started
	close(synchronizer.release)
	reader.Wait()

	if synchronizer.calls.Load() != 2 {
		t.Fatalf("expected one refresh per case, got %d", synchronizer.calls.Load())
	}
}

func TestReadWithOptionalRefreshRecoversPanics(t *testing.T) {
	f := newFixture(t)
	synchronizer := newBlockingSynchronizer()
	synchronizer.panics = true
	close(synchronizer.release)
	reader := newTestReader(t, f, synchronizer)

	if _, err := reader.ReadWithOptionalRefresh(context.Background(), "case-1", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reader.Wait()
	if synchronizer.calls.Load() != 1 {
		t.Fatalf("expected the panicking refresh to have run")
	}
}

func TestReadWithOptionalRefreshDetachesFromCallerContext(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	var observed atomic.Value
	synchronizer := synchronizerFunc(func(ctx context.Context, _ string) (*Snapshot, error) {
		<-release
		observed.Store(ctx.Err() == nil)
		return nil, nil
	})
	reader := newTestReader(t, f, synchronizer)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := reader.ReadWithOptionalRefresh(ctx, "case-1", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	close(release)
	reader.Wait()
	if live, _ := observed.Load().(bool); !live {
		t.Fatalf("background refresh must not inherit caller cancellation")
	}
}

type synchronizerFunc func(ctx context.Context, caseID string) (*Snapshot, error)

func (f synchronizerFunc) SyncCase(ctx context.Context, caseID string) (*Snapshot, error) {
	return f(ctx, caseID)
}
