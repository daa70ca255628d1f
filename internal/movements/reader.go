package movements

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const opReaderNew = "movements.reader.new"

// SnapshotSource returns the newest stored snapshot of a case.
type SnapshotSource interface {
	LatestSnapshot(ctx context.Context, caseID string) (*Snapshot, error)
}

// CaseSynchronizer runs one synchronization for a case.
type CaseSynchronizer interface {
	SyncCase(ctx context.Context, caseID string) (*Snapshot, error)
}

// ReaderConfig describes the dependencies of the Reader.
type ReaderConfig struct {
	Snapshots    SnapshotSource
	Synchronizer CaseSynchronizer
	Clock        func() time.Time
	Logger       *zap.Logger
}

// ReadResult is the cached view returned to callers. Refreshed reports whether
// a background synchronization was started or joined.
type ReadResult struct {
	Latest    *Snapshot
	Refreshed bool
}

// Reader serves cached snapshots and refreshes stale ones in the background.
type Reader struct {
	snapshots    SnapshotSource
	synchronizer CaseSynchronizer
	clock        func() time.Time
	logger       *zap.Logger

	refreshes singleflight.Group
	inflight  sync.WaitGroup
}

// NewReader constructs a Reader.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	if cfg.Snapshots == nil {
		return nil, newServiceError(opReaderNew, "missing_store", errMissingStore)
	}
	if cfg.Synchronizer == nil {
		return nil, newServiceError(opReaderNew, "missing_synchronizer", errMissingSynchronizer)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		snapshots:    cfg.Snapshots,
		synchronizer: cfg.Synchronizer,
		clock:        clock,
		logger:       logger,
	}, nil
}

// ReadWithOptionalRefresh returns the latest snapshot without waiting on the
// remote service. A snapshot no older than staleAfter is returned as is;
// otherwise a background synchronization is started and the existing
// snapshot, possibly nil, is returned with Refreshed set.
func (r *Reader) ReadWithOptionalRefresh(ctx context.Context, caseID string, staleAfter time.Duration) (ReadResult, error) {
	latest, err := r.snapshots.LatestSnapshot(ctx, caseID)
	if err != nil {
		return ReadResult{}, err
	}
	if latest != nil && r.clock().Sub(latest.CreatedAt()) <= staleAfter {
		return ReadResult{Latest: latest, Refreshed: false}, nil
	}
	r.refresh(context.WithoutCancel(ctx), caseID)
	return ReadResult{Latest: latest, Refreshed: true}, nil
}

// Wait blocks until every background refresh started so far has finished.
func (r *Reader) Wait() {
	r.inflight.Wait()
}

// refresh joins the in-flight synchronization of caseID or starts one. The
// outcome is already durable in the sync log, so it is only logged here.
func (r *Reader) refresh(ctx context.Context, caseID string) {
	r.inflight.Add(1)
	results := r.refreshes.DoChan(caseID, func() (value any, err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("background refresh panicked: %v", recovered)
			}
		}()
		return r.synchronizer.SyncCase(ctx, caseID)
	})
	go func() {
		defer r.inflight.Done()
		result := <-results
		if result.Err != nil {
			r.logger.Info("background movement refresh failed",
				zap.String("case_id", caseID),
				zap.Bool("shared", result.Shared),
				zap.Error(result.Err))
		}
	}()
}
