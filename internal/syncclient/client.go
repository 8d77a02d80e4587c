package syncclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"inventario-backend/internal/capture"
	"inventario-backend/internal/config"
	"inventario-backend/internal/retry"
)

const DefaultChunkSize = 500

var ErrSyncInProgress = capture.ErrSyncInProgress

// Ingestor accepts chunks of scan payloads on the server of record.
type Ingestor interface {
	Ingest(ctx context.Context, syncID string, items []ScanPayload) (int, error)
}

// EntryStore is the part of the capture store a sync needs.
type EntryStore interface {
	ListAll(ctx context.Context) ([]capture.Entry, error)
	ClearSynced(ctx context.Context, sessionID string, sent []capture.Entry, syncedAt time.Time) error
	AcquireSyncLock(ctx context.Context, lease time.Duration) (func() error, error)
	LastSyncedAt(ctx context.Context, sessionID string) (time.Time, error)
}

// Result reports how far a sync got.
type Result struct {
	ChunksCommitted  int
	ChunksTotal      int
	RecordsCommitted int
	RecordsTotal     int
}

// SyncError is returned when a chunk could not be delivered. Nothing was
// cleared locally.
type SyncError struct {
	Result
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync aborted after %d/%d chunks (%d/%d records confirmed): %v",
		e.ChunksCommitted, e.ChunksTotal, e.RecordsCommitted, e.RecordsTotal, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

type Options struct {
	ChunkSize int
	Policy    retry.Policy
	Logger    *logrus.Logger
	Now       func() time.Time
	// LockLease defaults to capture.DefaultSyncLease.
	LockLease time.Duration
}

// Client delivers the capture store to the server, one sync at a time.
type Client struct {
	store     EntryStore
	ingestor  Ingestor
	chunkSize int
	policy    retry.Policy
	logger    *logrus.Logger
	now       func() time.Time
	lease     time.Duration
	inFlight  *semaphore.Weighted
}

func New(store EntryStore, ingestor Ingestor, opts Options) *Client {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = config.GetLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		store:     store,
		ingestor:  ingestor,
		chunkSize: opts.ChunkSize,
		policy:    opts.Policy,
		logger:    opts.Logger,
		now:       opts.Now,
		lease:     opts.LockLease,
		inFlight:  semaphore.NewWeighted(1),
	}
}

// Sync sends a snapshot of the stored entries of sess in sequential chunks.
// Only when every chunk was accepted does it remove what the snapshot held;
// scans recorded meanwhile stay for the next sync. A chunk already being sent
// is not interrupted by ctx; cancellation stops the next chunk from starting.
// The device-wide lease in the store keeps syncs from other processes out.
func (c *Client) Sync(ctx context.Context, sess capture.Session) (Result, error) {
	if !c.inFlight.TryAcquire(1) {
		return Result{}, ErrSyncInProgress
	}
	defer c.inFlight.Release(1)

	release, err := c.store.AcquireSyncLock(ctx, c.lease)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := release(); err != nil {
			config.LogError(c.logger, "syncclient", "Sync", "failed to release sync lease", "", err)
		}
	}()

	entries, err := c.store.ListAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read capture store: %w", err)
	}
	if len(entries) == 0 {
		return Result{}, nil
	}

	info := sess.Info()
	if last, err := c.store.LastSyncedAt(ctx, info.ID); err == nil {
		info.LastSyncedAt = last
	} else if !errors.Is(err, capture.ErrNoActiveSession) {
		return Result{}, fmt.Errorf("failed to read last sync time: %w", err)
	}

	syncedAt := c.now()
	payloads := BuildPayloads(info, entries, syncedAt)
	chunks := retry.Chunk(payloads, c.chunkSize)
	res := Result{ChunksTotal: len(chunks), RecordsTotal: len(payloads)}
	syncID := uuid.NewString()

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return res, &SyncError{Result: res, Err: err}
		}

		chunkID := fmt.Sprintf("%s/%d", syncID, i+1)
		err := retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) error {
			_, err := c.ingestor.Ingest(context.WithoutCancel(ctx), chunkID, chunk)
			if err == nil {
				return nil
			}
			c.logger.WithFields(logrus.Fields{
				"module":  "syncclient",
				"sync_id": chunkID,
				"attempt": attempt,
				"records": len(chunk),
			}).Warn(err.Error())
			if !Retryable(err) {
				return retry.Permanent(err)
			}
			return err
		})
		if err != nil {
			config.LogError(c.logger, "syncclient", "Sync", "chunk rejected, local entries kept", chunkID, err)
			return res, &SyncError{Result: res, Err: err}
		}
		res.ChunksCommitted++
		res.RecordsCommitted += len(chunk)
	}

	if err := c.store.ClearSynced(ctx, info.ID, entries, syncedAt); err != nil {
		return res, fmt.Errorf("records synced but local store was not cleared: %w", err)
	}
	return res, nil
}
