package syncclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventario-backend/internal/capture"
	"inventario-backend/internal/retry"
)

type fakeIngestor struct {
	mu       sync.Mutex
	calls    int
	received [][]ScanPayload
	syncIDs  []string
	// fail returns an error for the given 1-based call number, or nil.
	fail func(call int, items []ScanPayload) error
}

func (f *fakeIngestor) Ingest(_ context.Context, syncID string, items []ScanPayload) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		if err := f.fail(f.calls, items); err != nil {
			return 0, err
		}
	}
	f.received = append(f.received, items)
	f.syncIDs = append(f.syncIDs, syncID)
	return len(items), nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func noWait(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Sleep:       func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

func seededStore(t *testing.T, distinct int) (*capture.Store, capture.Session) {
	t.Helper()
	return seededStoreAt(t, filepath.Join(t.TempDir(), "capture.db"), distinct)
}

func seededStoreAt(t *testing.T, path string, distinct int) (*capture.Store, capture.Session) {
	t.Helper()
	store, err := capture.Open(path, distinct+10)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	info, err := capture.NewSessionInfo("M-001", "Bodega", 4, capture.Actor{ID: 9, Name: "Luis"},
		time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	sess := capture.FixedLocationSession{SessionInfo: info, Location: "A1"}
	require.NoError(t, store.StartSession(context.Background(), sess))

	for i := 0; i < distinct; i++ {
		_, err := store.RecordScan(context.Background(), sess, fmt.Sprintf("P%04d", i), "")
		require.NoError(t, err)
	}
	return store, sess
}

func TestSync_AllChunksClearStore(t *testing.T) {
	store, sess := seededStore(t, 1200)
	ing := &fakeIngestor{}
	syncedAt := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	c := New(store, ing, Options{ChunkSize: 500, Policy: noWait(3), Logger: quietLogger(), Now: func() time.Time { return syncedAt }})

	res, err := c.Sync(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, Result{ChunksCommitted: 3, ChunksTotal: 3, RecordsCommitted: 1200, RecordsTotal: 1200}, res)

	require.Len(t, ing.received, 3)
	assert.Len(t, ing.received[0], 500)
	assert.Len(t, ing.received[1], 500)
	assert.Len(t, ing.received[2], 200)
	assert.Equal(t, "P0000", ing.received[0][0].ProductCode)
	assert.Equal(t, "P0500", ing.received[1][0].ProductCode)
	assert.NotEqual(t, ing.syncIDs[0], ing.syncIDs[1])

	first := ing.received[0][0]
	assert.Equal(t, "M-001", first.ControlBatchID)
	assert.Equal(t, "A1", first.Location)
	assert.Equal(t, "Bodega", first.Area)
	assert.Equal(t, uint(9), first.ActorID)
	assert.Equal(t, "Luis", first.ActorName)
	assert.Equal(t, uint(4), first.TenantID)
	assert.Equal(t, syncedAt, first.SessionEnd)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSync_FailedChunkKeepsEverything(t *testing.T) {
	store, sess := seededStore(t, 1200)
	ing := &fakeIngestor{fail: func(call int, _ []ScanPayload) error {
		if call >= 2 {
			return &StatusError{StatusCode: 503}
		}
		return nil
	}}
	c := New(store, ing, Options{ChunkSize: 500, Policy: noWait(3), Logger: quietLogger()})

	res, err := c.Sync(context.Background(), sess)
	require.Error(t, err)

	var se *SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.ChunksCommitted)
	assert.Equal(t, 3, se.ChunksTotal)
	assert.Equal(t, 500, se.RecordsCommitted)
	assert.Equal(t, res, se.Result)
	assert.Equal(t, 4, ing.calls, "first chunk once, second chunk retried three times")
	assert.Len(t, ing.received, 1, "third chunk must not be sent")

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1200, n)
}

func TestSync_TransientFailureIsRetried(t *testing.T) {
	store, sess := seededStore(t, 3)
	ing := &fakeIngestor{fail: func(call int, _ []ScanPayload) error {
		if call == 1 {
			return errors.New("connection refused")
		}
		return nil
	}}
	c := New(store, ing, Options{ChunkSize: 500, Policy: noWait(3), Logger: quietLogger()})

	res, err := c.Sync(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunksCommitted)
	assert.Equal(t, 2, ing.calls)
}

func TestSync_ClientErrorIsNotRetried(t *testing.T) {
	store, sess := seededStore(t, 3)
	ing := &fakeIngestor{fail: func(int, []ScanPayload) error {
		return &StatusError{StatusCode: 400, Message: "product_code is required"}
	}}
	c := New(store, ing, Options{Policy: noWait(5), Logger: quietLogger()})

	_, err := c.Sync(context.Background(), sess)
	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, 400, status.StatusCode)
	assert.Equal(t, 1, ing.calls)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSync_EmptyStoreIsNoop(t *testing.T) {
	store, sess := seededStore(t, 0)
	ing := &fakeIngestor{}
	c := New(store, ing, Options{Logger: quietLogger()})

	res, err := c.Sync(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Zero(t, ing.calls)
}

func TestSync_CancelledBeforeStartSendsNothing(t *testing.T) {
	store, sess := seededStore(t, 3)
	ing := &fakeIngestor{}
	c := New(store, ing, Options{Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Sync(ctx, sess)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ing.calls)
}

type blockingIngestor struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingIngestor) Ingest(_ context.Context, _ string, items []ScanPayload) (int, error) {
	close(b.started)
	<-b.release
	return len(items), nil
}

func TestSync_SingleFlight(t *testing.T) {
	store, sess := seededStore(t, 2)
	ing := &blockingIngestor{started: make(chan struct{}), release: make(chan struct{})}
	c := New(store, ing, Options{Logger: quietLogger()})

	done := make(chan error, 1)
	go func() {
		_, err := c.Sync(context.Background(), sess)
		done <- err
	}()
	<-ing.started

	_, err := c.Sync(context.Background(), sess)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(ing.release)
	require.NoError(t, <-done)
}

func TestSync_OtherStoreHandleIsExcluded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.db")
	store, sess := seededStoreAt(t, path, 2)
	other, err := capture.Open(path, 0)
	require.NoError(t, err)
	t.Cleanup(func() { other.Close() })

	ing := &blockingIngestor{started: make(chan struct{}), release: make(chan struct{})}
	first := New(store, ing, Options{Logger: quietLogger()})
	done := make(chan error, 1)
	go func() {
		_, err := first.Sync(context.Background(), sess)
		done <- err
	}()
	<-ing.started

	secondIng := &fakeIngestor{}
	second := New(other, secondIng, Options{Logger: quietLogger()})
	_, err = second.Sync(context.Background(), sess)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Zero(t, secondIng.calls)

	close(ing.release)
	require.NoError(t, <-done)

	// the lease is gone once the first sync returns
	_, err = second.Sync(context.Background(), sess)
	require.NoError(t, err)
}

func TestSync_ScansDuringSyncSurvive(t *testing.T) {
	store, sess := seededStore(t, 2)
	ing := &fakeIngestor{fail: func(call int, _ []ScanPayload) error {
		if call == 1 {
			for _, code := range []string{"P0000", "LATE"} {
				if _, err := store.RecordScan(context.Background(), sess, code, ""); err != nil {
					return retry.Permanent(err)
				}
			}
		}
		return nil
	}}
	firstAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	now := firstAt
	c := New(store, ing, Options{Policy: noWait(1), Logger: quietLogger(), Now: func() time.Time { return now }})

	res, err := c.Sync(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordsCommitted)

	left, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "P0000", left[0].ProductCode)
	assert.Equal(t, 1, left[0].Quantity)
	assert.Equal(t, "LATE", left[1].ProductCode)
	assert.Equal(t, 1, left[1].Quantity)

	now = firstAt.Add(30 * time.Minute)
	res, err = c.Sync(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordsCommitted)

	require.Len(t, ing.received, 2)
	second := ing.received[1]
	assert.Equal(t, firstAt, second[0].SessionStart.UTC(), "second interval starts where the first ended")
	assert.Equal(t, now, second[0].SessionEnd)
	assert.Equal(t, sess.Info().StartedAt, ing.received[0][0].SessionStart)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(errors.New("dial tcp: connection refused")))
	assert.True(t, Retryable(&StatusError{StatusCode: 502}))
	assert.True(t, Retryable(&StatusError{StatusCode: 429}))
	assert.True(t, Retryable(&StatusError{StatusCode: 408}))
	assert.False(t, Retryable(&StatusError{StatusCode: 400}))
	assert.False(t, Retryable(&StatusError{StatusCode: 409}))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(nil))
}
