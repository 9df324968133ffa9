package syncback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-syncback/internal/model"
	"github.com/nhle/mail-syncback/internal/store"
	"github.com/nhle/mail-syncback/internal/testutil"
)

func newTestRunner(
	t *testing.T,
	h Handler,
	cfg model.WorkerConfig,
) (*Runner, *store.SQLiteStore) {
	t.Helper()

	s := testutil.NewTestStore(t)
	testutil.SeedAccount(t, s, *imapAccount())

	d := NewDispatcher()
	d.Register(KindEnsureMessageInSentFolder, h)

	return NewRunner(s, d, cfg, zerolog.Nop()), s
}

func enqueue(t *testing.T, s store.Store, accountID, kind string) string {
	t.Helper()

	id, err := s.EnqueueRequest(context.Background(), model.SyncbackRequest{
		AccountID: accountID,
		Kind:      kind,
		Props:     []byte(`{"messageId":"M1"}`),
	})
	require.NoError(t, err)
	return id
}

func getRequest(t *testing.T, s store.Store, id string) *model.SyncbackRequest {
	t.Helper()

	req, err := s.GetRequest(context.Background(), id)
	require.NoError(t, err)
	return req
}

func okHandler() funcHandler {
	return func(context.Context, *model.Account, model.SyncbackRequest) (any, error) {
		return nil, nil
	}
}

func TestRunner_Success(t *testing.T) {
	r, s := newTestRunner(t, okHandler(), model.WorkerConfig{MaxAttempts: 3})
	id := enqueue(t, s, "acct", string(KindEnsureMessageInSentFolder))

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	req := getRequest(t, s, id)
	assert.Equal(t, model.RequestStatusSucceeded, req.Status)
	assert.Empty(t, req.Error)
	assert.Equal(t, 1, req.Attempts)

	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunner_PermanentErrorFailsImmediately(t *testing.T) {
	r, s := newTestRunner(t, okHandler(), model.WorkerConfig{MaxAttempts: 5})
	id := enqueue(t, s, "acct", "UnknownKind")

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	req := getRequest(t, s, id)
	assert.Equal(t, model.RequestStatusFailed, req.Status)
	assert.Contains(t, req.Error, "UnknownKind")
	assert.Equal(t, 1, req.Attempts)
}

func TestRunner_RetriesUntilMaxAttempts(t *testing.T) {
	calls := 0
	h := funcHandler(func(context.Context, *model.Account, model.SyncbackRequest) (any, error) {
		calls++
		return nil, &InsertionError{MessageID: "M1", Stage: StageStore, Err: errors.New("timeout")}
	})
	r, s := newTestRunner(t, h, model.WorkerConfig{MaxAttempts: 2})
	id := enqueue(t, s, "acct", string(KindEnsureMessageInSentFolder))

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	req := getRequest(t, s, id)
	assert.Equal(t, model.RequestStatusNew, req.Status)
	assert.Contains(t, req.Error, "timeout")
	assert.Equal(t, 1, req.Attempts)

	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)

	req = getRequest(t, s, id)
	assert.Equal(t, model.RequestStatusFailed, req.Status)
	assert.Equal(t, 2, req.Attempts)
	assert.Equal(t, 2, calls)
}

func TestRunner_MissingAccountReachesHandler(t *testing.T) {
	var gotAcct *model.Account
	called := false
	h := funcHandler(func(_ context.Context, acct *model.Account, _ model.SyncbackRequest) (any, error) {
		called = true
		gotAcct = acct
		return nil, &ConfigurationError{Message: "account not available"}
	})
	r, s := newTestRunner(t, h, model.WorkerConfig{MaxAttempts: 5})
	id := enqueue(t, s, "nobody", string(KindEnsureMessageInSentFolder))

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.True(t, called)
	assert.Nil(t, gotAcct)
	assert.Equal(t, model.RequestStatusFailed, getRequest(t, s, id).Status)
}

func TestRunner_StartStop(t *testing.T) {
	r, s := newTestRunner(t, okHandler(), model.WorkerConfig{
		PollIntervalSec: 3600,
		MaxAttempts:     1,
	})
	first := enqueue(t, s, "acct", string(KindEnsureMessageInSentFolder))

	r.Start(context.Background())
	r.Start(context.Background())
	defer r.Stop()

	require.Eventually(t, func() bool {
		req, err := s.GetRequest(context.Background(), first)
		return err == nil && req.Status == model.RequestStatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	second := enqueue(t, s, "acct", string(KindEnsureMessageInSentFolder))
	r.Trigger()

	require.Eventually(t, func() bool {
		req, err := s.GetRequest(context.Background(), second)
		return err == nil && req.Status == model.RequestStatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	r.Stop()
}

func TestRunner_StopInterruptsInFlightRequest(t *testing.T) {
	entered := make(chan struct{})
	h := funcHandler(func(ctx context.Context, _ *model.Account, _ model.SyncbackRequest) (any, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r, s := newTestRunner(t, h, model.WorkerConfig{PollIntervalSec: 3600, MaxAttempts: 1})
	id := enqueue(t, s, "acct", string(KindEnsureMessageInSentFolder))

	r.Start(context.Background())

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return while a request was in flight")
	}

	req := getRequest(t, s, id)
	assert.Equal(t, model.RequestStatusNew, req.Status)
	assert.Zero(t, req.Attempts)
}
