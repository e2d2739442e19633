package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdnsync/internal/buildout"
	"cdnsync/internal/remote"
)

type fakeRemote struct {
	mu sync.Mutex

	calls    int
	failures int // calls that fail before succeeding; -1 fails forever
	location string
	blockFor time.Duration
}

func (f *fakeRemote) Put(ctx context.Context, name string, _ []byte) (string, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.blockFor > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.blockFor):
		}
	}
	if f.failures < 0 || n <= f.failures {
		return "", fmt.Errorf("transient failure %d", n)
	}
	if f.location == "" {
		return "https://cdn/" + name, nil
	}
	return f.location, nil
}

func (f *fakeRemote) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newExecutor(t *testing.T, store remote.Store, opts Options) *Executor {
	t.Helper()
	if opts.MaxObjectBytes == 0 {
		opts.MaxObjectBytes = 1024
	}
	e, err := New(store, opts, quietLogger())
	require.NoError(t, err)
	return e
}

func TestUploadSucceedsFirstAttempt(t *testing.T) {
	store := &fakeRemote{}
	e := newExecutor(t, store, Options{MaxAttempts: 3})

	res, err := e.Upload(context.Background(), buildout.New("a.js", []byte("v1")), "dev/a.js")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/dev/a.js", res.Location)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, store.Calls())

	m := e.Metrics()
	assert.EqualValues(t, 1, m.Attempts)
	assert.EqualValues(t, 1, m.Successes)
	assert.EqualValues(t, 2, m.BytesSent)
}

func TestUploadRetriesThenSucceeds(t *testing.T) {
	store := &fakeRemote{failures: 2}
	e := newExecutor(t, store, Options{MaxAttempts: 3, RetryDelay: time.Millisecond})

	res, err := e.Upload(context.Background(), buildout.New("a.js", []byte("v1")), "a.js")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, store.Calls())
	assert.EqualValues(t, 2, e.Metrics().Retries)
}

func TestUploadStopsAfterMaxAttempts(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		store := &fakeRemote{failures: -1}
		e := newExecutor(t, store, Options{MaxAttempts: n})

		done := make(chan error, 1)
		go func() {
			_, err := e.Upload(context.Background(), buildout.New("a.js", []byte("v1")), "a.js")
			done <- err
		}()

		select {
		case err := <-done:
			var upErr *UploadError
			if !errors.As(err, &upErr) {
				t.Fatalf("n=%d: expected UploadError, got %v", n, err)
			}
			if upErr.ID != "a.js" || upErr.Attempts != n {
				t.Fatalf("n=%d: got %+v", n, upErr)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("n=%d: upload did not terminate", n)
		}
		if store.Calls() != n {
			t.Fatalf("n=%d: calls = %d", n, store.Calls())
		}
	}
}

func TestUploadWaitsFixedDelayBetweenAttempts(t *testing.T) {
	store := &fakeRemote{failures: -1}
	delay := 20 * time.Millisecond
	e := newExecutor(t, store, Options{MaxAttempts: 3, RetryDelay: delay})

	start := time.Now()
	_, err := e.Upload(context.Background(), buildout.New("a.js", []byte("v1")), "a.js")
	require.Error(t, err)
	elapsed := time.Since(start)
	// Two waits between three attempts, none after the last.
	assert.GreaterOrEqual(t, elapsed, 2*delay)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestUploadOversizeMakesNoAttempt(t *testing.T) {
	store := &fakeRemote{}
	e := newExecutor(t, store, Options{MaxAttempts: 3, MaxObjectBytes: 4})

	_, err := e.Upload(context.Background(), buildout.New("big.png", []byte("12345")), "big.png")
	var oversize *OversizeError
	require.True(t, errors.As(err, &oversize), "err = %v", err)
	assert.Equal(t, 5, oversize.Size)
	assert.EqualValues(t, 4, oversize.Limit)
	assert.Equal(t, 0, store.Calls())
	assert.EqualValues(t, 1, e.Metrics().Oversize)

	_, err = e.Upload(context.Background(), buildout.New("ok.png", []byte("1234")), "ok.png")
	assert.NoError(t, err)
}

func TestUploadTreatsEmptyLocationAsFailure(t *testing.T) {
	store := &emptyLocationRemote{}
	e := newExecutor(t, store, Options{MaxAttempts: 2})

	_, err := e.Upload(context.Background(), buildout.New("a.js", []byte("v1")), "a.js")
	assert.ErrorIs(t, err, remote.ErrEmptyLocation)
	assert.Equal(t, 2, store.calls)
}

type emptyLocationRemote struct{ calls int }

func (r *emptyLocationRemote) Put(context.Context, string, []byte) (string, error) {
	r.calls++
	return "  ", nil
}

func TestUploadAttemptTimeout(t *testing.T) {
	store := &fakeRemote{blockFor: time.Second}
	e := newExecutor(t, store, Options{MaxAttempts: 2, Timeout: 10 * time.Millisecond})

	_, err := e.Upload(context.Background(), buildout.New("a.js", []byte("v1")), "a.js")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, store.Calls())
}

func TestNewRejectsZeroAttempts(t *testing.T) {
	_, err := New(&fakeRemote{}, Options{MaxAttempts: 0, MaxObjectBytes: 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidAttempts)
}

func TestRunClampsZeroRemaining(t *testing.T) {
	store := &fakeRemote{failures: -1}
	e := newExecutor(t, store, Options{MaxAttempts: 1})

	_, err := e.run(context.Background(), Attempt{Asset: buildout.New("a.js", nil), Name: "a.js", Number: 1, Remaining: 0})
	require.Error(t, err)
	assert.Equal(t, 1, store.Calls())
}

func TestUploadCanceledDuringDelay(t *testing.T) {
	store := &fakeRemote{failures: -1}
	e := newExecutor(t, store, Options{MaxAttempts: 5, RetryDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := e.Upload(ctx, buildout.New("a.js", []byte("v1")), "a.js")
	var upErr *UploadError
	require.True(t, errors.As(err, &upErr))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, store.Calls())
}
