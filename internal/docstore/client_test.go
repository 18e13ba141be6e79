package docstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/memchat/internal/docstore"
)

// flakyBackend fails the next calls of an op with queued errors, then
// delegates to an in-memory store.
type flakyBackend struct {
	*docstore.Memory

	mu       sync.Mutex
	failures map[docstore.Op][]error
	calls    map[docstore.Op]int
	block    map[docstore.Op]bool
}

func newFlaky() *flakyBackend {
	return &flakyBackend{
		Memory:   docstore.NewMemory(),
		failures: map[docstore.Op][]error{},
		calls:    map[docstore.Op]int{},
		block:    map[docstore.Op]bool{},
	}
}

func (f *flakyBackend) fail(op docstore.Op, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

func (f *flakyBackend) count(op docstore.Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *flakyBackend) enter(ctx context.Context, op docstore.Op) error {
	f.mu.Lock()
	f.calls[op]++
	block := f.block[op]
	var err error
	if q := f.failures[op]; len(q) > 0 {
		err, f.failures[op] = q[0], q[1:]
	}
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *flakyBackend) FindByName(ctx context.Context, name string) (docstore.DocumentID, error) {
	if err := f.enter(ctx, docstore.OpFind); err != nil {
		return "", err
	}
	return f.Memory.FindByName(ctx, name)
}

func (f *flakyBackend) Fetch(ctx context.Context, id docstore.DocumentID) ([]byte, error) {
	if err := f.enter(ctx, docstore.OpFetch); err != nil {
		return nil, err
	}
	return f.Memory.Fetch(ctx, id)
}

func (f *flakyBackend) Replace(ctx context.Context, id docstore.DocumentID, content []byte) error {
	if err := f.enter(ctx, docstore.OpReplace); err != nil {
		return err
	}
	return f.Memory.Replace(ctx, id, content)
}

func (f *flakyBackend) Create(ctx context.Context, name string, content []byte) (docstore.DocumentID, error) {
	if err := f.enter(ctx, docstore.OpCreate); err != nil {
		return "", err
	}
	return f.Memory.Create(ctx, name, content)
}

func testOptions() docstore.Options {
	return docstore.Options{Timeout: time.Second, Retries: 1, RetryDelay: time.Millisecond}
}

func TestClient_FindByName_NotFoundIsNotAnError(t *testing.T) {
	c := docstore.NewClient(newFlaky(), testOptions(), zerolog.Nop())
	got, err := c.FindByName(context.Background(), "nothing")
	require.NoError(t, err)
	assert.False(t, got.Found)
	assert.True(t, got.ID.IsZero())
}

func TestClient_FindByName_Found(t *testing.T) {
	b := newFlaky()
	id, _ := b.Memory.Create(context.Background(), "doc", []byte("x"))
	c := docstore.NewClient(b, testOptions(), zerolog.Nop())

	got, err := c.FindByName(context.Background(), "doc")
	require.NoError(t, err)
	assert.Equal(t, docstore.Lookup{ID: id, Found: true}, got)
}

func TestClient_Fetch_AbsorbsFailures(t *testing.T) {
	b := newFlaky()
	b.fail(docstore.OpFetch, errors.New("permission denied"))
	c := docstore.NewClient(b, testOptions(), zerolog.Nop())

	res := c.Fetch(context.Background(), "mem-1")
	assert.False(t, res.OK())
	assert.Empty(t, res.Content)

	res = c.Fetch(context.Background(), "mem-404")
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Failure, docstore.ErrNotFound)
	assert.Empty(t, res.Content)
}

func TestClient_TransientRetriedOnceThenSucceeds(t *testing.T) {
	b := newFlaky()
	id, _ := b.Memory.Create(context.Background(), "doc", []byte("x"))
	b.fail(docstore.OpReplace, docstore.Transient(errors.New("503")))
	c := docstore.NewClient(b, testOptions(), zerolog.Nop())

	require.NoError(t, c.Replace(context.Background(), id, []byte("y")))
	assert.Equal(t, 2, b.count(docstore.OpReplace))
}

func TestClient_TransientSurfacedAfterRetries(t *testing.T) {
	b := newFlaky()
	b.fail(docstore.OpCreate,
		docstore.Transient(errors.New("503")),
		docstore.Transient(errors.New("503")),
		docstore.Transient(errors.New("503")),
	)
	c := docstore.NewClient(b, testOptions(), zerolog.Nop())

	_, err := c.Create(context.Background(), "doc", []byte("x"))
	require.Error(t, err)
	var opErr *docstore.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, docstore.OpCreate, opErr.Op)
	assert.Equal(t, 2, opErr.Attempts)
	assert.True(t, docstore.IsTransient(err))
	assert.Equal(t, 2, b.count(docstore.OpCreate))
}

func TestClient_PermanentErrorNotRetried(t *testing.T) {
	b := newFlaky()
	b.fail(docstore.OpCreate, errors.New("bad request"))
	c := docstore.NewClient(b, testOptions(), zerolog.Nop())

	_, err := c.Create(context.Background(), "doc", []byte("x"))
	require.Error(t, err)
	assert.False(t, docstore.IsTransient(err))
	assert.Equal(t, 1, b.count(docstore.OpCreate))
}

func TestClient_ReplaceNotFoundPassesThroughUnretried(t *testing.T) {
	b := newFlaky()
	c := docstore.NewClient(b, testOptions(), zerolog.Nop())

	err := c.Replace(context.Background(), "mem-9", []byte("x"))
	require.ErrorIs(t, err, docstore.ErrNotFound)
	var opErr *docstore.OpError
	assert.False(t, errors.As(err, &opErr))
	assert.Equal(t, 1, b.count(docstore.OpReplace))
}

func TestClient_TimeoutIsTransient(t *testing.T) {
	b := newFlaky()
	b.block[docstore.OpFind] = true
	opts := testOptions()
	opts.Timeout = 20 * time.Millisecond
	c := docstore.NewClient(b, opts, zerolog.Nop())

	_, err := c.FindByName(context.Background(), "doc")
	require.Error(t, err)
	assert.True(t, docstore.IsTransient(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, b.count(docstore.OpFind))
}

func TestClient_ZeroRetries(t *testing.T) {
	b := newFlaky()
	b.fail(docstore.OpFind, docstore.Transient(errors.New("503")))
	opts := testOptions()
	opts.Retries = 0
	c := docstore.NewClient(b, opts, zerolog.Nop())

	_, err := c.FindByName(context.Background(), "doc")
	require.Error(t, err)
	assert.Equal(t, 1, b.count(docstore.OpFind))
}

func TestClient_RateLimitedCallsStillComplete(t *testing.T) {
	b := newFlaky()
	opts := testOptions()
	opts.RateLimit = 1000
	c := docstore.NewClient(b, opts, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := c.Create(context.Background(), "doc", []byte("x"))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, b.Len())
}
