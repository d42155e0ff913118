package browser

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type fakeHandle struct {
	alive  atomic.Bool
	closed atomic.Int32
}

func newFakeHandle() *fakeHandle {
	h := &fakeHandle{}
	h.alive.Store(true)
	return h
}

func (h *fakeHandle) Context() context.Context       { return context.Background() }
func (h *fakeHandle) UserAgent() string              { return "fake-agent" }
func (h *fakeHandle) CreatedAt() time.Time           { return time.Time{} }
func (h *fakeHandle) Alive(ctx context.Context) bool { return h.alive.Load() }
func (h *fakeHandle) Close() error {
	h.closed.Add(1)
	return nil
}

func newTestPool(create CreateFunc, persistent bool) (*Pool, *time.Time) {
	clock := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	pool := NewPool(create, persistent, 30*time.Minute, arbor.NewLogger())
	pool.now = func() time.Time { return clock }
	return pool, &clock
}

func TestPool_RegisterAndGet(t *testing.T) {
	pool, _ := newTestPool(nil, true)
	handle := newFakeHandle()

	assert.Nil(t, pool.Get(context.Background(), "user-1"))

	pool.Register("user-1", handle)
	assert.Same(t, handle, pool.Get(context.Background(), "user-1"))
	assert.Equal(t, 1, pool.Stats().Browsers)
}

func TestPool_SweepEvictsIdle(t *testing.T) {
	pool, clock := newTestPool(nil, true)
	idle := newFakeHandle()
	active := newFakeHandle()

	pool.Register("idle", idle)
	*clock = clock.Add(20 * time.Minute)
	pool.Register("active", active)

	*clock = clock.Add(11 * time.Minute)
	evicted := pool.Sweep()

	assert.Equal(t, 1, evicted)
	assert.Nil(t, pool.Get(context.Background(), "idle"))
	assert.EqualValues(t, 1, idle.closed.Load())
	assert.Same(t, active, pool.Get(context.Background(), "active"))
	assert.EqualValues(t, 0, active.closed.Load())
}

func TestPool_GetRefreshesLastUsed(t *testing.T) {
	pool, clock := newTestPool(nil, true)
	handle := newFakeHandle()
	pool.Register("user-1", handle)

	*clock = clock.Add(25 * time.Minute)
	require.NotNil(t, pool.Get(context.Background(), "user-1"))

	*clock = clock.Add(25 * time.Minute)
	assert.Equal(t, 0, pool.Sweep())
}

func TestPool_DeadHandleTreatedAsAbsent(t *testing.T) {
	pool, _ := newTestPool(nil, true)
	handle := newFakeHandle()
	pool.Register("user-1", handle)

	handle.alive.Store(false)

	assert.Nil(t, pool.Get(context.Background(), "user-1"))
	assert.EqualValues(t, 1, handle.closed.Load())
	assert.Equal(t, 0, pool.Stats().Browsers)
}

func TestPool_RegisterReplacesAndClosesOld(t *testing.T) {
	pool, _ := newTestPool(nil, true)
	first := newFakeHandle()
	second := newFakeHandle()

	pool.Register("user-1", first)
	pool.Register("user-1", second)

	assert.EqualValues(t, 1, first.closed.Load())
	assert.Same(t, second, pool.Get(context.Background(), "user-1"))
}

func TestPool_RemoveClosesHandle(t *testing.T) {
	pool, _ := newTestPool(nil, true)
	handle := newFakeHandle()
	pool.Register("user-1", handle)

	assert.True(t, pool.Remove("user-1"))
	assert.False(t, pool.Remove("user-1"))
	assert.EqualValues(t, 1, handle.closed.Load())
}

func TestPool_AcquireCreatesOncePerUser(t *testing.T) {
	var created atomic.Int32
	create := func(ctx context.Context, userID string) (Handle, error) {
		created.Add(1)
		time.Sleep(20 * time.Millisecond)
		return newFakeHandle(), nil
	}
	pool, _ := newTestPool(create, true)

	var wg sync.WaitGroup
	handles := make([]Handle, 8)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, release, err := pool.Acquire(context.Background(), "user-1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()
			handles[i] = h
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, created.Load())
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
}

func TestPool_SingleUseBrowsersCloseOnRelease(t *testing.T) {
	handle := newFakeHandle()
	pool, _ := newTestPool(func(ctx context.Context, userID string) (Handle, error) {
		return handle, nil
	}, false)

	got, release, err := pool.Acquire(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Same(t, handle, got)
	assert.Equal(t, 0, pool.Stats().Browsers)

	release()
	assert.EqualValues(t, 1, handle.closed.Load())
}

func TestPool_ShutdownClosesAll(t *testing.T) {
	pool, _ := newTestPool(nil, true)
	a, b := newFakeHandle(), newFakeHandle()
	pool.Register("a", a)
	pool.Register("b", b)
	require.NoError(t, pool.StartSweeper(time.Minute))

	pool.Shutdown()

	assert.EqualValues(t, 1, a.closed.Load())
	assert.EqualValues(t, 1, b.closed.Load())
	assert.Equal(t, 0, pool.Stats().Browsers)
}

func TestPool_SweepSkipsCheckedOutBrowser(t *testing.T) {
	handle := newFakeHandle()
	pool, clock := newTestPool(func(ctx context.Context, userID string) (Handle, error) {
		return handle, nil
	}, true)

	_, release, err := pool.Acquire(context.Background(), "user-1")
	require.NoError(t, err)

	// a long load keeps the browser busy past the idle timeout
	*clock = clock.Add(45 * time.Minute)
	require.Len(t, pool.Stats().Users, 1)
	assert.True(t, pool.Stats().Users[0].InUse)
	assert.Equal(t, 0, pool.Sweep())
	assert.EqualValues(t, 0, handle.closed.Load())

	release()
	release()
	assert.Equal(t, 0, pool.Sweep(), "release restarts the idle clock")

	*clock = clock.Add(31 * time.Minute)
	assert.Equal(t, 1, pool.Sweep())
	assert.EqualValues(t, 1, handle.closed.Load())
}
