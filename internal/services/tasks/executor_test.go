package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func newTestExecutor(t *testing.T, concurrency int) *Executor {
	e := NewExecutor(concurrency, arbor.NewLogger())
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

func TestExecutorRunsJob(t *testing.T) {
	e := newTestExecutor(t, 2)

	result, err := e.Do(context.Background(), "user", "echo", func(ctx context.Context) (interface{}, error) {
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", result)
}

func TestExecutorSerializesPerUser(t *testing.T) {
	e := newTestExecutor(t, 4)

	var (
		mu      sync.Mutex
		order   []string
		running int
		overlap bool
	)
	job := func(name string) Job {
		return func(ctx context.Context) (interface{}, error) {
			mu.Lock()
			running++
			if running > 1 {
				overlap = true
			}
			order = append(order, name)
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return nil, nil
		}
	}

	var futures []*Future
	for _, name := range []string{"first", "second", "third"} {
		f, err := e.Submit("user", name, job(name))
		require.NoError(t, err)
		futures = append(futures, f)
	}
	for _, f := range futures {
		_, err := f.Wait(context.Background())
		require.NoError(t, err)
	}

	assert.False(t, overlap, "jobs for one user must not overlap")
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestExecutorRunsUsersInParallel(t *testing.T) {
	e := newTestExecutor(t, 2)

	release := make(chan struct{})
	started := make(chan string, 2)
	block := func(user string) Job {
		return func(ctx context.Context) (interface{}, error) {
			started <- user
			<-release
			return nil, nil
		}
	}

	a, err := e.Submit("alice", "a", block("alice"))
	require.NoError(t, err)
	b, err := e.Submit("bob", "b", block("bob"))
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case u := <-started:
			seen[u] = true
		case <-time.After(2 * time.Second):
			t.Fatal("second user's job never started")
		}
	}
	close(release)

	_, err = a.Wait(context.Background())
	require.NoError(t, err)
	_, err = b.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, seen["alice"] && seen["bob"])
}

func TestExecutorRecoversPanic(t *testing.T) {
	e := newTestExecutor(t, 1)

	_, err := e.Do(context.Background(), "user", "boom", func(ctx context.Context) (interface{}, error) {
		panic("boom")
	})
	require.Error(t, err)

	result, err := e.Do(context.Background(), "user", "after", func(ctx context.Context) (interface{}, error) {
		return 1, nil
	})
	require.NoError(t, err, "slot is released after a panic")
	assert.Equal(t, 1, result)
}

func TestExecutorStopFailsQueued(t *testing.T) {
	e := NewExecutor(1, arbor.NewLogger())
	e.Start()

	release := make(chan struct{})
	started := make(chan struct{})
	running, err := e.Submit("user", "running", func(ctx context.Context) (interface{}, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	queued, err := e.Submit("user", "queued", func(ctx context.Context) (interface{}, error) {
		return "never", nil
	})
	require.NoError(t, err)
	<-started

	e.Stop()

	_, err = queued.Wait(context.Background())
	assert.True(t, errors.Is(err, ErrExecutorStopped))
	_, err = running.Wait(context.Background())
	assert.True(t, errors.Is(err, context.Canceled), "running jobs see the executor context cancelled")

	_, err = e.Submit("user", "late", func(ctx context.Context) (interface{}, error) { return nil, nil })
	assert.True(t, errors.Is(err, ErrExecutorStopped))
}

func TestFutureWaitHonoursContext(t *testing.T) {
	e := newTestExecutor(t, 1)

	release := make(chan struct{})
	defer close(release)
	f, err := e.Submit("user", "slow", func(ctx context.Context) (interface{}, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = f.Wait(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
