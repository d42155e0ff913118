package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// CreateFunc builds a new handle for a user
type CreateFunc func(ctx context.Context, userID string) (Handle, error)

type poolEntry struct {
	handle    Handle
	lastUsed  time.Time
	inUse     int // outstanding Acquire calls; Sweep never closes a checked-out browser
	userAgent string
	createdAt time.Time
}

// PoolStats is a point-in-time view of the pool
type PoolStats struct {
	Browsers int            `json:"browsers"`
	Users    []PoolUserStat `json:"users"`
}

// PoolUserStat describes one pooled browser
type PoolUserStat struct {
	UserID    string    `json:"user_id"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	InUse     bool      `json:"in_use"`
}

// Pool keeps one live browser per user and evicts idle ones
type Pool struct {
	mu          sync.Mutex
	entries     map[string]*poolEntry
	userLocks   map[string]*sync.Mutex
	create      CreateFunc
	persistent  bool
	idleTimeout time.Duration
	logger      arbor.ILogger
	now         func() time.Time
	cron        *cron.Cron
}

// NewPool creates a pool. When persistent is false, Acquire hands out
// single-use browsers that are closed on release.
func NewPool(create CreateFunc, persistent bool, idleTimeout time.Duration, logger arbor.ILogger) *Pool {
	return &Pool{
		entries:     make(map[string]*poolEntry),
		userLocks:   make(map[string]*sync.Mutex),
		create:      create,
		persistent:  persistent,
		idleTimeout: idleTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Get returns the user's pooled browser, or nil when absent or dead.
// A dead browser is removed from the pool.
func (p *Pool) Get(ctx context.Context, userID string) Handle {
	p.mu.Lock()
	entry, ok := p.entries[userID]
	p.mu.Unlock()
	if !ok {
		return nil
	}

	if !entry.handle.Alive(ctx) {
		p.logger.Warn().Str("user_id", userID).Msg("Pooled browser failed liveness check - discarding")
		p.mu.Lock()
		if current, ok := p.entries[userID]; ok && current == entry {
			delete(p.entries, userID)
		}
		p.mu.Unlock()
		p.closeHandle(userID, entry.handle)
		return nil
	}

	p.mu.Lock()
	entry.lastUsed = p.now()
	p.mu.Unlock()
	return entry.handle
}

// Register stores handle for userID, closing any browser it replaces
func (p *Pool) Register(userID string, handle Handle) {
	now := p.now()

	p.mu.Lock()
	old := p.entries[userID]
	p.entries[userID] = &poolEntry{
		handle:    handle,
		lastUsed:  now,
		userAgent: handle.UserAgent(),
		createdAt: now,
	}
	p.mu.Unlock()

	if old != nil && old.handle != handle {
		p.closeHandle(userID, old.handle)
	}

	p.logger.Debug().Str("user_id", userID).Msg("Browser registered in pool")
}

// Remove closes and forgets the user's browser. Returns false if none was pooled.
func (p *Pool) Remove(userID string) bool {
	p.mu.Lock()
	entry, ok := p.entries[userID]
	delete(p.entries, userID)
	p.mu.Unlock()

	if !ok {
		return false
	}
	p.closeHandle(userID, entry.handle)
	return true
}

// Acquire returns a browser for the user, creating one if needed. Concurrent
// callers for the same user share a single construction. release must be
// called when the caller is done; it closes single-use browsers only.
func (p *Pool) Acquire(ctx context.Context, userID string) (Handle, func(), error) {
	lock := p.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if handle := p.Get(ctx, userID); handle != nil {
		p.logger.Debug().Str("user_id", userID).Msg("Reusing pooled browser")
		return handle, p.checkout(userID, handle), nil
	}

	handle, err := p.create(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	if !p.persistent {
		return handle, func() { p.closeHandle(userID, handle) }, nil
	}

	p.Register(userID, handle)
	return handle, p.checkout(userID, handle), nil
}

// checkout marks the pooled entry for handle as in use. The returned release
// clears the mark and restarts the idle clock; extra calls are ignored.
func (p *Pool) checkout(userID string, handle Handle) func() {
	p.mu.Lock()
	entry, ok := p.entries[userID]
	if !ok || entry.handle != handle {
		p.mu.Unlock()
		return func() {}
	}
	entry.inUse++
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			entry.inUse--
			entry.lastUsed = p.now()
			p.mu.Unlock()
		})
	}
}

func (p *Pool) userLock(userID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		p.userLocks[userID] = lock
	}
	return lock
}

// Sweep closes browsers idle longer than the idle timeout and returns how
// many were evicted. Browsers checked out by Acquire are skipped.
func (p *Pool) Sweep() int {
	now := p.now()

	p.mu.Lock()
	expired := make(map[string]Handle)
	for userID, entry := range p.entries {
		if entry.inUse == 0 && now.Sub(entry.lastUsed) > p.idleTimeout {
			expired[userID] = entry.handle
			delete(p.entries, userID)
		}
	}
	p.mu.Unlock()

	for userID, handle := range expired {
		p.logger.Info().
			Str("user_id", userID).
			Dur("idle_timeout", p.idleTimeout).
			Msg("Closing idle browser")
		p.closeHandle(userID, handle)
	}
	return len(expired)
}

// StartSweeper runs Sweep on a fixed interval until Shutdown
func (p *Pool) StartSweeper(interval time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron != nil {
		return fmt.Errorf("browser pool sweeper already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() { p.Sweep() }); err != nil {
		return fmt.Errorf("failed to schedule browser sweep: %w", err)
	}
	c.Start()
	p.cron = c

	p.logger.Info().
		Dur("interval", interval).
		Dur("idle_timeout", p.idleTimeout).
		Msg("Browser pool sweeper started")
	return nil
}

// Stats returns the pooled browsers
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{Browsers: len(p.entries), Users: make([]PoolUserStat, 0, len(p.entries))}
	for userID, entry := range p.entries {
		stats.Users = append(stats.Users, PoolUserStat{
			UserID:    userID,
			UserAgent: entry.userAgent,
			CreatedAt: entry.createdAt,
			LastUsed:  entry.lastUsed,
			InUse:     entry.inUse > 0,
		})
	}
	return stats
}

// Shutdown stops the sweeper and closes every pooled browser
func (p *Pool) Shutdown() {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	entries := p.entries
	p.entries = make(map[string]*poolEntry)
	p.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}

	for userID, entry := range entries {
		p.closeHandle(userID, entry.handle)
	}

	p.logger.Info().Int("closed", len(entries)).Msg("Browser pool shut down")
}

func (p *Pool) closeHandle(userID string, handle Handle) {
	if err := handle.Close(); err != nil {
		p.logger.Debug().Err(err).Str("user_id", userID).Msg("Browser close returned error")
	}
}
