package session

import (
	"log/slog"
	"sync"
	"time"
)

// Config holds session manager tuning parameters.
type Config struct {
	// MaxSessions is the hard capacity bound of the registry.
	// Zero means no session can ever be created.
	MaxSessions int

	// IdleTimeout is how long a session may stay untouched before the
	// sweep evicts it. Default: 30 minutes.
	IdleTimeout time.Duration

	// SweepInterval is the period of the background cleanup sweep.
	// Default: 1 minute.
	SweepInterval time.Duration
}

// Manager is the bounded session registry. Thread-safe. A background sweep
// goroutine evicts idle sessions; call Dispose exactly once at shutdown.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	disposed bool

	max         int
	idleTimeout time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once // Prevent double-close panic on Dispose()

	logger *slog.Logger
}

// NewManager creates a Manager and starts its background sweep.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		sessions:    make(map[string]*Session),
		max:         cfg.MaxSessions,
		idleTimeout: cfg.IdleTimeout,
		stopChan:    make(chan struct{}),
		logger:      logger,
	}

	m.wg.Add(1)
	go m.sweep(cfg.SweepInterval)

	return m
}

// sweep runs Cleanup on a ticker until Dispose stops it.
func (m *Manager) sweep(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			if n := m.Cleanup(); n > 0 {
				m.logger.Debug("evicted idle sessions", "count", n)
			}
		}
	}
}

// Create inserts a new session under the given id.
//
// Creation is atomic per id: a second Create for an id that already exists
// fails, so two concurrent creates can never both succeed. At capacity the
// manager first runs an eager idle sweep; if the registry is still full and
// evictOnFull is set, the single least-recently-active session is sacrificed.
// Returns false when the id exists, when MaxSessions is zero, or when the
// registry is full and evictOnFull is unset.
func (m *Manager) Create(id string, sess *Session, evictOnFull bool) bool {
	now := time.Now().UTC()
	var closers []Handler

	m.mu.Lock()
	ok := func() bool {
		if m.disposed {
			return false
		}
		if _, exists := m.sessions[id]; exists {
			return false
		}
		if len(m.sessions) >= m.max {
			closers = append(closers, m.cleanupLocked(now)...)
		}
		if len(m.sessions) >= m.max {
			if !evictOnFull {
				return false
			}
			victim := m.lruLocked()
			if victim == "" {
				// MaxSessions == 0: nothing to evict, nothing fits.
				return false
			}
			evicted := m.sessions[victim]
			delete(m.sessions, victim)
			closers = append(closers, evicted.Handler)
			m.logger.Info("evicted session at capacity",
				"evicted_id", victim,
				"idle", evicted.IdleFor(now).String())
		}

		stored := copySession(sess)
		stored.ID = id
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		stored.LastActivity = now
		m.sessions[id] = stored
		return true
	}()
	m.mu.Unlock()

	closeHandlers(closers)
	return ok
}

// Get returns the session and refreshes its last-activity timestamp.
// Read implies liveness: a successful Get keeps the session out of the
// next sweep's reach.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	sess.LastActivity = time.Now().UTC()
	return copySession(sess), true
}

// Peek returns the session without refreshing activity. Diagnostics and
// monitoring paths use this so they do not keep dead sessions alive.
func (m *Manager) Peek(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return copySession(sess), true
}

// Delete removes a session and closes its bound handler. Idempotent:
// the second call for the same id returns false.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	closeHandlers([]Handler{sess.Handler})
	return true
}

// Cleanup evicts every session whose idle time exceeds the configured
// timeout and returns the eviction count. Called by the background sweep
// and eagerly by Create under capacity pressure.
func (m *Manager) Cleanup() int {
	now := time.Now().UTC()

	m.mu.Lock()
	closers := m.cleanupLocked(now)
	m.mu.Unlock()

	closeHandlers(closers)
	return len(closers)
}

// cleanupLocked removes idle-expired sessions and returns their handlers.
// Caller holds m.mu; handlers must be closed after the lock is released.
func (m *Manager) cleanupLocked(now time.Time) []Handler {
	var closers []Handler
	for id, sess := range m.sessions {
		if sess.IdleFor(now) > m.idleTimeout {
			delete(m.sessions, id)
			closers = append(closers, sess.Handler)
		}
	}
	return closers
}

// lruLocked returns the id of the session with the oldest last-activity
// timestamp, or "" when the registry is empty. Caller holds m.mu.
func (m *Manager) lruLocked() string {
	var victim string
	var oldest time.Time
	for id, sess := range m.sessions {
		if victim == "" || sess.LastActivity.Before(oldest) {
			victim = id
			oldest = sess.LastActivity
		}
	}
	return victim
}

// Len returns the number of active sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Cap returns the configured capacity bound.
func (m *Manager) Cap() int {
	return m.max
}

// Dispose stops the background sweep and clears all sessions, closing their
// handlers. Safe to call with zero sessions and safe to call more than once.
func (m *Manager) Dispose() {
	m.once.Do(func() {
		close(m.stopChan)
	})
	m.wg.Wait()

	m.mu.Lock()
	closers := make([]Handler, 0, len(m.sessions))
	for _, sess := range m.sessions {
		closers = append(closers, sess.Handler)
	}
	m.sessions = make(map[string]*Session)
	m.disposed = true
	m.mu.Unlock()

	closeHandlers(closers)
}

// closeHandlers closes handlers outside the registry lock so a slow Close
// cannot stall unrelated sessions.
func closeHandlers(handlers []Handler) {
	for _, h := range handlers {
		if h != nil {
			_ = h.Close()
		}
	}
}
