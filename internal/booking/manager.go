package booking

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type managed struct {
	session *Session
	seen    time.Time
}

// Manager owns one Session per user.  Queue workers run under the
// manager's context, so Close stops all of them.
type Manager struct {
	deps     Deps
	settings Settings
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[int64]*managed
}

func NewManager(deps Deps, settings Settings) *Manager {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps:     deps,
		settings: settings.withDefaults(),
		log:      deps.Log.Named("booking"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: map[int64]*managed{},
	}
}

// Session returns the user's session, creating it on first use.  The
// bearer token is refreshed on every call so queued work always uses the
// latest credential.
func (m *Manager) Session(u User) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.settings.Now()
	if e, ok := m.sessions[u.ID]; ok {
		e.seen = now
		e.session.setToken(u.Token)
		return e.session
	}
	deps := m.deps
	deps.Log = m.log
	s := newSession(m.ctx, u, deps, m.settings)
	m.sessions[u.ID] = &managed{session: s, seen: now}
	return s
}

// Lookup returns the user's session without creating one.
func (m *Manager) Lookup(userID int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Resume is Session(u).Resume: the checkout stage's entry point after a
// navigation or reload.
func (m *Manager) Resume(ctx context.Context, u User) (Handoff, error) {
	return m.Session(u).Resume(ctx)
}

// Drop tears the user's booking down: the session is reset and forgotten
// and the persisted bill id is deleted.  Used on explicit navigation away
// and when the upstream API rejects the user's credential.
func (m *Manager) Drop(ctx context.Context, userID int64) error {
	m.mu.Lock()
	e, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok {
		e.session.Reset()
	}
	return m.deps.Bills.Delete(ctx, userID)
}

// Sweep forgets sessions untouched for longer than idle.  Their persisted
// bill ids are kept, so a later Resume can still pick the bill up.  It
// returns the number of sessions removed.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.settings.Now().Add(-idle)
	var stale []*Session
	m.mu.Lock()
	for id, e := range m.sessions {
		if e.seen.Before(cutoff) && !e.session.Syncing() {
			stale = append(stale, e.session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range stale {
		s.Reset()
	}
	if len(stale) > 0 {
		m.log.Info("idle sessions swept", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, every, idle time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		case <-t.C:
			m.Sweep(idle)
		}
	}
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops every queue worker and forgets all sessions.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[int64]*managed{}
	m.mu.Unlock()
	for _, e := range sessions {
		e.session.Reset()
	}
	m.cancel()
}
