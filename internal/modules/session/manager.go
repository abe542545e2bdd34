// README: Manager is the explicit owner of all live sessions.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"arrivo/internal/modules/proximity"
	"arrivo/internal/notify"
	"arrivo/internal/types"
)

// CreateOptions holds per-session settings supplied by the client.
type CreateOptions struct {
	DeviceToken string
}

type Manager struct {
	ctx  context.Context
	cfg  proximity.Config
	sink notify.Notifier
	log  *logrus.Entry
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[types.ID]*Session
	onRemove []func(types.ID)
}

// NewManager builds a manager whose sessions share cfg and sink. Cancelling
// ctx stops every poll loop.
func NewManager(ctx context.Context, cfg proximity.Config, sink notify.Notifier, log *logrus.Entry) *Manager {
	return &Manager{
		ctx:      ctx,
		cfg:      cfg,
		sink:     sink,
		log:      log,
		now:      time.Now,
		sessions: make(map[types.ID]*Session),
	}
}

// OnRemove registers fn to run after a session is removed, explicitly or
// by the idle reaper. Register hooks before serving traffic.
func (m *Manager) OnRemove(fn func(id types.ID)) {
	m.mu.Lock()
	m.onRemove = append(m.onRemove, fn)
	m.mu.Unlock()
}

func (m *Manager) Create(opts CreateOptions) *Session {
	id := types.ID(uuid.NewString())
	s := New(m.ctx, Options{
		ID:          id,
		DeviceToken: opts.DeviceToken,
		Config:      m.cfg,
		Sink:        m.sink,
		Log:         m.log,
		Now:         m.now,
	})

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.log.WithField("session_id", id).Info("session created")
	return s
}

func (m *Manager) Get(id types.ID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove closes the session and forgets it.
func (m *Manager) Remove(id types.ID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	hooks := m.onRemove
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	for _, fn := range hooks {
		fn(id)
	}
	m.log.WithField("session_id", id).Info("session closed")
	return nil
}

// ReapIdle removes every session whose client has been silent for longer
// than ttl and returns their ids.
func (m *Manager) ReapIdle(ttl time.Duration) []types.ID {
	cutoff := m.now().Add(-ttl)

	m.mu.RLock()
	var idle []types.ID
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	reaped := make([]types.ID, 0, len(idle))
	for _, id := range idle {
		// A concurrent Delete may have won the race.
		if err := m.Remove(id); err != nil {
			continue
		}
		reaped = append(reaped, id)
	}
	if len(reaped) > 0 {
		m.log.WithField("count", len(reaped)).Info("idle sessions reaped")
	}
	return reaped
}

// RunReaper calls ReapIdle every interval until ctx is done. A non-positive
// ttl disables reaping.
func (m *Manager) RunReaper(ctx context.Context, ttl, every time.Duration) {
	if ttl <= 0 || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ReapIdle(ttl)
		}
	}
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes every session and waits for their poll loops.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[types.ID]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
