// README: Location service feeds position fixes into sessions and throttles snapshot flushing.
package location

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"arrivo/internal/modules/session"
	"arrivo/internal/types"
)

// Sessions resolves live sessions; *session.Manager satisfies it.
type Sessions interface {
	Get(id types.ID) (*session.Session, error)
}

// PositionStore caches and persists fixes; *Store satisfies it.
type PositionStore interface {
	SetGeo(ctx context.Context, id types.ID, pos types.Point) error
	RemoveGeo(ctx context.Context, id types.ID) error
	AppendSnapshot(ctx context.Context, snap Snapshot) error
	ListSnapshots(ctx context.Context, id types.ID, limit int) ([]Snapshot, error)
	LastKnown(ctx context.Context, id types.ID) (types.Point, bool, error)
}

type Service struct {
	sessions      Sessions
	store         PositionStore
	snapshotEvery time.Duration
	log           *logrus.Entry
	now           func() time.Time

	mu       sync.Mutex
	limiters map[types.ID]*rate.Limiter
}

// NewService builds the ingest service. At most one snapshot per
// snapshotEvery is persisted for each session.
func NewService(sessions Sessions, store PositionStore, snapshotEvery time.Duration, log *logrus.Entry) *Service {
	return &Service{
		sessions:      sessions,
		store:         store,
		snapshotEvery: snapshotEvery,
		log:           log,
		now:           time.Now,
		limiters:      make(map[types.ID]*rate.Limiter),
	}
}

// Update hands a fix to its session. Cache and snapshot failures are logged
// and never block the alarm.
func (s *Service) Update(ctx context.Context, u Update) error {
	if !ValidPoint(u.Position) {
		return fmt.Errorf("%w: %v", ErrInvalidPosition, u.Position)
	}
	sess, err := s.sessions.Get(u.SessionID)
	if err != nil {
		return err
	}
	if u.RecordedAt.IsZero() {
		u.RecordedAt = s.now()
	}
	if err := sess.UpdatePosition(u.Position, u.RecordedAt); err != nil {
		return err
	}

	log := s.log.WithField("session_id", u.SessionID)
	if err := s.store.SetGeo(ctx, u.SessionID, u.Position); err != nil {
		log.WithError(err).Warn("caching position failed")
	}
	if s.limiter(u.SessionID).Allow() {
		if err := s.FlushSnapshot(ctx, u); err != nil {
			log.WithError(err).Warn("snapshot flush failed")
		}
	}
	return nil
}

// ReportError forwards a position source failure to the session.
func (s *Service) ReportError(_ context.Context, id types.ID, reason string) error {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return err
	}
	return sess.ReportSourceError(reason)
}

func (s *Service) FlushSnapshot(ctx context.Context, u Update) error {
	snap := Snapshot{
		SessionID:  u.SessionID,
		Position:   u.Position,
		RecordedAt: u.RecordedAt,
	}
	return s.store.AppendSnapshot(ctx, snap)
}

// History returns up to limit persisted snapshots of a session, newest first.
func (s *Service) History(ctx context.Context, id types.ID, limit int) ([]Snapshot, error) {
	snaps, err := s.store.ListSnapshots(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	if snaps == nil {
		snaps = []Snapshot{}
	}
	return snaps, nil
}

// LastKnown returns the cached fix of a session. It is gone once the
// session is forgotten.
func (s *Service) LastKnown(ctx context.Context, id types.ID) (types.Point, bool, error) {
	return s.store.LastKnown(ctx, id)
}

// Forget drops the cached fix and throttle state of a closed session.
func (s *Service) Forget(ctx context.Context, id types.ID) {
	s.mu.Lock()
	delete(s.limiters, id)
	s.mu.Unlock()
	if err := s.store.RemoveGeo(ctx, id); err != nil {
		s.log.WithField("session_id", id).WithError(err).Warn("removing cached position failed")
	}
}

func (s *Service) limiter(id types.ID) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Every(s.snapshotEvery), 1)
		s.limiters[id] = l
	}
	return l
}

// ValidPoint rejects coordinates that cannot come from a real receiver. The
// proximity core itself does not validate coordinates.
func ValidPoint(p types.Point) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
