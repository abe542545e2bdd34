// README: Session owns one alarm, its latest position and the poll loop that ticks it.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"arrivo/internal/modules/proximity"
	"arrivo/internal/notify"
	"arrivo/internal/types"
)

// dispatchTimeout bounds a single delivery to the notification sink.
const dispatchTimeout = 10 * time.Second

// Options configures a Session.
type Options struct {
	ID          types.ID
	DeviceToken string
	Config      proximity.Config
	Sink        notify.Notifier
	Log         *logrus.Entry
	Now         func() time.Time
}

type pollLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Session serializes position writes and ticks behind one mutex. The latest
// position wins; intermediate positions are never queued.
type Session struct {
	id          types.ID
	deviceToken string
	interval    time.Duration
	sink        notify.Notifier
	log         *logrus.Entry
	now         func() time.Time
	ctx         context.Context

	mu         sync.Mutex
	monitor    *proximity.Monitor
	position   *types.Point
	positionAt time.Time
	sourceErr  string
	lastEvent  *EventRecord
	lastActive time.Time
	poll       *pollLoop
	closed     bool
}

// New creates a disarmed session. ctx bounds the poll loop and event delivery.
func New(ctx context.Context, opts Options) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{
		id:          opts.ID,
		deviceToken: opts.DeviceToken,
		interval:    opts.Config.PollInterval(),
		sink:        opts.Sink,
		log:         log.WithField("session_id", opts.ID),
		now:         now,
		ctx:         ctx,
		monitor:     proximity.NewMonitor(opts.Config),
		lastActive:  now(),
	}
}

func (s *Session) ID() types.ID {
	return s.id
}

// Touch marks the session as used by its client.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

// LastActive reports when the client last pushed a position or called the API.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// UpdatePosition records the latest fix from the position source.
func (s *Session) UpdatePosition(p types.Point, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastActive = s.now()
	s.position = &p
	s.positionAt = at
	s.sourceErr = ""
	return nil
}

// ReportSourceError records a terminal error from the position source
// (permission denied, unavailable). Alarm state is untouched; ticks keep
// using the last known position, or skip if there is none.
func (s *Session) ReportSourceError(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastActive = s.now()
	s.sourceErr = reason
	s.log.WithField("reason", reason).Warn("position source error")
	return nil
}

// SetDestination replaces the destination, disarming and stopping the poll loop.
func (s *Session) SetDestination(d proximity.Destination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastActive = s.now()
	s.monitor.SetDestination(d)
	s.stopLocked()
	return nil
}

// ClearDestination removes the destination, disarming and stopping the poll loop.
func (s *Session) ClearDestination() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastActive = s.now()
	s.monitor.ClearDestination()
	s.stopLocked()
	return nil
}

// Arm arms the alarm and starts the poll loop. It fails with
// ErrNoDestination, leaving the session disarmed, when no destination is set.
func (s *Session) Arm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastActive = s.now()
	if !s.monitor.Arm() {
		return ErrNoDestination
	}
	if s.poll == nil {
		s.startLocked()
	}
	return nil
}

// Disarm cancels the alarm and stops the poll loop. No event is emitted.
func (s *Session) Disarm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastActive = s.now()
	s.monitor.Disarm()
	s.stopLocked()
	return nil
}

// Poll runs one tick now and dispatches its event, if any.
func (s *Session) Poll() proximity.Event {
	ev, _ := s.tick(nil)
	return ev
}

// Close disarms the session and waits for its poll loop to exit.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.monitor.Disarm()
	done := s.stopLocked()
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Status returns a snapshot. The reading is computed from the latest
// position whether or not the alarm is armed.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		ID:          s.id,
		State:       s.monitor.State(),
		Alarm:       s.monitor.AlarmState(),
		SourceError: s.sourceErr,
		Polling:     s.poll != nil,
	}
	if d, ok := s.monitor.Destination(); ok {
		st.Destination = &d
	}
	if s.position != nil {
		p := *s.position
		at := s.positionAt
		st.Position = &p
		st.PositionAt = &at
	}
	if r, ok := s.monitor.Estimate(s.position); ok {
		st.Reading = newReading(r)
	}
	if s.lastEvent != nil {
		ev := *s.lastEvent
		st.LastEvent = &ev
	}
	return st
}

func (s *Session) startLocked() {
	ctx, cancel := context.WithCancel(s.ctx)
	loop := &pollLoop{cancel: cancel, done: make(chan struct{})}
	s.poll = loop
	go s.run(ctx, loop)
	s.log.WithField("interval", s.interval).Debug("poll loop started")
}

// stopLocked cancels the running loop and returns its done channel, or nil.
func (s *Session) stopLocked() <-chan struct{} {
	if s.poll == nil {
		return nil
	}
	loop := s.poll
	s.poll = nil
	loop.cancel()
	s.log.Debug("poll loop stopped")
	return loop.done
}

func (s *Session) run(ctx context.Context, loop *pollLoop) {
	defer close(loop.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, keep := s.tick(loop); !keep {
				return
			}
		}
	}
}

// tick evaluates the monitor once. A loop that has been replaced or stopped
// since its last wake-up evaluates nothing. The loop ends when the monitor is
// no longer armed, which covers the auto-disarm on arrival.
func (s *Session) tick(loop *pollLoop) (proximity.Event, bool) {
	s.mu.Lock()
	if loop != nil && s.poll != loop {
		s.mu.Unlock()
		return proximity.Event{Kind: proximity.EventNone}, false
	}
	ev := s.monitor.Tick(s.position)
	armed := s.monitor.AlarmState().Armed
	if !armed {
		s.stopLocked()
	}
	var n notify.Notification
	if ev.Fired() {
		at := s.now()
		s.lastEvent = &EventRecord{Kind: ev.Kind, At: at}
		n, _ = notify.FromEvent(s.id, s.deviceToken, ev, at)
	}
	s.mu.Unlock()

	if ev.Fired() {
		s.dispatch(n)
	}
	return ev, armed
}

func (s *Session) dispatch(n notify.Notification) {
	log := s.log.WithFields(logrus.Fields{
		"kind":        n.Kind,
		"destination": n.Destination.Name,
		"distance_km": n.DistanceKm,
	})
	log.Info("alarm event")
	if s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, dispatchTimeout)
	defer cancel()
	if err := s.sink.Notify(ctx, n); err != nil {
		log.WithError(err).Warn("notification delivery failed")
	}
}
