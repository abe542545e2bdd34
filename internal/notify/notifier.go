// README: Notification sinks for alarm events; the proximity core never depends on their success.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"arrivo/internal/modules/proximity"
	"arrivo/internal/types"
)

// Notifier delivers an alarm notification to one channel (push, queue, socket...).
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Notification is the sink-facing rendering of a proximity event.
type Notification struct {
	SessionID   types.ID              `json:"session_id"`
	DeviceToken string                `json:"-"`
	Kind        proximity.EventKind   `json:"kind"`
	Destination proximity.Destination `json:"destination"`
	DistanceKm  float64               `json:"distance_km"`
	EtaMinutes  float64               `json:"eta_minutes"`
	Title       string                `json:"title"`
	Body        string                `json:"body"`
	At          time.Time             `json:"at"`
}

var ErrNotFired = errors.New("event carries no notification")

// FromEvent renders a fired event. Events of kind none are rejected.
func FromEvent(sessionID types.ID, deviceToken string, ev proximity.Event, at time.Time) (Notification, error) {
	if !ev.Fired() {
		return Notification{}, ErrNotFired
	}
	n := Notification{
		SessionID:   sessionID,
		DeviceToken: deviceToken,
		Kind:        ev.Kind,
		Destination: ev.Destination,
		At:          at,
	}
	if ev.Reading != nil {
		n.DistanceKm = ev.Reading.Kilometers
		n.EtaMinutes = ev.Reading.EtaMinutes
	}
	name := ev.Destination.Name
	if name == "" {
		name = "your destination"
	}
	switch ev.Kind {
	case proximity.EventEarlyWarning:
		n.Title = "Approaching Destination"
		n.Body = fmt.Sprintf("You will reach %s in about %s!", name, proximity.FormatDuration(n.EtaMinutes))
	case proximity.EventArrived:
		n.Title = "Destination Reached"
		n.Body = fmt.Sprintf("You have arrived at %s (%s away).", name, proximity.FormatDistance(n.DistanceKm))
	}
	return n, nil
}

// Multi fans a notification out to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	log *logrus.Entry
}

func NewLogNotifier(log *logrus.Entry) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.log.WithFields(logrus.Fields{
		"session_id":  n.SessionID,
		"kind":        n.Kind,
		"destination": n.Destination.Name,
		"distance_km": n.DistanceKm,
		"eta_minutes": n.EtaMinutes,
	}).Info(n.Title)
	return nil
}
