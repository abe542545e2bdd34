// README: Session status snapshot and errors.
package session

import (
	"errors"
	"time"

	"arrivo/internal/modules/proximity"
	"arrivo/internal/types"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrNoDestination   = errors.New("no destination set")
)

// Reading is a distance/ETA reading with its display strings.
type Reading struct {
	Kilometers float64 `json:"kilometers"`
	EtaMinutes float64 `json:"eta_minutes"`
	Distance   string  `json:"distance"`
	ETA        string  `json:"eta"`
}

// EventRecord remembers the last fired event.
type EventRecord struct {
	Kind proximity.EventKind `json:"kind"`
	At   time.Time           `json:"at"`
}

// Status is a point-in-time copy of a session.
type Status struct {
	ID          types.ID               `json:"session_id"`
	State       proximity.State        `json:"state"`
	Alarm       proximity.AlarmState   `json:"alarm"`
	Destination *proximity.Destination `json:"destination,omitempty"`
	Position    *types.Point           `json:"position,omitempty"`
	PositionAt  *time.Time             `json:"position_at,omitempty"`
	Reading     *Reading               `json:"reading,omitempty"`
	SourceError string                 `json:"source_error,omitempty"`
	LastEvent   *EventRecord           `json:"last_event,omitempty"`
	Polling     bool                   `json:"polling"`
}

func newReading(r proximity.DistanceResult) *Reading {
	return &Reading{
		Kilometers: r.Kilometers,
		EtaMinutes: r.EtaMinutes,
		Distance:   proximity.FormatDistance(r.Kilometers),
		ETA:        proximity.FormatDuration(r.EtaMinutes),
	}
}
