// README: Alarm state, configuration and event types for the proximity monitor.
package proximity

import (
	"errors"
	"time"

	"arrivo/internal/types"
)

// State is the externally visible phase of a monitor.
type State string

const (
	StateDisarmed    State = "disarmed"
	StateArmed       State = "armed"
	StateEarlyWarned State = "early_warned"
	// StateArrived is only ever reported on the Arrived event; the monitor
	// disarms in the same tick.
	StateArrived State = "arrived"
)

// Destination is the place the alarm watches for.
type Destination struct {
	Name       string      `json:"name"`
	Address    string      `json:"address"`
	Coordinate types.Point `json:"coordinate"`
}

// AlarmState holds the per-arm-cycle flags. ArrivedFired implies !Armed.
type AlarmState struct {
	Armed             bool `json:"armed"`
	EarlyWarningFired bool `json:"early_warning_fired"`
	ArrivedFired      bool `json:"arrived_fired"`
}

// DistanceResult is one distance/ETA reading. It is recomputed on every tick.
type DistanceResult struct {
	Kilometers float64 `json:"kilometers"`
	EtaMinutes float64 `json:"eta_minutes"`
}

// EventKind tags the Event variant.
type EventKind string

const (
	EventNone         EventKind = "none"
	EventEarlyWarning EventKind = "early_warning"
	EventArrived      EventKind = "arrived"
)

// Event is the outcome of a tick. Reading is nil when the tick was skipped
// because the monitor was disarmed or an input was missing.
type Event struct {
	Kind        EventKind
	Destination Destination
	Reading     *DistanceResult
}

// Fired reports whether the event should be dispatched to a notification sink.
func (e Event) Fired() bool {
	return e.Kind == EventEarlyWarning || e.Kind == EventArrived
}

var (
	ErrInvertedRadii   = errors.New("arrival radius must be smaller than early-warning radius")
	ErrInvalidRadius   = errors.New("radius must be positive")
	ErrInvalidInterval = errors.New("poll interval must be positive")
	ErrInvalidSpeed    = errors.New("average speed must be positive")
)

// Config carries the alarm thresholds. None of them are hard-coded in the
// monitor.
type Config struct {
	EarlyRadiusKm   float64 `yaml:"early_radius_km"`
	ArrivalRadiusKm float64 `yaml:"arrival_radius_km"`
	PollIntervalMs  int     `yaml:"poll_interval_ms"`
	AverageSpeedKmh float64 `yaml:"average_speed_kmh"`
}

// DefaultConfig returns the stock alarm thresholds.
func DefaultConfig() Config {
	return Config{
		EarlyRadiusKm:   15,
		ArrivalRadiusKm: 0.5,
		PollIntervalMs:  10000,
		AverageSpeedKmh: 50,
	}
}

// PollInterval returns PollIntervalMs as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Validate rejects non-positive values and inverted radii. A monitor built
// directly from an inverted config still checks arrival first.
func (c Config) Validate() error {
	if c.EarlyRadiusKm <= 0 || c.ArrivalRadiusKm <= 0 {
		return ErrInvalidRadius
	}
	if c.ArrivalRadiusKm >= c.EarlyRadiusKm {
		return ErrInvertedRadii
	}
	if c.PollIntervalMs <= 0 {
		return ErrInvalidInterval
	}
	if c.AverageSpeedKmh <= 0 {
		return ErrInvalidSpeed
	}
	return nil
}
