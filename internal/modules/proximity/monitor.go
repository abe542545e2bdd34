// README: Proximity monitor state machine; one tick decides zero or one alarm event.
package proximity

import "arrivo/internal/types"

// Monitor owns the alarm state for a single destination. It does no I/O and
// holds no timer: the owner calls Tick on its own schedule and dispatches the
// returned event. A Monitor is not safe for concurrent use.
type Monitor struct {
	cfg         Config
	destination *Destination
	state       AlarmState
}

func NewMonitor(cfg Config) *Monitor {
	return &Monitor{cfg: cfg}
}

func (m *Monitor) Config() Config {
	return m.cfg
}

// State derives the phase from the alarm flags.
func (m *Monitor) State() State {
	switch {
	case !m.state.Armed:
		return StateDisarmed
	case m.state.EarlyWarningFired:
		return StateEarlyWarned
	default:
		return StateArmed
	}
}

func (m *Monitor) AlarmState() AlarmState {
	return m.state
}

// Destination returns the current destination, if any.
func (m *Monitor) Destination() (Destination, bool) {
	if m.destination == nil {
		return Destination{}, false
	}
	return *m.destination, true
}

// SetDestination replaces the destination and disarms, from any state.
func (m *Monitor) SetDestination(d Destination) {
	m.destination = &d
	m.state = AlarmState{}
}

// ClearDestination removes the destination and disarms.
func (m *Monitor) ClearDestination() {
	m.destination = nil
	m.state = AlarmState{}
}

// Arm starts a new arm cycle. It returns false, leaving the monitor
// disarmed, when no destination is set. Arming an armed monitor keeps the
// current cycle.
func (m *Monitor) Arm() bool {
	if m.destination == nil {
		return false
	}
	if m.state.Armed {
		return true
	}
	m.state = AlarmState{Armed: true}
	return true
}

// Disarm cancels the alarm without emitting anything.
func (m *Monitor) Disarm() {
	m.state = AlarmState{}
}

// Estimate returns the current reading for display without touching state.
func (m *Monitor) Estimate(position *types.Point) (DistanceResult, bool) {
	if position == nil || m.destination == nil {
		return DistanceResult{}, false
	}
	return Measure(*position, m.destination.Coordinate, m.cfg.AverageSpeedKmh), true
}

// Tick runs one proximity check against position. Arrival is checked before
// the early warning, so with inverted radii a point inside both fires Arrived.
func (m *Monitor) Tick(position *types.Point) Event {
	none := Event{Kind: EventNone}
	if !m.state.Armed {
		return none
	}
	reading, ok := m.Estimate(position)
	if !ok {
		return none
	}
	dest := *m.destination
	none.Destination = dest
	none.Reading = &reading

	if reading.Kilometers <= m.cfg.ArrivalRadiusKm {
		m.state.Armed = false
		m.state.ArrivedFired = true
		return Event{Kind: EventArrived, Destination: dest, Reading: &reading}
	}
	if reading.Kilometers <= m.cfg.EarlyRadiusKm && !m.state.EarlyWarningFired {
		m.state.EarlyWarningFired = true
		return Event{Kind: EventEarlyWarning, Destination: dest, Reading: &reading}
	}
	return none
}
