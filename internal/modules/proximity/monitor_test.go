package proximity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arrivo/internal/types"
)

var station = Destination{
	Name:       "Central Station",
	Address:    "1 Station Square",
	Coordinate: types.Point{Lat: 10, Lng: 20},
}

func at(km float64) *types.Point {
	p := pointNorthKm(station.Coordinate, km)
	return &p
}

func TestMonitor_ArmWithoutDestinationStaysDisarmed(t *testing.T) {
	m := NewMonitor(DefaultConfig())

	assert.False(t, m.Arm())
	assert.Equal(t, StateDisarmed, m.State())
	assert.Equal(t, AlarmState{}, m.AlarmState())
}

func TestMonitor_FullArmCycle(t *testing.T) {
	m := NewMonitor(DefaultConfig())
	m.SetDestination(station)
	require.True(t, m.Arm())
	require.Equal(t, StateArmed, m.State())

	ev := m.Tick(at(20))
	assert.Equal(t, EventNone, ev.Kind)
	require.NotNil(t, ev.Reading)
	assert.InDelta(t, 20, ev.Reading.Kilometers, 1e-6)
	assert.Equal(t, StateArmed, m.State())

	ev = m.Tick(at(14))
	require.Equal(t, EventEarlyWarning, ev.Kind)
	assert.Equal(t, station, ev.Destination)
	assert.InDelta(t, 16.8, ev.Reading.EtaMinutes, 1e-6)
	assert.Equal(t, StateEarlyWarned, m.State())

	ev = m.Tick(at(0.3))
	require.Equal(t, EventArrived, ev.Kind)
	assert.Equal(t, station, ev.Destination)
	assert.Equal(t, StateDisarmed, m.State())
	assert.Equal(t, AlarmState{Armed: false, EarlyWarningFired: true, ArrivedFired: true}, m.AlarmState())

	for i := 0; i < 3; i++ {
		ev = m.Tick(at(0.1))
		assert.Equal(t, EventNone, ev.Kind)
		assert.Nil(t, ev.Reading)
	}
}

func TestMonitor_EarlyWarningFiresOncePerCycle(t *testing.T) {
	m := NewMonitor(DefaultConfig())
	m.SetDestination(station)
	m.Arm()

	fired := 0
	for _, km := range []float64{14, 10, 16, 12, 5, 1} {
		if m.Tick(at(km)).Kind == EventEarlyWarning {
			fired++
		}
	}
	assert.Equal(t, 1, fired)
	assert.Equal(t, StateEarlyWarned, m.State())
}

func TestMonitor_DirectArrivalSkipsEarlyWarning(t *testing.T) {
	m := NewMonitor(DefaultConfig())
	m.SetDestination(station)
	m.Arm()

	ev := m.Tick(at(0.49))
	assert.Equal(t, EventArrived, ev.Kind)
	assert.Equal(t, AlarmState{ArrivedFired: true}, m.AlarmState())
}

func TestMonitor_ArrivalAtExactRadius(t *testing.T) {
	edge := at(0.5)
	cfg := DefaultConfig()
	cfg.ArrivalRadiusKm = DistanceKm(*edge, station.Coordinate)
	m := NewMonitor(cfg)
	m.SetDestination(station)
	m.Arm()

	assert.Equal(t, EventArrived, m.Tick(edge).Kind)
	assert.Equal(t, AlarmState{ArrivedFired: true}, m.AlarmState())
}

func TestMonitor_ThresholdsAreInclusive(t *testing.T) {
	cfg := Config{EarlyRadiusKm: 15, ArrivalRadiusKm: 0.5, PollIntervalMs: 10, AverageSpeedKmh: 50}
	m := NewMonitor(cfg)
	m.SetDestination(station)
	m.Arm()

	assert.Equal(t, EventEarlyWarning, m.Tick(at(15-1e-9)).Kind)
	assert.Equal(t, EventArrived, m.Tick(at(0.5-1e-9)).Kind)
}

func TestMonitor_SetDestinationWhileEarlyWarnedResets(t *testing.T) {
	m := NewMonitor(DefaultConfig())
	m.SetDestination(station)
	m.Arm()
	require.Equal(t, EventEarlyWarning, m.Tick(at(14)).Kind)

	airport := Destination{Name: "Airport", Coordinate: types.Point{Lat: 11, Lng: 21}}
	m.SetDestination(airport)
	assert.Equal(t, StateDisarmed, m.State())
	assert.Equal(t, AlarmState{}, m.AlarmState())
	assert.Equal(t, EventNone, m.Tick(at(14)).Kind)

	require.True(t, m.Arm())
	near := pointNorthKm(airport.Coordinate, 14)
	ev := m.Tick(&near)
	assert.Equal(t, EventEarlyWarning, ev.Kind)
	assert.Equal(t, airport, ev.Destination)
}

func TestMonitor_ConstantDistanceBeyondThresholdsIsQuiet(t *testing.T) {
	m := NewMonitor(DefaultConfig())
	m.SetDestination(station)
	m.Arm()

	for i := 0; i < 10; i++ {
		assert.Equal(t, EventNone, m.Tick(at(42)).Kind)
	}
	assert.Equal(t, StateArmed, m.State())
}

func TestMonitor_SkipsTickWithoutPosition(t *testing.T) {
	m := NewMonitor(DefaultConfig())
	m.SetDestination(station)
	m.Arm()

	ev := m.Tick(nil)
	assert.Equal(t, EventNone, ev.Kind)
	assert.Nil(t, ev.Reading)
	assert.Equal(t, StateArmed, m.State())

	assert.Equal(t, EventEarlyWarning, m.Tick(at(3)).Kind)
}

func TestMonitor_DisarmCancelsWithoutEvent(t *testing.T) {
	m := NewMonitor(DefaultConfig())
	m.SetDestination(station)
	m.Arm()
	m.Tick(at(14))

	m.Disarm()
	assert.Equal(t, StateDisarmed, m.State())
	assert.Equal(t, AlarmState{}, m.AlarmState())
	assert.Equal(t, EventNone, m.Tick(at(0.1)).Kind)

	_, ok := m.Destination()
	assert.True(t, ok, "disarm keeps the destination")
}

func TestMonitor_ClearDestination(t *testing.T) {
	m := NewMonitor(DefaultConfig())
	m.SetDestination(station)
	m.Arm()

	m.ClearDestination()
	_, ok := m.Destination()
	assert.False(t, ok)
	assert.Equal(t, StateDisarmed, m.State())
	assert.False(t, m.Arm())
}

func TestMonitor_RearmAfterArrival(t *testing.T) {
	m := NewMonitor(DefaultConfig())
	m.SetDestination(station)
	m.Arm()
	require.Equal(t, EventArrived, m.Tick(at(0.2)).Kind)

	require.True(t, m.Arm())
	assert.Equal(t, AlarmState{Armed: true}, m.AlarmState())
	assert.Equal(t, EventEarlyWarning, m.Tick(at(7)).Kind)
}

func TestMonitor_InvertedRadiiCheckArrivalFirst(t *testing.T) {
	cfg := Config{EarlyRadiusKm: 1, ArrivalRadiusKm: 5, PollIntervalMs: 10, AverageSpeedKmh: 50}
	m := NewMonitor(cfg)
	m.SetDestination(station)
	m.Arm()

	assert.Equal(t, EventArrived, m.Tick(at(0.8)).Kind)
}

func TestMonitor_EstimateDoesNotChangeState(t *testing.T) {
	m := NewMonitor(DefaultConfig())
	_, ok := m.Estimate(at(3))
	assert.False(t, ok)

	m.SetDestination(station)
	r, ok := m.Estimate(at(3))
	require.True(t, ok)
	assert.InDelta(t, 3, r.Kilometers, 1e-6)
	assert.Equal(t, StateDisarmed, m.State())
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ArrivalRadiusKm = 20
	assert.ErrorIs(t, cfg.Validate(), ErrInvertedRadii)

	cfg = DefaultConfig()
	cfg.EarlyRadiusKm = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidRadius)

	cfg = DefaultConfig()
	cfg.PollIntervalMs = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidInterval)

	cfg = DefaultConfig()
	cfg.AverageSpeedKmh = -1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidSpeed)

	assert.Equal(t, 10*time.Second, DefaultConfig().PollInterval())
}
