package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httptransport "arrivo/internal/http"
	"arrivo/internal/maps"
	"arrivo/internal/modules/location"
	"arrivo/internal/modules/proximity"
	"arrivo/internal/modules/savedlocation"
	"arrivo/internal/modules/session"
	"arrivo/internal/notify"
	"arrivo/internal/types"
)

type memPositions struct {
	mu        sync.Mutex
	geo       map[types.ID]types.Point
	snapshots []location.Snapshot
}

func (m *memPositions) SetGeo(_ context.Context, id types.ID, p types.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.geo[id] = p
	return nil
}

func (m *memPositions) RemoveGeo(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.geo, id)
	return nil
}

func (m *memPositions) AppendSnapshot(_ context.Context, snap location.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.ID = int64(len(m.snapshots) + 1)
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *memPositions) ListSnapshots(_ context.Context, id types.ID, limit int) ([]location.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []location.Snapshot
	for i := len(m.snapshots) - 1; i >= 0 && len(out) < limit; i-- {
		if m.snapshots[i].SessionID == id {
			out = append(out, m.snapshots[i])
		}
	}
	return out, nil
}

func (m *memPositions) LastKnown(_ context.Context, id types.ID) (types.Point, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.geo[id]
	return p, ok, nil
}

type memLocations struct {
	mu   sync.Mutex
	next int64
	rows map[int64]savedlocation.Location
}

func (m *memLocations) ListByUser(_ context.Context, userID int64) ([]savedlocation.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []savedlocation.Location{}
	for id := int64(1); id <= m.next; id++ {
		if l, ok := m.rows[id]; ok && l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memLocations) Get(_ context.Context, id int64) (*savedlocation.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[id]
	if !ok {
		return nil, savedlocation.ErrNotFound
	}
	return &l, nil
}

func (m *memLocations) Create(_ context.Context, l *savedlocation.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	l.ID = m.next
	m.rows[l.ID] = *l
	return nil
}

func (m *memLocations) Update(_ context.Context, l *savedlocation.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[l.ID]; !ok {
		return savedlocation.ErrNotFound
	}
	m.rows[l.ID] = *l
	return nil
}

func (m *memLocations) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return savedlocation.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

type stubGeocoder struct {
	addr string
	err  error
}

func (g stubGeocoder) ReverseGeocode(context.Context, types.Point) (string, error) {
	return g.addr, g.err
}

type testEnv struct {
	router    http.Handler
	sessions  *session.Manager
	hub       *notify.Hub
	positions *memPositions
}

func newTestEnv(t *testing.T, geocoder stubGeocoder) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	l := logrus.New()
	l.SetOutput(io.Discard)
	log := logrus.NewEntry(l)

	cfg := proximity.DefaultConfig()
	cfg.PollIntervalMs = int(time.Hour / time.Millisecond)

	hub := notify.NewHub(log)
	mgr := session.NewManager(context.Background(), cfg, hub, log)
	t.Cleanup(func() {
		mgr.Close()
		hub.Close()
	})

	positions := &memPositions{geo: make(map[types.ID]types.Point)}
	server := httptransport.NewServer(httptransport.ServerDeps{
		Sessions:       mgr,
		Positions:      location.NewService(mgr, positions, time.Minute, log),
		SavedLocations: savedlocation.NewService(&memLocations{rows: map[int64]savedlocation.Location{}}),
		Geocoder:       geocoder,
		Hub:            hub,
		Log:            log,
	})
	return &testEnv{router: server.Routes(), sessions: mgr, hub: hub, positions: positions}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	w := e.do(http.MethodPost, "/api/sessions", map[string]any{"device_token": "tok"})
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.SessionID
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) session.Status {
	t.Helper()
	var st session.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{})
	w := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{})
	id := env.createSession(t)
	base := "/api/sessions/" + id

	w := env.do(http.MethodPost, base+"/alarm", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "arming without destination")

	w = env.do(http.MethodPut, base+"/destination", map[string]any{
		"name": "Office", "address": "1 Main St", "latitude": 40.7128, "longitude": -74.0060,
	})
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeStatus(t, w)
	require.NotNil(t, st.Destination)
	assert.Equal(t, "Office", st.Destination.Name)

	w = env.do(http.MethodPut, base+"/position", map[string]any{"latitude": 40.9, "longitude": -74.0060})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, base+"/alarm", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st = decodeStatus(t, w)
	assert.Equal(t, proximity.StateArmed, st.State)
	assert.True(t, st.Polling)
	require.NotNil(t, st.Reading)
	assert.InDelta(t, 20.9, st.Reading.Kilometers, 0.2)

	w = env.do(http.MethodDelete, base+"/alarm", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, proximity.StateDisarmed, decodeStatus(t, w).State)

	w = env.do(http.MethodDelete, base+"/destination", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decodeStatus(t, w).Destination)

	w = env.do(http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSession_BadIDs(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{})

	w := env.do(http.MethodGet, "/api/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/sessions/8a4f2a3c-9a51-4f56-9e0e-3f1e3d0a2b11", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetDestination_MapTap(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{addr: "5 Market St"})
	id := env.createSession(t)

	w := env.do(http.MethodPut, "/api/sessions/"+id+"/destination", map[string]any{"latitude": 1.0, "longitude": 2.0})
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeStatus(t, w)
	require.NotNil(t, st.Destination)
	assert.Equal(t, "Selected Location", st.Destination.Name)
	assert.Equal(t, "5 Market St", st.Destination.Address)
}

func TestSetDestination_GeocoderFailureIsVisible(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{err: maps.ErrGeocodeFailed})
	id := env.createSession(t)

	w := env.do(http.MethodPut, "/api/sessions/"+id+"/destination", map[string]any{"latitude": 1.0, "longitude": 2.0})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = env.do(http.MethodGet, "/api/sessions/"+id, nil)
	assert.Nil(t, decodeStatus(t, w).Destination)
}

func TestSetDestination_Validation(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{})
	id := env.createSession(t)
	path := "/api/sessions/" + id + "/destination"

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, path, map[string]any{"name": "x"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, path, map[string]any{"latitude": 100.0, "longitude": 0.0}).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPut, path, map[string]any{"saved_location_id": 42}).Code)
}

func TestSetDestination_FromSavedLocation(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{})

	w := env.do(http.MethodPost, "/api/locations", map[string]any{
		"name": "Home", "address": "9 Elm St", "latitude": 25.0330, "longitude": 121.5654,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Location savedlocation.Location `json:"location"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	id := env.createSession(t)
	w = env.do(http.MethodPut, "/api/sessions/"+id+"/destination", map[string]any{"saved_location_id": created.Location.ID})
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeStatus(t, w)
	require.NotNil(t, st.Destination)
	assert.Equal(t, "Home", st.Destination.Name)
	assert.Equal(t, types.Point{Lat: 25.0330, Lng: 121.5654}, st.Destination.Coordinate)
}

func TestPositionEndpoints(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{})
	id := env.createSession(t)
	base := "/api/sessions/" + id

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, base+"/position", map[string]any{"latitude": 1.0}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, base+"/position", map[string]any{"latitude": 95.0, "longitude": 1.0}).Code)

	w := env.do(http.MethodPost, base+"/position/error", map[string]any{"reason": "permission denied"})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodGet, base, nil)
	assert.Equal(t, "permission denied", decodeStatus(t, w).SourceError)

	w = env.do(http.MethodPut, base+"/position", map[string]any{"latitude": 1.0, "longitude": 2.0, "timestamp": 1715003456000})
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeStatus(t, env.do(http.MethodGet, base, nil))
	assert.Empty(t, st.SourceError)
	require.NotNil(t, st.PositionAt)
	assert.True(t, st.PositionAt.Equal(time.UnixMilli(1715003456000)))
}

func TestSavedLocationsCRUD(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{})

	w := env.do(http.MethodPost, "/api/locations", map[string]any{"name": "Gym"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid location data")

	w = env.do(http.MethodPost, "/api/locations", map[string]any{
		"name": "Gym", "address": "2 Side St", "latitude": 1.0, "longitude": 2.0,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(http.MethodGet, "/api/locations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Locations []savedlocation.Location `json:"locations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Locations, 1)
	loc := list.Locations[0]
	assert.Equal(t, 30, loc.EarlyNotification)
	assert.Equal(t, 500, loc.ArrivalRadius)

	w = env.do(http.MethodPatch, "/api/locations/1", map[string]any{"is_active": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_active":true`)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/locations/abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/locations/99", nil).Code)

	w = env.do(http.MethodDelete, "/api/locations/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/locations/1", nil).Code)
}

func TestStream_DeliversArrival(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{})
	id := env.createSession(t)
	base := "/api/sessions/" + id

	require.Equal(t, http.StatusOK, env.do(http.MethodPut, base+"/destination", map[string]any{
		"name": "Office", "latitude": 0.0, "longitude": 0.0,
	}).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPut, base+"/position", map[string]any{"latitude": 0.001, "longitude": 0.0}).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, base+"/alarm", nil).Code)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + base + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Subscribers(types.ID(id)) == 1 }, 2*time.Second, 10*time.Millisecond)

	sess, err := env.sessions.Get(types.ID(id))
	require.NoError(t, err)
	ev := sess.Poll()
	require.Equal(t, proximity.EventArrived, ev.Kind)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var n notify.Notification
	require.NoError(t, json.Unmarshal(msg, &n))
	assert.Equal(t, proximity.EventArrived, n.Kind)
	assert.Equal(t, "Destination Reached", n.Title)
}

func TestStream_UnknownSession(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{})
	w := env.do(http.MethodGet, "/api/sessions/8a4f2a3c-9a51-4f56-9e0e-3f1e3d0a2b11/stream", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}


func TestSessionCreate_UnknownLengthBody(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{})

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/sessions", io.NopCloser(strings.NewReader(body)))
		req.Header.Set("Content-Type", "application/json")
		require.EqualValues(t, -1, req.ContentLength)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusCreated, send(`{"device_token":"tok"}`).Code)
	assert.Equal(t, http.StatusCreated, send("").Code)
	assert.Equal(t, http.StatusBadRequest, send(`{"device_token":`).Code)
	assert.Equal(t, 2, env.sessions.Len())
}

func TestSessionCreate_WithoutBody(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{})
	w := env.do(http.MethodPost, "/api/sessions", nil)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSessionHistory(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{})
	id := env.createSession(t)
	base := "/api/sessions/" + id

	require.Equal(t, http.StatusOK, env.do(http.MethodPut, base+"/position", map[string]any{
		"latitude": 1.5, "longitude": 2.5, "timestamp": 1715003456000,
	}).Code)

	w := env.do(http.MethodGet, base+"/history?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		SessionID string              `json:"session_id"`
		Snapshots []location.Snapshot `json:"snapshots"`
		LastKnown *types.Point        `json:"last_known"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.SessionID)
	require.Len(t, resp.Snapshots, 1)
	assert.Equal(t, types.Point{Lat: 1.5, Lng: 2.5}, resp.Snapshots[0].Position)
	assert.True(t, resp.Snapshots[0].RecordedAt.Equal(time.UnixMilli(1715003456000)))
	require.NotNil(t, resp.LastKnown)
	assert.Equal(t, types.Point{Lat: 1.5, Lng: 2.5}, *resp.LastKnown)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, base+"/history?limit=0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, base+"/history?limit=ten", nil).Code)

	// The trail outlives the session; the cached fix does not.
	require.Equal(t, http.StatusOK, env.do(http.MethodDelete, base, nil).Code)
	w = env.do(http.MethodGet, base+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp.LastKnown = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Snapshots, 1)
	assert.Nil(t, resp.LastKnown)
}

func TestSessionDelete_DisconnectsStreams(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{})
	id := env.createSession(t)
	base := "/api/sessions/" + id

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + base + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return env.hub.Subscribers(types.ID(id)) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusOK, env.do(http.MethodDelete, base, nil).Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return env.hub.Subscribers(types.ID(id)) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestIdleReaperClearsCachedFix(t *testing.T) {
	env := newTestEnv(t, stubGeocoder{})
	id := env.createSession(t)
	require.Equal(t, http.StatusOK, env.do(http.MethodPut, "/api/sessions/"+id+"/position", map[string]any{
		"latitude": 1.0, "longitude": 2.0,
	}).Code)

	reaped := env.sessions.ReapIdle(-time.Minute)
	assert.Equal(t, []types.ID{types.ID(id)}, reaped)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/sessions/"+id, nil).Code)

	env.positions.mu.Lock()
	defer env.positions.mu.Unlock()
	assert.NotContains(t, env.positions.geo, types.ID(id))
}
