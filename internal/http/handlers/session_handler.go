// README: Session handlers: lifecycle, destination and alarm control.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"arrivo/internal/modules/location"
	"arrivo/internal/modules/proximity"
	"arrivo/internal/modules/savedlocation"
	"arrivo/internal/modules/session"
	"arrivo/internal/types"
)

// selectedLocationName names destinations picked by tapping the map.
const selectedLocationName = "Selected Location"

// SavedLocations looks up saved locations by id.
type SavedLocations interface {
	Get(ctx context.Context, id int64) (*savedlocation.Location, error)
}

// Geocoder resolves a map tap to an address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, p types.Point) (string, error)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type SessionHandler struct {
	sessions  *session.Manager
	positions *location.Service
	saved     SavedLocations
	geocoder  Geocoder
}

func NewSessionHandler(sessions *session.Manager, positions *location.Service, saved SavedLocations, geocoder Geocoder) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		positions: positions,
		saved:     saved,
		geocoder:  geocoder,
	}
}

type createSessionReq struct {
	DeviceToken string `json:"device_token"`
}

type destinationReq struct {
	SavedLocationID *int64   `json:"saved_location_id"`
	Name            string   `json:"name"`
	Address         string   `json:"address"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	// The body is optional; chunked requests carry no Content-Length.
	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	s := h.sessions.Create(session.CreateOptions{DeviceToken: req.DeviceToken})
	writeJSON(c, http.StatusCreated, gin.H{"session_id": s.ID()})
}

func (h *SessionHandler) Get(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, s.Status())
}

func (h *SessionHandler) Delete(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if err := h.sessions.Remove(id); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "closed"})
}

// History returns the persisted trail of a session, newest first, and its
// cached last known fix. It also serves sessions that have since closed.
func (h *SessionHandler) History(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	if s, err := h.sessions.Get(id); err == nil {
		s.Touch()
	}

	ctx := c.Request.Context()
	snaps, err := h.positions.History(ctx, id, limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "history unavailable")
		return
	}
	resp := gin.H{"session_id": id, "snapshots": snaps, "last_known": nil}
	if p, ok, err := h.positions.LastKnown(ctx, id); err == nil && ok {
		resp["last_known"] = p
	}
	writeJSON(c, http.StatusOK, resp)
}

// SetDestination accepts explicit coordinates, a saved location id, or a
// bare map tap whose address is resolved by reverse geocoding.
func (h *SessionHandler) SetDestination(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	var req destinationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	dest, err := h.resolveDestination(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if err := s.SetDestination(dest); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s.Status())
}

func (h *SessionHandler) ClearDestination(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := s.ClearDestination(); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s.Status())
}

func (h *SessionHandler) Arm(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := s.Arm(); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s.Status())
}

func (h *SessionHandler) Disarm(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := s.Disarm(); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s.Status())
}

func (h *SessionHandler) lookup(c *gin.Context) (*session.Session, bool) {
	id, ok := sessionID(c)
	if !ok {
		return nil, false
	}
	s, err := h.sessions.Get(id)
	if err != nil {
		writeServiceError(c, err)
		return nil, false
	}
	s.Touch()
	return s, true
}

func (h *SessionHandler) resolveDestination(ctx context.Context, req destinationReq) (proximity.Destination, error) {
	if req.SavedLocationID != nil {
		if h.saved == nil {
			return proximity.Destination{}, savedlocation.ErrNotFound
		}
		l, err := h.saved.Get(ctx, *req.SavedLocationID)
		if err != nil {
			return proximity.Destination{}, err
		}
		return l.Destination(), nil
	}

	if req.Latitude == nil || req.Longitude == nil {
		return proximity.Destination{}, location.ErrInvalidPosition
	}
	p := types.Point{Lat: *req.Latitude, Lng: *req.Longitude}
	if !location.ValidPoint(p) {
		return proximity.Destination{}, location.ErrInvalidPosition
	}

	dest := proximity.Destination{Name: req.Name, Address: req.Address, Coordinate: p}
	if dest.Name == "" {
		dest.Name = selectedLocationName
		if dest.Address == "" && h.geocoder != nil {
			addr, err := h.geocoder.ReverseGeocode(ctx, p)
			if err != nil {
				return proximity.Destination{}, err
			}
			dest.Address = addr
		}
	}
	return dest, nil
}
