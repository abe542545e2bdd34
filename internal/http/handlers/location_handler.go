// README: Position push handlers for clients without MQTT.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"arrivo/internal/modules/location"
	"arrivo/internal/types"
)

type LocationHandler struct {
	location *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{location: svc}
}

type positionReq struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp int64    `json:"timestamp"` // unix millis, optional
}

type sourceErrorReq struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *LocationHandler) Update(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req positionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(c, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	u := location.Update{
		SessionID: id,
		Position:  types.Point{Lat: *req.Latitude, Lng: *req.Longitude},
	}
	if req.Timestamp > 0 {
		u.RecordedAt = time.UnixMilli(req.Timestamp)
	}
	if err := h.location.Update(c.Request.Context(), u); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (h *LocationHandler) ReportError(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req sourceErrorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "reason is required")
		return
	}
	if err := h.location.ReportError(c.Request.Context(), id, req.Reason); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
