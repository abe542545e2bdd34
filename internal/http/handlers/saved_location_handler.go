// README: Saved location CRUD handlers. Every request acts as the default user.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"arrivo/internal/modules/savedlocation"
)

type SavedLocationHandler struct {
	saved *savedlocation.Service
}

func NewSavedLocationHandler(svc *savedlocation.Service) *SavedLocationHandler {
	return &SavedLocationHandler{saved: svc}
}

func (h *SavedLocationHandler) List(c *gin.Context) {
	locations, err := h.saved.List(c.Request.Context(), savedlocation.DefaultUserID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"locations": locations})
}

func (h *SavedLocationHandler) Get(c *gin.Context) {
	id, ok := locationID(c)
	if !ok {
		return
	}
	l, err := h.saved.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"location": l})
}

func (h *SavedLocationHandler) Create(c *gin.Context) {
	var in savedlocation.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	l, err := h.saved.Create(c.Request.Context(), savedlocation.DefaultUserID, in)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"location": l})
}

func (h *SavedLocationHandler) Update(c *gin.Context) {
	id, ok := locationID(c)
	if !ok {
		return
	}
	var in savedlocation.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	l, err := h.saved.Update(c.Request.Context(), id, in)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"location": l})
}

func (h *SavedLocationHandler) Delete(c *gin.Context) {
	id, ok := locationID(c)
	if !ok {
		return
	}
	if err := h.saved.Delete(c.Request.Context(), id); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true})
}

func locationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid location id")
		return 0, false
	}
	return id, true
}
