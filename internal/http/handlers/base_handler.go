// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"arrivo/internal/maps"
	"arrivo/internal/modules/location"
	"arrivo/internal/modules/savedlocation"
	"arrivo/internal/modules/session"
	"arrivo/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID ensures session IDs are UUIDs (matches the manager's generator).
func isValidID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, savedlocation.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrNoDestination), errors.Is(err, session.ErrSessionClosed):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, location.ErrInvalidPosition), errors.Is(err, savedlocation.ErrInvalidLocation):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, maps.ErrGeocodeFailed):
		writeError(c, http.StatusBadGateway, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// sessionID reads and validates the :id path parameter, writing a 400 when
// it is malformed.
func sessionID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid session id")
		return "", false
	}
	return types.ID(id), true
}
