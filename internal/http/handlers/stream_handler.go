// README: WebSocket stream of alarm events for one session.
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"arrivo/internal/modules/session"
	"arrivo/internal/notify"
)

type StreamHandler struct {
	sessions *session.Manager
	hub      *notify.Hub
	upgrader websocket.Upgrader
}

func NewStreamHandler(sessions *session.Manager, hub *notify.Hub) *StreamHandler {
	return &StreamHandler{
		sessions: sessions,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Stream upgrades the request and blocks until the client or the hub goes away.
func (h *StreamHandler) Stream(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	s, err := h.sessions.Get(id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	s.Touch()
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return
	}
	h.hub.Serve(id, conn)
}
