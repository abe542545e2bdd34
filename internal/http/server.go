// README: API gateway; wires module services into the gin router.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"arrivo/internal/http/handlers"
	"arrivo/internal/modules/location"
	"arrivo/internal/modules/savedlocation"
	"arrivo/internal/modules/session"
	"arrivo/internal/notify"
	"arrivo/internal/types"
)

// forgetTimeout bounds clearing the cached fix of a removed session.
const forgetTimeout = 5 * time.Second

type ServerDeps struct {
	Sessions       *session.Manager
	Positions      *location.Service
	SavedLocations *savedlocation.Service
	Geocoder       handlers.Geocoder
	Hub            *notify.Hub
	Log            *logrus.Entry
}

type Server struct {
	deps ServerDeps
}

// NewServer builds the gateway. Sessions removed by DELETE or by the idle
// reaper lose their cached fix and their stream clients.
func NewServer(deps ServerDeps) *Server {
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Sessions != nil {
		deps.Sessions.OnRemove(func(id types.ID) {
			if deps.Positions != nil {
				ctx, cancel := context.WithTimeout(context.Background(), forgetTimeout)
				deps.Positions.Forget(ctx, id)
				cancel()
			}
			if deps.Hub != nil {
				deps.Hub.Disconnect(id)
			}
		})
	}
	return &Server{deps: deps}
}

func (s *Server) Routes() http.Handler {
	return NewRouter(s.deps)
}
