// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"arrivo/internal/http/handlers"
	"arrivo/internal/http/middleware"
)

func NewRouter(deps ServerDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	var saved handlers.SavedLocations
	if deps.SavedLocations != nil {
		saved = deps.SavedLocations
	}
	sessionHandler := handlers.NewSessionHandler(deps.Sessions, deps.Positions, saved, deps.Geocoder)
	sessions := r.Group("/api/sessions")
	sessions.POST("", sessionHandler.Create)
	sessions.GET("/:id", sessionHandler.Get)
	sessions.DELETE("/:id", sessionHandler.Delete)
	sessions.PUT("/:id/destination", sessionHandler.SetDestination)
	sessions.DELETE("/:id/destination", sessionHandler.ClearDestination)
	sessions.POST("/:id/alarm", sessionHandler.Arm)
	sessions.DELETE("/:id/alarm", sessionHandler.Disarm)

	if deps.Positions != nil {
		locationHandler := handlers.NewLocationHandler(deps.Positions)
		sessions.PUT("/:id/position", locationHandler.Update)
		sessions.POST("/:id/position/error", locationHandler.ReportError)
		sessions.GET("/:id/history", sessionHandler.History)
	}

	if deps.Hub != nil {
		streamHandler := handlers.NewStreamHandler(deps.Sessions, deps.Hub)
		sessions.GET("/:id/stream", streamHandler.Stream)
	}

	if deps.SavedLocations != nil {
		savedHandler := handlers.NewSavedLocationHandler(deps.SavedLocations)
		locations := r.Group("/api/locations")
		locations.GET("", savedHandler.List)
		locations.POST("", savedHandler.Create)
		locations.GET("/:id", savedHandler.Get)
		locations.PATCH("/:id", savedHandler.Update)
		locations.DELETE("/:id", savedHandler.Delete)
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
