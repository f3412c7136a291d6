package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"dispatch-watch/internal/config"
	"dispatch-watch/internal/logging"
	"dispatch-watch/internal/models"
)

func NewRouter(logger *logging.Logger, cfg config.Config, h *Handler, ws gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	r.GET("/health", h.Health)

	api := r.Group(cfg.API.BasePath)
	{
		// Bulk actions
		for _, kind := range models.ActionKinds {
			api.POST("/"+string(kind), h.Action(kind))
		}
		api.POST("/refresh", h.Refresh)

		api.GET("/tasks", h.GetTasks)
		api.GET("/escalations", h.GetEscalations)
		if ws != nil {
			api.GET("/ws", ws)
		}
	}
	return r
}

// NewServer wraps the router with a permissive CORS policy for the dashboard.
func NewServer(addr string, router http.Handler) *http.Server {
	return &http.Server{
		Addr: addr,
		Handler: cors.New(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"*"},
		}).Handler(router),
	}
}
