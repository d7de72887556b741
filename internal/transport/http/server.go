package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-irc/internal/config"
)

// NewServer builds the read-only status server over source.
func NewServer(source StatusSource, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.StatusAddr,
		Handler:           NewRouter(source, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter registers the status routes.
func NewRouter(source StatusSource, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	h := NewRoomHandlers(source, logger)
	router.GET("/health", h.Health)

	api := router.Group("/api")
	api.GET("/status", h.Status)
	api.GET("/rooms/:room/messages", h.ListMessages)

	return router
}
