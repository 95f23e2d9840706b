// Package server wires HTTP handlers into a gin engine for the roomchat
// application via routing helpers.
package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Routes builds the gin engine serving health, WebSocket, room inspection,
// metrics and the test page.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(s.loggingMiddleware())

	r.GET("/", s.HealthHandler)
	r.GET("/health", s.HealthHandler)
	r.GET("/ws", s.WebSocketHandler)
	r.GET("/test", TestPageHandler)

	api := r.Group("/api")
	{
		rooms := api.Group("/rooms")
		{
			rooms.GET("", s.ListRoomsHandler)
			rooms.GET("/:id", s.GetRoomHandler)
		}
	}

	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	return r
}

// loggingMiddleware logs every HTTP request at debug level.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	logger := s.logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Debug("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
