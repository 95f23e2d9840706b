package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tyrowin/roomchat/internal/logging"
	"github.com/Tyrowin/roomchat/internal/room"
)

// Server owns the hub, the room coordinator and the HTTP surface in front
// of them.
type Server struct {
	cfg         Config
	hub         *Hub
	coordinator *room.Coordinator
	router      *Router
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	metrics     http.Handler
	engine      *gin.Engine
	httpServer  *http.Server
	hubOnce     sync.Once
}

type options struct {
	logger   *zap.Logger
	notifier room.Notifier
	observer ConnectionObserver
	metrics  http.Handler
}

// Option configures a Server.
type Option func(*options)

// WithLogger sets the root logger. Components log through named children.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNotifier routes room lifecycle transitions to n.
func WithNotifier(n room.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithObserver reports WebSocket opens and closes to obs.
func WithObserver(obs ConnectionObserver) Option {
	return func(o *options) { o.observer = obs }
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *options) { o.metrics = h }
}

// New assembles a Server from cfg. A nil cfg means defaults.
func New(cfg *Config, opts ...Option) *Server {
	base := defaultConfig()
	if cfg != nil {
		base = *cfg
	}
	base = sanitizeConfig(base)

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrNop(o.logger)

	hubOpts := []HubOption{WithHubLogger(logger.Named("hub"))}
	if o.observer != nil {
		hubOpts = append(hubOpts, WithConnectionObserver(o.observer))
	}
	hub := NewHub(&base, hubOpts...)

	roomOpts := []room.Option{room.WithLogger(logger.Named("room"))}
	if o.notifier != nil {
		roomOpts = append(roomOpts, room.WithNotifier(o.notifier))
	}
	coordinator := room.NewCoordinator(hub, roomOpts...)

	router := NewRouter(coordinator, hub, logger)
	hub.SetFrameHandler(router)
	hub.SetDisconnectHandler(coordinator.Disconnect)

	policy := newOriginPolicy(base.AllowedOrigins, logger.Named("origin"))

	s := &Server{
		cfg:         base,
		hub:         hub,
		coordinator: coordinator,
		router:      router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
		logger:  logger,
		metrics: o.metrics,
	}
	s.engine = s.Routes()
	s.httpServer = CreateServer(base.Port, s.engine)
	return s
}

// Hub returns the connection hub.
func (s *Server) Hub() *Hub { return s.hub }

// Coordinator returns the room registry.
func (s *Server) Coordinator() *room.Coordinator { return s.coordinator }

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.engine }

// StartHub launches the hub's run loop once.
func (s *Server) StartHub() {
	s.hubOnce.Do(func() {
		go s.hub.Run()
		s.logger.Info("hub started and ready to manage WebSocket connections")
	})
}

// Start runs the hub and serves HTTP until Shutdown. It returns nil after
// a clean shutdown.
func (s *Server) Start() error {
	s.StartHub()
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := StartServer(s.httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "listen")
	}
	return nil
}

// Shutdown stops accepting HTTP requests, then closes every WebSocket and
// waits for the pumps to exit. The budget comes from ctx's deadline or the
// configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	httpErr := ShutdownServer(s.httpServer, timeout, s.logger)

	// Hub.Shutdown waits on the run loop, so make sure it exists.
	s.StartHub()
	hubErr := s.hub.Shutdown(timeout)

	if httpErr != nil {
		return errors.Wrap(httpErr, "http shutdown")
	}
	if hubErr != nil {
		return errors.Wrap(hubErr, "hub shutdown")
	}
	return nil
}
