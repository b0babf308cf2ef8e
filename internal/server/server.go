package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notebridge/backend/internal/infrastructure/config"
	"github.com/notebridge/backend/internal/infrastructure/monitoring"
	"github.com/notebridge/backend/internal/logging"
	"github.com/notebridge/backend/internal/middleware"
	"github.com/notebridge/backend/internal/runtime"
	"github.com/notebridge/backend/internal/watch"
	"github.com/notebridge/backend/internal/ws"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg     *config.Config
	log     *logging.Logger
	runtime runtime.Client
	metrics *monitoring.Metrics
	bridge  *ws.Handler
	httpSrv *http.Server

	watchCancel context.CancelFunc
}

// New assembles the server from configuration.
func New(cfg *config.Config, log *logging.Logger) (*Server, error) {
	metrics := monitoring.New()

	rt := runtime.NewREST(cfg.Runtime, log.Named("runtime"))

	bridgeHandler := ws.NewHandler(*cfg, rt, metrics, log.Named("ws"))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigin))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit.MessagesPerSecond, cfg.RateLimit.Burst))
	}

	s := &Server{
		cfg:     cfg,
		log:     log,
		runtime: rt,
		metrics: metrics,
		bridge:  bridgeHandler,
	}

	router.GET("/", s.handleRoot)
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/bridge", bridgeHandler.HandleConnection)

	s.httpSrv = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Run starts the listener and, when configured, the shared file watcher. It
// blocks until the listener stops.
func (s *Server) Run() error {
	if dir := s.cfg.Bridge.WatchDir; dir != "" {
		watcher, err := watch.New(dir, s.bridge, s.log.Named("watch"))
		if err != nil {
			s.log.Warn("shared file watch disabled", zap.String("dir", dir), zap.Error(err))
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			s.watchCancel = cancel
			go func() {
				if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
					s.log.Error("shared file watcher stopped", zap.Error(err))
				}
			}()
		}
	}

	s.log.Info("bridge listening", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener, the watcher, and the runtime client.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.watchCancel != nil {
		s.watchCancel()
	}
	err := s.httpSrv.Shutdown(ctx)
	if closer, ok := s.runtime.(interface{ Close() error }); ok {
		closer.Close()
	}
	return err
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "notebook-bridge",
		"status":  "running",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	probeCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	st := s.runtime.Status(probeCtx)

	status := http.StatusOK
	if !st.Reachable {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":            statusWord(st.Reachable),
		"runtime_reachable": st.Reachable,
		"runtime_starting":  st.Starting,
		"runtime_version":   st.Version,
		"uptime_seconds":    int(s.metrics.Uptime().Seconds()),
	})
}

func statusWord(ok bool) string {
	if ok {
		return "healthy"
	}
	return "degraded"
}

