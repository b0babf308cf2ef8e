package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/notebridge/backend/internal/bridge"
	"github.com/notebridge/backend/internal/infrastructure/config"
	"github.com/notebridge/backend/internal/infrastructure/monitoring"
	"github.com/notebridge/backend/internal/logging"
	"github.com/notebridge/backend/internal/notebook"
	"github.com/notebridge/backend/internal/protocol"
	"github.com/notebridge/backend/internal/runtime"
	"github.com/notebridge/backend/internal/shared/id"
	"github.com/notebridge/backend/internal/utils"
)

// Handler upgrades host connections and runs one bridge per connection.
type Handler struct {
	cfg      config.Config
	runtime  runtime.Client
	metrics  *monitoring.Metrics
	log      *logging.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	bridges map[id.ConnID]*bridge.Bridge
}

// NewHandler creates the bridge socket handler.
func NewHandler(cfg config.Config, rt runtime.Client, metrics *monitoring.Metrics, log *logging.Logger) *Handler {
	h := &Handler{
		cfg:     cfg,
		runtime: rt,
		metrics: metrics,
		log:     log,
		bridges: make(map[id.ConnID]*bridge.Bridge),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: h.checkOrigin,
	}
	return h
}

// checkOrigin enforces the configured allowed origin. Empty config means any
// origin, matching local development.
func (h *Handler) checkOrigin(r *http.Request) bool {
	allowed := h.cfg.Server.AllowedOrigin
	if allowed == "" || allowed == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients do not send Origin.
		return true
	}
	return origin == allowed
}

// HandleConnection handles WebSocket upgrade and the command read loop.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := id.NewConnID()
	log := h.log.With(zap.String("conn_id", string(connID)))
	log.Info("host connected", zap.String("origin", c.GetHeader("Origin")))

	if h.metrics != nil {
		h.metrics.Connections.Inc()
		defer h.metrics.Connections.Dec()
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	transport := newConnTransport(conn)
	br := bridge.New(h.cfg.Bridge, h.runtime, h.metrics, transport, log.Named("bridge"))

	h.mu.Lock()
	h.bridges[connID] = br
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.bridges, connID)
		h.mu.Unlock()
	}()

	dispatcher := protocol.NewDispatcher(log.Named("dispatch"))
	if h.metrics != nil {
		dispatcher.SetObserver(h.metrics.ObserveCommand)
	}
	br.Register(dispatcher)

	done := make(chan struct{})
	go func() {
		defer close(done)
		br.Run(ctx)
	}()
	br.Announce(ctx)

	validator := utils.DefaultFrameValidator()
	var limiter *rate.Limiter
	if h.cfg.RateLimit.Enabled {
		limiter = rate.NewLimiter(rate.Limit(h.cfg.RateLimit.MessagesPerSecond), h.cfg.RateLimit.Burst)
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read error", zap.Error(err))
			}
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}
		if err := validator.ValidateFrame(data); err != nil {
			log.Warn("rejecting frame", zap.Error(err))
			continue
		}
		dispatcher.Dispatch(ctx, data, transport)
	}

	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), h.cfg.Bridge.SaveTimeout)
	defer shutdownCancel()
	br.Shutdown(shutdownCtx)
	log.Info("host disconnected")
}

// BumpAndResync advances the sync token on every live bridge with a fresh
// shared file set, then re-runs kernel synchronization. The shared file
// watcher drives this.
func (h *Handler) BumpAndResync(ctx context.Context, files []notebook.WorkspaceFile) {
	h.mu.Lock()
	bridges := make([]*bridge.Bridge, 0, len(h.bridges))
	for _, b := range h.bridges {
		bridges = append(bridges, b)
	}
	h.mu.Unlock()
	for _, b := range bridges {
		b.BumpSyncToken(files)
		b.ResyncActive(ctx)
	}
}
