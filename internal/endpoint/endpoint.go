package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const wsReadLimitBytes int64 = 32 << 20 // screenshots arrive base64-encoded

// Endpoint accepts WebSocket connections and runs one receive loop per
// connection. Messages on a connection are handled in receipt order; a slow
// AI call stalls only its own connection.
type Endpoint struct {
	router       *Router
	registry     *registry
	logger       *slog.Logger
	pingInterval time.Duration
	pingTimeout  time.Duration
}

type Options struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
	Logger       *slog.Logger
}

func New(router *Router, opts Options) *Endpoint {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pingInterval := opts.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 30 * time.Second
	}
	return &Endpoint{
		router:       router,
		registry:     newRegistry(),
		logger:       logger,
		pingInterval: pingInterval,
		pingTimeout:  pingTimeout,
	}
}

func (e *Endpoint) ActiveConnections() int {
	return e.registry.len()
}

func (e *Endpoint) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(wsReadLimitBytes)

	c := &client{id: uuid.NewString(), conn: conn}
	e.registry.add(c)
	e.logger.Info("client connected", "conn_id", c.id)

	defer func() {
		e.registry.remove(c.id)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		e.logger.Info("client disconnected", "conn_id", c.id)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go e.keepalive(ctx, c, cancel)

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				e.logger.Warn("read failed", "conn_id", c.id, "err", err)
			}
			return
		}
		resp, ok := e.router.Dispatch(ctx, raw)
		if !ok {
			continue
		}
		// A write to a connection the peer already closed fails here and is
		// swallowed; the read loop observes the close and cleans up.
		if err := c.write(ctx, resp.Encode()); err != nil {
			e.logger.Debug("write after close dropped", "conn_id", c.id, "err", err)
			return
		}
	}
}

// keepalive probes the peer at the configured interval and tears the
// connection down when a pong does not arrive within the timeout.
func (e *Endpoint) keepalive(ctx context.Context, c *client, cancel context.CancelFunc) {
	ticker := time.NewTicker(e.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, e.pingTimeout)
			err := c.conn.Ping(pctx)
			pcancel()
			if err != nil {
				if ctx.Err() == nil {
					e.logger.Warn("keepalive ping failed", "conn_id", c.id, "err", err)
					cancel()
				}
				return
			}
		}
	}
}

// ServeConfig carries the two listen addresses: the WebSocket channel and
// the static GUI page with its health probe.
type ServeConfig struct {
	Host     string
	WSPort   int
	HTTPPort int
}

// Serve runs both listeners until ctx is cancelled, then shuts each down
// gracefully. A listen failure on either port stops the other.
func (e *Endpoint) Serve(ctx context.Context, cfg ServeConfig) error {
	wsSrv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.WSPort)),
		Handler: http.HandlerFunc(e.HandleWS),
	}
	httpSrv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.HTTPPort)),
		Handler: e.httpHandler(),
	}

	errCh := make(chan error, 2)
	go func() {
		e.logger.Info("websocket server listening", "addr", wsSrv.Addr)
		errCh <- wsSrv.ListenAndServe()
	}()
	go func() {
		e.logger.Info("http server listening", "addr", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(runErr, wsSrv.Shutdown(shutdownCtx), httpSrv.Shutdown(shutdownCtx))
}
