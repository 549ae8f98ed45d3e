package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	SendBuffer   int
	AuthDeadline time.Duration
	RateLimit    int
	RateInterval time.Duration
}

func (o *Options) withDefaults() {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.AuthDeadline <= 0 {
		o.AuthDeadline = 10 * time.Second
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 20
	}
	if o.RateInterval <= 0 {
		o.RateInterval = time.Second
	}
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	opts    Options
	limiter *RateLimiter
	pumps   conc.WaitGroup
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	opts.withDefaults()
	return &SignalWSController{
		Orch:    o,
		opts:    opts,
		limiter: NewRateLimiter(opts.RateLimit, opts.RateInterval),
	}
}

// Wait blocks until every connection pump has exited.
func (ctl *SignalWSController) Wait() {
	ctl.pumps.Wait()
}

// WsSignalConn implements core.Connection over a websocket.
type WsSignalConn struct {
	id   core.ConnID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
	user   domain.UserID
	authAt time.Time
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		id:   core.NewConnID(),
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) ID() core.ConnID { return c.id }

func (c *WsSignalConn) UserID() domain.UserID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *WsSignalConn) AuthenticatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authAt
}

func (c *WsSignalConn) Bind(user domain.UserID, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user != 0 || c.closed {
		return false
	}
	c.user = user
	c.authAt = at
	return true
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and starts the connection pumps. The
// connection must send an auth frame before AuthDeadline passes.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Str("remote", c.ClientIP()).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	deadline := time.AfterFunc(ctl.opts.AuthDeadline, func() {
		if conn.UserID() == 0 {
			log.Warn().Str("module", "signal").Str("conn", string(conn.id)).Msg("authentication deadline passed")
			conn.Close()
		}
	})

	ctl.pumps.Go(func() { ctl.writePump(ctx, conn) })
	ctl.pumps.Go(func() {
		defer cancel()
		defer deadline.Stop()
		ctl.readPump(ctx, conn)
	})
}
