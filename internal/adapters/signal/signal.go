package signal

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/relay/internal/adapters/auth"
	"github.com/dkeye/relay/internal/adapters/rtc"
	"github.com/dkeye/relay/internal/app/orch"
	"github.com/dkeye/relay/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	JoinLimit      int
	JoinInterval   time.Duration
	AllowedOrigins []string
	ValidateSDP    bool
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:    65536,
		PingPeriod:   54 * time.Second,
		PongWait:     60 * time.Second,
		WriteWait:    10 * time.Second,
		SendBuffer:   256,
		JoinLimit:    10,
		JoinInterval: 10 * time.Second,
		ValidateSDP:  true,
	}
}

type SignalWSController struct {
	Orch      *orch.Orchestrator
	Verifier  *auth.Verifier
	Validator rtc.Validator
	Joins     *RoomRateLimiter

	opts     Options
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, v *auth.Verifier, opts Options) *SignalWSController {
	ctl := &SignalWSController{
		Orch:      o,
		Verifier:  v,
		Validator: rtc.Validator{ParseSDP: opts.ValidateSDP},
		Joins:     NewRoomRateLimiter(opts.JoinLimit, opts.JoinInterval),
		opts:      opts,
	}
	ctl.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     ctl.checkOrigin,
	}
	return ctl
}

// checkOrigin allows everything when no origins are configured.
func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	if len(ctl.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(ctl.opts.AllowedOrigins, origin)
}

// WsSignalConn implements core.SignalConnection over a websocket.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
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

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	device := c.GetString(DeviceKey)
	identity, identified := auth.IdentityFrom(c)

	var hdr http.Header
	if cookies := c.Writer.Header().Values("Set-Cookie"); len(cookies) > 0 {
		hdr = http.Header{"Set-Cookie": cookies}
	}
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, hdr)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	id, err := ctl.Orch.Connect(ctx, conn, device)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("register connection")
		conn.Close()
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("device", device).Bool("identified", identified).Msg("new WS connection")

	if identified {
		if err := ctl.Orch.Identify(ctx, id, identity); err != nil {
			log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("identify on handshake")
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, id, conn)
}
