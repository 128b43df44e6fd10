// Package signal streams a client's login view to the browser over a
// websocket: status updates, navigation requests and ping/pong.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const (
	defaultReadLimit  = 4096
	defaultPingPeriod = 54 * time.Second
	writeWait         = 5 * time.Second
	sendBuffer        = 32
)

type StatusWSController struct {
	Registry   *app.Registry
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewStatusWSController(reg *app.Registry, readLimit int64, pingPeriod time.Duration) *StatusWSController {
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	if pingPeriod <= 0 {
		pingPeriod = defaultPingPeriod
	}
	return &StatusWSController{
		Registry:   reg,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
	}
}

// WsStatusConn owns the websocket. Only the write pump writes to conn.
type WsStatusConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *WsStatusConn) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsStatusConn) Close() {
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

func (ctl *StatusWSController) HandleStatus(ctx context.Context, c *gin.Context) {
	sid := domain.ClientID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	sess, err := ctl.Registry.GetOrCreate(sid)
	if err != nil {
		// the controller's view already carries the failure
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("session start")
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsStatusConn{
		conn: ws,
		send: make(chan []byte, sendBuffer),
	}
	msgs, unsub := sess.Feed.Subscribe()

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, cancel, conn, msgs, unsub)
	go ctl.readPump(ctx, cancel, sid, conn, sess)
}
