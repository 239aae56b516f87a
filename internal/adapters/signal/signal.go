package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/staffdesk/Consult/internal/app"
	"github.com/staffdesk/Consult/internal/auth"
	"github.com/staffdesk/Consult/internal/config"
	"github.com/staffdesk/Consult/internal/core"
)

// SignalWSController terminates the websocket transport and translates wire
// events into coordinator and relay calls. All state lives behind the
// coordinator; the controller itself is stateless per connection.
type SignalWSController struct {
	Coord   *app.Coordinator
	Relay   *app.SignalingRelay
	Creds   auth.CredentialStore
	Tokens  *auth.TokenManager
	Limiter *RequestRateLimiter
	Cfg     *config.Config
}

func NewSignalWSController(
	coord *app.Coordinator,
	relay *app.SignalingRelay,
	creds auth.CredentialStore,
	tokens *auth.TokenManager,
	cfg *config.Config,
) *SignalWSController {
	return &SignalWSController{
		Coord:   coord,
		Relay:   relay,
		Creds:   creds,
		Tokens:  tokens,
		Limiter: NewRequestRateLimiter(cfg.RequestLimit, cfg.RequestWindow),
		Cfg:     cfg,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
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

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.ConnID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("conn", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Coord.Registry.Bind(sid, conn, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)
}
