package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *StatusWSController) writePump(
	ctx context.Context,
	cancel context.CancelFunc,
	c *WsStatusConn,
	msgs <-chan app.Message,
	unsub func(),
) {
	ping := time.NewTicker(ctl.PingPeriod)
	defer func() {
		ping.Stop()
		unsub()
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case m, ok := <-msgs:
			if !ok {
				log.Info().Str("module", "signal").Msg("writePump feed closed")
				return
			}
			b, err := json.Marshal(m)
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump marshal")
				continue
			}
			if err := write(c, websocket.TextMessage, b); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := write(c, websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ping.C:
			if err := write(c, websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

func write(c *WsStatusConn, messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (ctl *StatusWSController) readPump(
	ctx context.Context,
	cancel context.CancelFunc,
	sid domain.ClientID,
	c *WsStatusConn,
	sess *app.Session,
) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
	}()

	pongWait := ctl.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump connection closed")
				} else {
					log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleMessage(sid, c, sess, data)
		}
	}
}

func (ctl *StatusWSController) handleMessage(sid domain.ClientID, c *WsStatusConn, sess *app.Session, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "ping":
		ctl.handlePing(c)
	case "status":
		ctl.handleStatus(c, sess)
	default:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", env.Type).Msg("unknown message")
	}
}

func sendJSON(c *WsStatusConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("sendJSON")
	}
}
