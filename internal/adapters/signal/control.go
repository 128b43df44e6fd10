package signal

import "github.com/dkeye/Lobby/internal/app"

func (ctl *StatusWSController) handlePing(conn *WsStatusConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	sendJSON(conn, resp)
}

// handleStatus answers with the current view, outside the feed's ordering.
func (ctl *StatusWSController) handleStatus(conn *WsStatusConn, sess *app.Session) {
	v := sess.Controller.View()
	sendJSON(conn, app.Message{Type: app.MessageStatus, View: &v})
}
