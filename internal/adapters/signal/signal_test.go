package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type stubClient struct {
	ch chan domain.ConnectionStatus
}

func (c *stubClient) Load(context.Context) error { return nil }

func (c *stubClient) Subscribe() (<-chan domain.ConnectionStatus, func()) {
	return c.ch, func() {}
}

func (c *stubClient) SetSessionParameters(context.Context, domain.SessionParams) error { return nil }

func (c *stubClient) Close() error { return nil }

func dialStatus(t *testing.T) (*websocket.Conn, *stubClient) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client := &stubClient{ch: make(chan domain.ConnectionStatus, 4)}
	reg := app.NewRegistry(context.Background(), app.RegistryConfig{
		NewClient: func(domain.ClientID) app.Client { return client },
	})
	t.Cleanup(reg.CloseAll)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ctl := NewStatusWSController(reg, 0, 0)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("client_token", "c1")
		ctl.HandleStatus(ctx, c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws, client
}

// readUntil returns the first message match accepts, skipping the rest.
func readUntil(t *testing.T, ws *websocket.Conn, match func(map[string]any) bool) map[string]any {
	t.Helper()
	if err := ws.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	for {
		var m map[string]any
		if err := ws.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(m) {
			return m
		}
	}
}

func joinEnabled(m map[string]any) (bool, bool) {
	if m["type"] != app.MessageStatus {
		return false, false
	}
	view, ok := m["view"].(map[string]any)
	if !ok {
		return false, false
	}
	enabled, ok := view["joinEnabled"].(bool)
	return enabled, ok
}

func TestHandleStatus_PingPong(t *testing.T) {
	ws, _ := dialStatus(t)
	if err := ws.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, ws, func(m map[string]any) bool { return m["type"] == "pong" })
}

func TestHandleStatus_StatusRequest(t *testing.T) {
	ws, _ := dialStatus(t)
	if err := ws.WriteJSON(map[string]string{"type": "status"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := readUntil(t, ws, func(m map[string]any) bool { return m["type"] == app.MessageStatus })
	if enabled, ok := joinEnabled(m); !ok || enabled {
		t.Fatalf("initial view: got %v", m)
	}
}

func TestHandleStatus_StreamsUpdates(t *testing.T) {
	ws, client := dialStatus(t)
	client.ch <- domain.Ready()
	readUntil(t, ws, func(m map[string]any) bool {
		enabled, ok := joinEnabled(m)
		return ok && enabled
	})
}
