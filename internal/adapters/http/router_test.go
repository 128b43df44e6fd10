package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/app/admission"
	"github.com/dkeye/Lobby/internal/app/handoff"
	"github.com/dkeye/Lobby/internal/config"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/dkeye/Lobby/internal/token"
	"github.com/gin-gonic/gin"
)

type stubClient struct {
	id    domain.ClientID
	store handoff.Store
	ch    chan domain.ConnectionStatus
}

func (c *stubClient) Load(context.Context) error { return nil }

func (c *stubClient) Subscribe() (<-chan domain.ConnectionStatus, func()) {
	return c.ch, func() {}
}

func (c *stubClient) SetSessionParameters(ctx context.Context, p domain.SessionParams) error {
	return c.store.Save(ctx, c.id, p, time.Hour)
}

func (c *stubClient) Close() error { return nil }

type harness struct {
	t       *testing.T
	router  *gin.Engine
	reg     *app.Registry
	cookies []*http.Cookie

	mu      sync.Mutex
	clients map[domain.ClientID]*stubClient
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mode:       "test",
		StaticPath: t.TempDir(),
		Secret:     "test-secret",
		Provider:   config.Provider{DeveloperKey: "dev-key", ApplicationID: "app.vidyo.io", ExpiresInSeconds: 3600},
		Login:      config.Login{DefaultRoom: "demoRoom", DefaultHost: "prod.vidyo.io", JoinLimit: 5, JoinInterval: time.Minute},
	}
	h := &harness{t: t, clients: make(map[domain.ClientID]*stubClient)}
	store := handoff.NewMemStore()
	reg := app.NewRegistry(context.Background(), app.RegistryConfig{
		Credentials: admission.Credentials{
			DeveloperKey:     cfg.Provider.DeveloperKey,
			ApplicationID:    cfg.Provider.ApplicationID,
			ExpiresInSeconds: cfg.Provider.ExpiresInSeconds,
		},
		Handoff: store,
		NewClient: func(id domain.ClientID) app.Client {
			c := &stubClient{id: id, store: store, ch: make(chan domain.ConnectionStatus, 8)}
			h.mu.Lock()
			h.clients[id] = c
			h.mu.Unlock()
			return c
		},
	})
	t.Cleanup(reg.CloseAll)
	h.reg = reg
	h.router = SetupRouter(context.Background(), cfg, reg)
	return h
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range h.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	for _, nc := range w.Result().Cookies() {
		replaced := false
		for i, c := range h.cookies {
			if c.Name == nc.Name {
				h.cookies[i] = nc
				replaced = true
			}
		}
		if !replaced {
			h.cookies = append(h.cookies, nc)
		}
	}
	return w
}

func (h *harness) only() *stubClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) != 1 {
		h.t.Fatalf("clients: got %d, want 1", len(h.clients))
	}
	for _, c := range h.clients {
		return c
	}
	return nil
}

func (h *harness) waitJoinEnabled() {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var v admission.ViewModel
		decode(h.t, h.do(http.MethodGet, "/api/status", nil), &v)
		if v.JoinEnabled {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatalf("join never became enabled")
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestLogin_Defaults(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/api/login", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var resp struct {
		Login domain.LoginInput   `json:"login"`
		View  admission.ViewModel `json:"view"`
	}
	decode(t, w, &resp)
	if resp.Login.MeetingRoom != "demoRoom" || resp.Login.HostName != "prod.vidyo.io" || resp.Login.UserName != "" {
		t.Fatalf("login: got %+v", resp.Login)
	}
	if resp.View.JoinEnabled {
		t.Fatalf("join enabled before the client is ready")
	}
	if resp.View.Focus != domain.FieldUserName {
		t.Fatalf("focus: got %q", resp.View.Focus)
	}
}

func TestJoin_Flow(t *testing.T) {
	h := newHarness(t)
	in := domain.LoginInput{UserName: "alice1", MeetingRoom: "demoRoom", HostName: "prod.example.io"}

	h.do(http.MethodGet, "/api/login", nil)
	if w := h.do(http.MethodPost, "/api/join", in); w.Code != http.StatusConflict {
		t.Fatalf("join before ready: got %d, want %d", w.Code, http.StatusConflict)
	}

	h.only().ch <- domain.Ready()
	h.waitJoinEnabled()

	w := h.do(http.MethodPost, "/api/join", domain.LoginInput{UserName: "alice 1", MeetingRoom: "demoRoom", HostName: "h"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid join: got %d", w.Code)
	}
	var bad struct {
		Error string       `json:"error"`
		Field domain.Field `json:"field"`
	}
	decode(t, w, &bad)
	if bad.Field != domain.FieldUserName || bad.Error != domain.DisplayNameErrorMsg {
		t.Fatalf("invalid join body: got %+v", bad)
	}

	w = h.do(http.MethodPost, "/api/join", in)
	if w.Code != http.StatusOK {
		t.Fatalf("join: got %d (%s)", w.Code, w.Body.String())
	}
	var ok struct {
		Route string `json:"route"`
		Token string `json:"token"`
	}
	decode(t, w, &ok)
	if ok.Route != admission.RouteSession {
		t.Fatalf("route: got %q", ok.Route)
	}
	if _, err := token.Verify("dev-key", ok.Token, time.Now()); err != nil {
		t.Fatalf("token: %v", err)
	}

	w = h.do(http.MethodGet, "/api/session", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("session: got %d", w.Code)
	}
	var sess struct {
		Session   domain.SessionParams `json:"session"`
		ExpiresAt string               `json:"expiresAt"`
	}
	decode(t, w, &sess)
	want := domain.SessionParams{UserName: "alice1", MeetingRoom: "demoRoom", HostName: "prod.example.io", Token: ok.Token}
	if sess.Session != want || sess.ExpiresAt == "" {
		t.Fatalf("session: got %+v", sess)
	}

	// the display name is remembered for the next visit
	var login struct {
		Login domain.LoginInput `json:"login"`
	}
	decode(t, h.do(http.MethodGet, "/api/login", nil), &login)
	if login.Login.UserName != "alice1" {
		t.Fatalf("remembered user: got %q", login.Login.UserName)
	}

	if w := h.do(http.MethodDelete, "/api/session", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d", w.Code)
	}
	if w := h.do(http.MethodGet, "/api/session", nil); w.Code != http.StatusNotFound {
		t.Fatalf("session after delete: got %d", w.Code)
	}
}

func TestStatus_NoSessionBeforePageLoad(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		w := httptest.NewRecorder()
		h.router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status: got %d", w.Code)
		}
	}
	h.do(http.MethodGet, "/api/login", nil)
	if n := h.reg.Len(); n != 0 {
		t.Fatalf("sessions for cookieless requests: got %d, want 0", n)
	}

	// once the cookie comes back the client gets its session
	h.do(http.MethodGet, "/api/status", nil)
	if n := h.reg.Len(); n != 1 {
		t.Fatalf("sessions: got %d, want 1", n)
	}
}

func TestJoin_BadPayload(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/join", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", w.Code)
	}
}

func TestJoin_Throttled(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.do(http.MethodPost, "/api/join", domain.LoginInput{})
	}
	if w := h.do(http.MethodPost, "/api/join", domain.LoginInput{}); w.Code != http.StatusTooManyRequests {
		t.Fatalf("status: got %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}
