package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/Lobby/internal/adapters/signal"
	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/app/admission"
	"github.com/dkeye/Lobby/internal/app/handoff"
	"github.com/dkeye/Lobby/internal/config"
	"github.com/dkeye/Lobby/internal/domain"
	"github.com/dkeye/Lobby/internal/token"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const userNameKey = "user_name"

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ct, _ := c.Cookie("ct")
		if ct == "" {
			ct = genClientToken()
			c.SetCookie("ct", ct, 3600*24*7, "/", "", false, true)
			c.Set("client_token_new", true)
		}
		c.Set("client_token", ct)
		c.Next()
	}
}

func clientID(c *gin.Context) domain.ClientID {
	return domain.ClientID(c.GetString("client_token"))
}

type api struct {
	cfg     *config.Config
	reg     *app.Registry
	limiter *JoinRateLimiter
}

func SetupRouter(ctx context.Context, cfg *config.Config, reg *app.Registry) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	secret := cfg.Secret
	if secret == "" {
		log.Warn().Str("module", "adapters.http").Msg("no cookie secret configured, sessions will not survive a restart")
		secret = uuid.NewString()
	}
	store := cookie.NewStore([]byte(secret))
	r.Use(sessions.Sessions("LobbySessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET(admission.RouteSession, func(c *gin.Context) {
		c.File(cfg.StaticPath + "/session.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	a := &api{
		cfg:     cfg,
		reg:     reg,
		limiter: NewJoinRateLimiter(cfg.Login.JoinLimit, cfg.Login.JoinInterval),
	}
	status := signal.NewStatusWSController(reg, cfg.Signal.ReadLimit, cfg.Signal.PingPeriod)

	g := r.Group("/api")
	g.GET("/login", a.login)
	g.POST("/join", a.join)
	g.GET("/status", a.status)
	g.GET("/session", a.session)
	g.DELETE("/session", a.leave)
	g.GET("/ws/status", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws status endpoint hit")
		status.HandleStatus(ctx, c)
	})

	return r
}

// newClient reports whether the token was minted by this request, that is the
// browser has not loaded the page yet.
func newClient(c *gin.Context) bool {
	return c.GetBool("client_token_new")
}

// currentView is the client's view without starting a session for a client
// that has not loaded the page.
func (a *api) currentView(c *gin.Context) admission.ViewModel {
	if newClient(c) {
		return admission.InitialState().View()
	}
	return a.ensureSession(c).Controller.View()
}

// ensureSession returns the client's admission session, starting one if needed.
func (a *api) ensureSession(c *gin.Context) *app.Session {
	s, err := a.reg.GetOrCreate(clientID(c))
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("sid", string(clientID(c))).Msg("session start")
	}
	return s
}

// GET /api/login: form defaults and the current view
func (a *api) login(c *gin.Context) {
	in := domain.NewLoginInput(a.cfg.Login.DefaultRoom, a.cfg.Login.DefaultHost)
	if name, ok := sessions.Default(c).Get(userNameKey).(string); ok {
		in.UserName = name
	}
	c.JSON(http.StatusOK, gin.H{
		"login": in,
		"view":  a.currentView(c),
	})
}

// POST /api/join: validate, sign, hand off
func (a *api) join(c *gin.Context) {
	var in domain.LoginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid login payload"})
		return
	}
	sid := clientID(c)
	if !a.limiter.Allow(sid) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many join attempts"})
		return
	}

	if v := a.currentView(c); !v.JoinEnabled {
		c.JSON(http.StatusConflict, gin.H{"error": "communication client not ready", "view": v})
		return
	}
	s := a.ensureSession(c)

	res, err := s.Controller.JoinMeeting(c.Request.Context(), in)
	if err != nil {
		var fe *domain.FieldError
		if errors.As(err, &fe) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": fe.Message,
				"field": fe.Field,
				"view":  s.Controller.View(),
			})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Str("sid", string(sid)).Msg("join meeting")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "unable to join meeting",
			"view":  s.Controller.View(),
		})
		return
	}

	sess := sessions.Default(c)
	sess.Set(userNameKey, res.Params.UserName)
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("save cookie session")
	}

	c.JSON(http.StatusOK, gin.H{
		"route": res.Route,
		"token": res.Params.Token,
		"view":  s.Controller.View(),
	})
}

// GET /api/status: current view
func (a *api) status(c *gin.Context) {
	c.JSON(http.StatusOK, a.currentView(c))
}

// GET /api/session: parameters handed to the session view
func (a *api) session(c *gin.Context) {
	p, err := a.reg.Handoff().Load(c.Request.Context(), clientID(c))
	if errors.Is(err, handoff.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("load handoff")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to load session"})
		return
	}

	resp := gin.H{"session": p}
	if prov, err := token.Parse(p.Token); err == nil {
		resp["expiresAt"] = prov.ExpiresAt().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// DELETE /api/session: tear down; the next request starts fresh
func (a *api) leave(c *gin.Context) {
	sid := clientID(c)
	if err := a.reg.Remove(c.Request.Context(), sid); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("sid", string(sid)).Msg("remove session")
	}
	a.limiter.Forget(sid)
	c.Status(http.StatusNoContent)
}
