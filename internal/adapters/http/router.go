package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/dkeye/Parley/internal/adapters/signal"
	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/auth"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	sessionName  = "ParleySession"
	sessionToken = "token"
	ctxUserID    = "user_id"
)

// Deps groups what the HTTP surface needs besides the orchestrator.
type Deps struct {
	Orch     *orch.Orchestrator
	Accounts *auth.Service
	Verifier core.TokenVerifier
	Groups   GroupDirectory
	Signal   *signal.SignalWSController
}

// bearerToken returns the token from the Authorization header or, for
// browser pages, from the cookie session.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if tok, ok := sessions.Default(c).Get(sessionToken).(string); ok {
		return tok
	}
	return ""
}

// AuthMiddleware rejects requests without a valid bearer token and stores
// the user id under "user_id".
func AuthMiddleware(v core.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c)
		if tok == "" {
			abortWithError(c, domain.ErrAuthentication)
			return
		}
		uid, err := v.Verify(tok)
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("token rejected")
			abortWithError(c, domain.ErrAuthentication)
			return
		}
		c.Set(ctxUserID, uid)
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.UserID {
	uid, _ := c.Get(ctxUserID)
	id, _ := uid.(domain.UserID)
	return id
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: int(cfg.Auth.TokenTTL.Seconds()), HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		if bearerToken(c) == "" {
			c.Redirect(http.StatusFound, "/static/signin.html")
			return
		}
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{Deps: d}
	api := r.Group("/api")
	api.GET("/health", h.health)

	authAPI := api.Group("/auth")
	authAPI.POST("/signup", h.signup)
	authAPI.POST("/signin", h.signin)
	authAPI.POST("/signout", h.signout)

	api.GET("/ws", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws endpoint hit")
		d.Signal.HandleSignal(ctx, c)
	})

	private := api.Group("", AuthMiddleware(d.Verifier))
	private.GET("/user", h.me)
	private.GET("/token", h.token)
	private.GET("/online", h.online)
	private.GET("/groups", h.listGroups)
	private.POST("/groups", h.createGroup)
	private.GET("/groups/:id/messages", h.groupHistory)
	private.GET("/messages/:peer", h.directHistory)

	return r
}
