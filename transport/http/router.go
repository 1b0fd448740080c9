package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/service"
	"go.uber.org/zap"
)

// RouterConfig holds transport settings
type RouterConfig struct {
	DeepLinkScheme string
	RequestTimeout time.Duration
	AdminEnabled   bool
	Logger         *zap.Logger
}

// SetupRouter sets up the Gin router. Routes are served at the root and
// again under /api. realtime may be nil to disable the websocket endpoint.
func SetupRouter(authService *service.AuthService, realtime http.Handler, cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	handlers := NewAuthHandlers(authService, cfg.DeepLinkScheme, log)

	for _, prefix := range []string{"/", "/api"} {
		group := router.Group(prefix)
		if realtime != nil {
			// Long-lived, so registered ahead of the request timeout
			group.GET("/ws", gin.WrapH(realtime))
		}

		api := group.Group("")
		api.Use(RequestTimeout(cfg.RequestTimeout))
		{
			api.POST("/session/new", handlers.NewSession)
			api.GET("/session/:sessionId", handlers.GetSession)
			api.GET("/nonce", handlers.Nonce)
			api.POST("/verify", handlers.Verify)
			api.GET("/health", handlers.Health)

			if cfg.AdminEnabled {
				api.GET("/admin/sessions", handlers.AdminSessions)
			}

			api.GET("/me", AuthMiddleware(authService), handlers.Me)
		}
	}

	return router
}
