package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"contract-backend/internal/shared/config"
	"contract-backend/internal/shared/metrics"
	"contract-backend/internal/shared/server/middleware"
)

// RouteRegistrar mounts handler routes on the engine.
type RouteRegistrar interface {
	Register(r gin.IRouter)
}

// RouterDeps carries everything NewRouter needs.
type RouterDeps struct {
	Config   config.Config
	Handlers []RouteRegistrar
}

// NewRouter builds the gin engine with the standard middleware chain and
// operational endpoints.
func NewRouter(deps RouterDeps) *gin.Engine {
	// config.Load canonicalizes ENV=prod to "production".
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(deps.Config.CORSAllowOrigin))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	for _, h := range deps.Handlers {
		if h != nil {
			h.Register(r)
		}
	}
	return r
}

// Addr normalizes a port value into a listen address.
func Addr(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}
