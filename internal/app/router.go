package app

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kalium.io/kalium/internal/api/handlers"
	"kalium.io/kalium/internal/api/middleware"
	"kalium.io/kalium/internal/app/modules"
	"kalium.io/kalium/internal/config"
)

func newRouter(cfg *config.Config, server *handlers.Server, infra *modules.Infrastructure) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), cors.New(buildCORSConfig(cfg)))
	if infra.Metrics != nil {
		router.Use(middleware.Metrics(infra.Metrics))
	}
	if infra.Tracing != nil {
		router.Use(middleware.Tracing(infra.Tracing.Tracer()))
	}
	router.Use(middleware.ErrorHandler())

	if infra.Metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(infra.Metrics.Registry, promhttp.HandlerOpts{})))
	}
	router.GET("/health", server.GetHealth)
	server.RegisterRoutes(router.Group("/api/v1"))
	return router
}

// buildCORSConfig allows the configured origins. A "*" entry allows every
// origin, which browsers only accept without credentials.
func buildCORSConfig(cfg *config.Config) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	c.AllowHeaders = append(c.AllowHeaders, middleware.RequestIDHeader, handlers.UserIDHeader)
	c.ExposeHeaders = []string{middleware.RequestIDHeader}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			c.AllowAllOrigins = true
			c.AllowCredentials = false
			return c
		}
		if o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	c.AllowOrigins = origins
	c.AllowCredentials = cfg.Server.AllowCredentials
	return c
}
