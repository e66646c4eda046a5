package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openmined/cloudsync/internal/server/handlers/files"
	"github.com/openmined/cloudsync/internal/server/handlers/oauth"
	"github.com/openmined/cloudsync/internal/server/handlers/ws"
	"github.com/openmined/cloudsync/internal/server/middlewares"
	"github.com/openmined/cloudsync/internal/version"
)

func SetupRoutes(config *Config, svc *Services, hub *ws.WebsocketHub) (http.Handler, error) {
	r := gin.New()

	filesH := files.New(svc.Files, hub)
	oauthH := oauth.New(svc.Auth)

	r.Use(middlewares.Logger())
	r.Use(gin.Recovery())
	r.Use(middlewares.GZIP())
	r.Use(middlewares.CORS())
	if config.HTTP.TLSEnabled() {
		r.Use(middlewares.HSTS())
	}
	if config.HTTP.RateLimit != "" {
		limit, err := middlewares.RateLimiter(config.HTTP.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		r.Use(limit)
	}

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)
	r.GET("/oauth/authorize", oauthH.Authorize)

	v1 := r.Group("/api/v1")
	v1.Use(middlewares.JWTAuth(svc.Auth))
	{
		v1.GET("/files", filesH.List)
		v1.POST("/files", filesH.Create)
		v1.GET("/files/:id", filesH.Get)
		v1.PUT("/files/:id", filesH.Update)
		v1.DELETE("/files/:id", filesH.Delete)

		// websocket events
		v1.GET("/events", hub.WebsocketHandler)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler(), nil
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
