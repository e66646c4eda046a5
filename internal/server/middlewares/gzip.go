package middlewares

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

var excludedPaths = []string{
	"/healthz",
	"/api/v1/events",
}

func GZIP() gin.HandlerFunc {
	return gzip.Gzip(
		gzip.BestSpeed,
		gzip.WithExcludedPaths(excludedPaths),
	)
}
