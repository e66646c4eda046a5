package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/cloudsync/internal/server/handlers/api"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
)

// RateLimiter limits requests per client ip. formattedRate uses the limiter
// notation, e.g. "100-M" for 100 requests per minute.
func RateLimiter(formattedRate string) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", formattedRate, err)
	}
	instance := limiter.New(memory.NewStore(), rate)
	return mgin.NewMiddleware(
		instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.PureJSON(http.StatusTooManyRequests, api.APIError{
				Code:    api.CodeRateLimited,
				Message: "rate limit exceeded",
			})
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			c.PureJSON(http.StatusInternalServerError, api.APIError{
				Code:    api.CodeInternalError,
				Message: err.Error(),
			})
		}),
	), nil
}
