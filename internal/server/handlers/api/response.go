package api

import "github.com/gin-gonic/gin"

func AbortWithError(ctx *gin.Context, status int, code string, err error) {
	ctx.Abort()
	ctx.Error(err)
	ctx.PureJSON(status, APIError{
		Code:    code,
		Message: err.Error(),
	})
}

// UserKey is the gin context key holding the authenticated user.
const UserKey = "user"

// User returns the authenticated user set by the auth middleware.
func User(ctx *gin.Context) string {
	return ctx.GetString(UserKey)
}
