package utils

import "github.com/gin-gonic/gin"

// Client visible error messages. Nothing else about a failure is exposed.
const (
	MsgMethodNotAllowed = "Method not allowed"
	MsgFetchFailed      = "Failed to fetch media"
	MsgInternalError    = "Internal server error"
	MsgTooManyRequests  = "Too many requests"
	MsgUnauthorized     = "Unauthorized"
	MsgForbidden        = "Forbidden"
	MsgCacheUnavailable = "Cache unavailable"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// Error writes an error response with the given status code.
func Error(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, ErrorBody{Error: message})
}

// AbortWithError writes an error response and stops the handler chain.
func AbortWithError(ctx *gin.Context, status int, message string) {
	ctx.AbortWithStatusJSON(status, ErrorBody{Error: message})
}

// Success returns a 200 JSON response.
func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(200, data)
}
