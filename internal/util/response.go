package util

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Response struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

func Success(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Data:    data,
		Message: message,
	})
}

// Error answers with the failure envelope and logs the route it happened on.
// Client errors are logged at warn level, server errors at error level.
func Error(c *gin.Context, code int, err interface{}) {
	msg := ""
	switch e := err.(type) {
	case string:
		msg = e
	case error:
		msg = e.Error()
	default:
		msg = "Internal Server Error"
	}

	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	fields := []zap.Field{
		zap.String("route", route),
		zap.String("method", c.Request.Method),
		zap.Int("status", code),
		zap.String("error", msg),
	}
	if code >= http.StatusInternalServerError {
		zap.L().Error("API error", fields...)
	} else {
		zap.L().Warn("API error", fields...)
	}

	c.JSON(code, Response{
		Code:    -1,
		Data:    nil,
		Message: msg,
	})
}
