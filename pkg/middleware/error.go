package middleware

import (
	"errors"
	"net/http"

	"licensekeeper/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached with c.Error once the handler chain
// returns. BaseErrors keep their status and public message; anything else is a
// generic 500.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			code := be.Code.HTTPStatus()
			if code >= http.StatusInternalServerError {
				zap.L().Error("request failed",
					zap.String("method", c.Request.Method),
					zap.String("path", c.FullPath()),
					zap.Error(be),
				)
			}
			c.JSON(code, be.JSON())
			return
		}

		zap.L().Error("unhandled request error",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(last.Err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errutil.InternalMessage})
	}
}
