package middleware

import (
	"strings"

	"licensekeeper/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const unauthorizedMessage = "Unauthorized."

// AdminAuth requires "Authorization: Bearer <token>" where token matches the
// configured bcrypt hash.
func AdminAuth(tokenHash string) gin.HandlerFunc {
	hash := []byte(tokenHash)

	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			_ = c.Error(errutil.Unauthorized(unauthorizedMessage, nil))
			c.Abort()
			return
		}

		if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
			zap.L().Warn("admin token rejected",
				zap.String("path", c.FullPath()),
				zap.String("client_ip", c.ClientIP()),
			)
			_ = c.Error(errutil.Unauthorized(unauthorizedMessage, err))
			c.Abort()
			return
		}

		c.Next()
	}
}

// HashToken produces the value expected in ADMIN.TOKEN_HASH.
func HashToken(token string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
