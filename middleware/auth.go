package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AndrewCorlett/errolian-club-sub000/utils"
)

// AuthRequired rejects requests without a valid bearer token and stores the
// caller's id and role on the context.
func AuthRequired(tokens *utils.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			utils.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			utils.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := tokens.ParseToken(tokenString)
		if err != nil {
			utils.Unauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(utils.ContextUserID, claims.UserID)
		c.Set(utils.ContextRole, claims.Role)
		c.Next()
	}
}
