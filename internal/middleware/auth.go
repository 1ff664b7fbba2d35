package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"friendfinder-backend/pkg/jwt"
)

// AuthMiddleware validates the Bearer token and sets user_id, user_name
// and user_type in the Gin context. Identity is issued by the external
// auth provider; this service only verifies it.
func AuthMiddleware(jwtManager *jwt.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_name", claims.Name)
		c.Set("user_type", claims.UserType)
		c.Next()
	}
}

// bearerToken extracts the token from the Authorization header, falling
// back to the access_token query parameter for WebSocket upgrades, where
// browsers cannot set headers.
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	return c.Query("access_token")
}
