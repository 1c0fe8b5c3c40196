package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ahfmawlrl/sns-solution/pkg/auth"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

const actorContextKey = "actor"

// JWTAuthMiddleware validates the bearer JWT and stores the acting user in
// the request context.
func JWTAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No authorization header"})
			c.Abort()
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			c.Abort()
			return
		}

		claims, err := auth.ValidateJWT(parts[1], secret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user id in token"})
			c.Abort()
			return
		}

		actor := models.Actor{
			UserID: userID,
			Role:   models.Role(claims.Role),
		}
		if claims.ClientID != "" {
			if clientID, err := uuid.Parse(claims.ClientID); err == nil {
				actor.ClientID = &clientID
			}
		}

		c.Set(actorContextKey, actor)
		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

// GetActor returns the authenticated actor stored by JWTAuthMiddleware.
func GetActor(c *gin.Context) (models.Actor, bool) {
	v, exists := c.Get(actorContextKey)
	if !exists {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}
