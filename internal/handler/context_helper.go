package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/edupanel/student-records-api/internal/middleware"
	"github.com/edupanel/student-records-api/internal/models"
	"github.com/edupanel/student-records-api/internal/service"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext builds the activity-trail actor for the current request.
// Anonymous requests yield a zero actor.
func actorFromContext(c *gin.Context) service.Actor {
	actor := service.Actor{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if claims := claimsFromContext(c); claims != nil {
		actor.UserID = claims.UserID
		actor.Username = claims.Username
		actor.Email = claims.Email
	}
	return actor
}
