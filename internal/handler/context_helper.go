package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qbank-api/internal/middleware"
)

// actorID returns the authenticated user id, or "" on unauthenticated routes.
func actorID(c *gin.Context) string {
	return middleware.CurrentUser(c).ActorID()
}
