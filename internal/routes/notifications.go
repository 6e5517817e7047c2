package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/estatelink/estatelink-backend/internal/handlers"
	"github.com/estatelink/estatelink-backend/internal/middleware"
)

func RegisterNotificationRoutes(r gin.IRouter, h *handlers.NotificationHandler) {
	notifications := r.Group("/notifications")
	notifications.Use(middleware.AuthMiddleware())
	{
		notifications.GET("", h.List)
		notifications.GET("/unread-count", h.UnreadCount)
		notifications.PUT("/:id/read", h.MarkRead)
	}
}
