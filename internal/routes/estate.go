package routes

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/estatelink/estatelink-backend/internal/handlers"
	"github.com/estatelink/estatelink-backend/internal/middleware"
)

func RegisterEstateRoutes(r gin.IRouter, h *handlers.EstateHandler) {
	estates := r.Group("/estates")
	estates.Use(middleware.AuthMiddleware())
	{
		estates.GET("/:id/group", h.GetOrCreateGroup)
		estates.GET("/:id/conversations", h.ListConversations)
		estates.POST("/:id/broadcast",
			middleware.BroadcastRateLimit(),
			middleware.UserRateLimit(5, time.Minute),
			h.Broadcast)
		estates.GET("/:id/online", h.ListOnlineUsers)
	}
}
