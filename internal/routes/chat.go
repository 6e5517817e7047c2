package routes

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/estatelink/estatelink-backend/internal/handlers"
	"github.com/estatelink/estatelink-backend/internal/middleware"
)

func RegisterChatRoutes(r gin.IRouter, h *handlers.ChatHandler) {
	chat := r.Group("/chat")
	chat.Use(middleware.AuthMiddleware())
	{
		chat.POST("/conversations", h.CreateConversation)
		chat.GET("/conversations", h.ListConversations)
		chat.GET("/conversations/:id", h.GetConversation)
		// IP token bucket plus a per-user Redis counter, so one user behind a
		// shared NAT cannot spam on the estate's budget.
		chat.POST("/conversations/:id/messages",
			middleware.ChatRateLimit(),
			middleware.UserRateLimit(30, time.Minute),
			h.SendMessage)
		chat.GET("/conversations/:id/messages", h.ListMessages)
		chat.POST("/conversations/:id/read", h.MarkRead)
		chat.POST("/conversations/:id/leave", h.Leave)
		chat.POST("/conversations/:id/participants", h.AddParticipant)
		chat.POST("/messages/:id/reactions", h.AddReaction)
		chat.DELETE("/messages/:id/reactions/:emoji", h.RemoveReaction)
	}
}
