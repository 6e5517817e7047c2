package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/estatelink/estatelink-backend/internal/directory"
	"github.com/estatelink/estatelink-backend/internal/models"
	"github.com/estatelink/estatelink-backend/internal/services"
	"github.com/estatelink/estatelink-backend/pkg/errors"
)

// ChatHandler is the request/response surface over conversations. Sends go
// through the same store + fan-out path as the socket gateway so a client
// that is not connected sees identical semantics.
type ChatHandler struct {
	store  *services.ConversationStore
	users  *directory.Users
	fanout *services.FanoutRouter
}

func NewChatHandler(store *services.ConversationStore, users *directory.Users, fanout *services.FanoutRouter) *ChatHandler {
	return &ChatHandler{store: store, users: users, fanout: fanout}
}

func respondError(c *gin.Context, err error) {
	appErr := errors.From(err)
	c.JSON(appErr.Code, gin.H{"error": appErr.Message})
}

// CreateConversation POST /chat/conversations
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	userID := c.MustGet("userId").(string)

	var req struct {
		Kind           models.ConversationKind `json:"kind" binding:"required"`
		Title          *string                 `json:"title"`
		PhotoURL       *string                 `json:"photoUrl"`
		ParticipantIDs []string                `json:"participantIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.users.ByID(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	conv, err := h.store.CreateConversation(user.EstateID, userID, services.CreateConversationInput{
		Kind:           req.Kind,
		Title:          req.Title,
		PhotoURL:       req.PhotoURL,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

// ListConversations GET /chat/conversations
func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID := c.MustGet("userId").(string)

	convs, err := h.store.ListConversationsForUser(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// GetConversation GET /chat/conversations/:id
func (h *ChatHandler) GetConversation(c *gin.Context) {
	userID := c.MustGet("userId").(string)

	conv, err := h.store.GetConversation(c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

// SendMessage POST /chat/conversations/:id/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	conversationID := c.Param("id")

	var req struct {
		Content          *string            `json:"content"`
		Kind             models.MessageKind `json:"kind"`
		Metadata         map[string]any     `json:"metadata"`
		ReplyToMessageID *string            `json:"replyToMessageId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.users.ByID(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	msg, err := h.store.CreateMessage(conversationID, userID, services.MessageInput{
		Kind:             req.Kind,
		Content:          req.Content,
		Metadata:         req.Metadata,
		ReplyToMessageID: req.ReplyToMessageID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.MessageCreated(msg, user)

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// ListMessages GET /chat/conversations/:id/messages?page=&limit=
func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	conversationID := c.Param("id")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, err := h.store.ListMessages(conversationID, userID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// AddReaction POST /chat/messages/:id/reactions
func (h *ChatHandler) AddReaction(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	messageID := c.Param("id")

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	reaction, err := h.store.AddReaction(messageID, userID, req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"reaction": reaction})
}

// RemoveReaction DELETE /chat/messages/:id/reactions/:emoji
func (h *ChatHandler) RemoveReaction(c *gin.Context) {
	userID := c.MustGet("userId").(string)

	if err := h.store.RemoveReaction(c.Param("id"), userID, c.Param("emoji")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": true})
}

// MarkRead POST /chat/conversations/:id/read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	conversationID := c.Param("id")

	var req struct {
		MessageID string `json:"messageId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	p, err := h.store.MarkRead(conversationID, userID, req.MessageID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.ReadReceipt(conversationID, req.MessageID, userID, time.Now())

	c.JSON(http.StatusOK, gin.H{"participant": p})
}

// Leave POST /chat/conversations/:id/leave
func (h *ChatHandler) Leave(c *gin.Context) {
	userID := c.MustGet("userId").(string)

	if err := h.store.Leave(c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"left": true})
}

// AddParticipant POST /chat/conversations/:id/participants
func (h *ChatHandler) AddParticipant(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	conversationID := c.Param("id")

	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	p, err := h.store.AddParticipant(conversationID, userID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"participant": p})
}
