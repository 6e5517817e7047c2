package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/estatelink/estatelink-backend/internal/directory"
	"github.com/estatelink/estatelink-backend/internal/models"
	"github.com/estatelink/estatelink-backend/internal/services"
	"github.com/estatelink/estatelink-backend/pkg/errors"
)

// EstateHandler serves the estate-scoped surface: the lazy community group,
// estate announcements and the online-users listing. Every route verifies
// the caller belongs to the estate in the path.
type EstateHandler struct {
	store    *services.ConversationStore
	access   *services.AccessPolicy
	users    *directory.Users
	estates  *directory.Estates
	presence services.SessionStore
	fanout   *services.FanoutRouter
}

func NewEstateHandler(
	store *services.ConversationStore,
	access *services.AccessPolicy,
	users *directory.Users,
	estates *directory.Estates,
	presence services.SessionStore,
	fanout *services.FanoutRouter,
) *EstateHandler {
	return &EstateHandler{
		store:    store,
		access:   access,
		users:    users,
		estates:  estates,
		presence: presence,
		fanout:   fanout,
	}
}

// caller resolves the authenticated user and checks the estate in the path:
// it must exist, and the user must belong to it.
func (h *EstateHandler) caller(c *gin.Context) (*models.User, bool) {
	estateID := c.Param("id")
	exists, err := h.estates.Exists(estateID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !exists {
		respondError(c, errors.NotFound("Estate not found"))
		return nil, false
	}

	userID := c.MustGet("userId").(string)
	user, err := h.users.ByID(userID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if user.EstateID != estateID {
		respondError(c, errors.Forbidden("Not a member of this estate"))
		return nil, false
	}
	return user, true
}

// GetOrCreateGroup GET /estates/:id/group
func (h *EstateHandler) GetOrCreateGroup(c *gin.Context) {
	user, ok := h.caller(c)
	if !ok {
		return
	}

	conv, err := h.store.GetOrCreateEstateGroup(user.EstateID, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

// ListConversations GET /estates/:id/conversations
func (h *EstateHandler) ListConversations(c *gin.Context) {
	user, ok := h.caller(c)
	if !ok {
		return
	}

	convs, err := h.store.ListEstateConversations(user.EstateID, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// Broadcast POST /estates/:id/broadcast
func (h *EstateHandler) Broadcast(c *gin.Context) {
	user, ok := h.caller(c)
	if !ok {
		return
	}

	if !h.access.CanBroadcastToEstate(user) {
		respondError(c, errors.Forbidden("Not allowed to broadcast to the estate"))
		return
	}

	var req struct {
		Message string             `json:"message" binding:"required"`
		Kind    models.MessageKind `json:"kind"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(c, errors.BadRequest("Broadcast message is required"))
		return
	}

	if err := broadcastToEstate(h.store, h.estates, h.fanout, user, req.Message, req.Kind); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": true})
}

// ListOnlineUsers GET /estates/:id/online
func (h *EstateHandler) ListOnlineUsers(c *gin.Context) {
	user, ok := h.caller(c)
	if !ok {
		return
	}

	online := h.presence.RoomMembers(user.EstateID)
	c.JSON(http.StatusOK, gin.H{"online": online, "count": len(online)})
}

// broadcastToEstate persists the announcement as a message in the estate
// group conversation, then fans it out: direct emit to online room members,
// push fallback to every other active estate user. Shared by the REST
// surface and the socket gateway.
func broadcastToEstate(
	store *services.ConversationStore,
	estates *directory.Estates,
	fanout *services.FanoutRouter,
	from *models.User,
	message string,
	kind models.MessageKind,
) error {
	if kind == "" {
		kind = models.MessageSystem
	}

	conv, err := store.GetOrCreateEstateGroup(from.EstateID, from.ID)
	if err != nil {
		return err
	}
	if _, err := store.CreateMessage(conv.ID, from.ID, services.MessageInput{
		Kind:    kind,
		Content: &message,
	}); err != nil {
		return err
	}

	activeUsers, err := estates.ListActiveUsers(from.EstateID)
	if err != nil {
		return err
	}
	fanout.EstateBroadcast(from, activeUsers, message, kind)
	return nil
}
