package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/estatelink/estatelink-backend/internal/directory"
	"github.com/estatelink/estatelink-backend/internal/models"
	"github.com/estatelink/estatelink-backend/internal/services"
)

type testEnv struct {
	db       *gorm.DB
	store    *services.ConversationStore
	access   *services.AccessPolicy
	presence *services.PresenceRegistry
	notifier *recordingNotifier
	chat     *ChatHandler
	estate   *EstateHandler
}

type recordingNotifier struct {
	pushes map[string][]services.Push
}

func (r *recordingNotifier) SendToUser(userID string, push services.Push) {
	r.pushes[userID] = append(r.pushes[userID], push)
}

// setupEnv initializes an in-memory SQLite DB and builds the handler stack
// on top of it.
func setupEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	err = db.AutoMigrate(
		&models.Estate{},
		&models.User{},
		&models.Conversation{},
		&models.Participant{},
		&models.Message{},
		&models.Reaction{},
		&models.Notification{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test DB: %v", err)
	}

	users := directory.NewUsers(db)
	estates := directory.NewEstates(db)
	access := services.NewAccessPolicy(db)
	store := services.NewConversationStore(db, access, estates)
	presence := services.NewPresenceRegistry()
	notifier := &recordingNotifier{pushes: make(map[string][]services.Push)}
	fanout := services.NewFanoutRouter(store, presence, notifier)

	return &testEnv{
		db:       db,
		store:    store,
		access:   access,
		presence: presence,
		notifier: notifier,
		chat:     NewChatHandler(store, users, fanout),
		estate:   NewEstateHandler(store, access, users, estates, presence, fanout),
	}
}

func (e *testEnv) seedEstate(id string) {
	e.db.Create(&models.Estate{ID: id, Name: "Estate " + id})
}

func (e *testEnv) seedUser(id, estateID string, role models.UserRole) {
	e.db.Create(&models.User{
		ID:       id,
		EstateID: estateID,
		Email:    id + "@example.com",
		Role:     role,
		Status:   models.UserStatusActive,
	})
}

func jsonRequest(t *testing.T, c *gin.Context, method string, body any) {
	raw, err := json.Marshal(body)
	assert.NoError(t, err)
	c.Request, _ = http.NewRequest(method, "/", bytes.NewReader(raw))
	c.Request.Header.Set("Content-Type", "application/json")
}

func TestCreateConversationEndpoint(t *testing.T) {
	env := setupEnv(t)
	env.seedEstate("e_hc")
	env.seedUser("hc_a", "e_hc", models.RoleResident)
	env.seedUser("hc_b", "e_hc", models.RoleResident)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("userId", "hc_a")
	jsonRequest(t, c, "POST", gin.H{
		"kind":           "direct",
		"participantIds": []string{"hc_b"},
	})

	env.chat.CreateConversation(c)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Conversation models.Conversation `json:"conversation"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "e_hc", resp.Conversation.EstateID)
	assert.Len(t, resp.Conversation.Participants, 2)
}

func TestSendMessageEndpoint_FanoutToOfflineRecipient(t *testing.T) {
	env := setupEnv(t)
	env.seedEstate("e_hs")
	env.seedUser("hs_a", "e_hs", models.RoleResident)
	env.seedUser("hs_b", "e_hs", models.RoleResident)

	conv, err := env.store.CreateConversation("e_hs", "hs_a", services.CreateConversationInput{
		Kind:           models.ConversationDirect,
		ParticipantIDs: []string{"hs_b"},
	})
	assert.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("userId", "hs_a")
	c.Params = gin.Params{{Key: "id", Value: conv.ID}}
	jsonRequest(t, c, "POST", gin.H{"content": "hello", "kind": "text"})

	env.chat.SendMessage(c)

	assert.Equal(t, http.StatusCreated, w.Code)

	// The REST path runs the same fan-out as the socket path: the offline
	// recipient gets a push.
	assert.Len(t, env.notifier.pushes["hs_b"], 1)
	assert.Equal(t, conv.ID, env.notifier.pushes["hs_b"][0].Data["conversationId"])
}

func TestSendMessageEndpoint_NonParticipantForbidden(t *testing.T) {
	env := setupEnv(t)
	env.seedEstate("e_hf")
	env.seedUser("hf_a", "e_hf", models.RoleResident)
	env.seedUser("hf_b", "e_hf", models.RoleResident)
	env.seedUser("hf_c", "e_hf", models.RoleResident)

	conv, _ := env.store.CreateConversation("e_hf", "hf_a", services.CreateConversationInput{
		Kind:           models.ConversationDirect,
		ParticipantIDs: []string{"hf_b"},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("userId", "hf_c")
	c.Params = gin.Params{{Key: "id", Value: conv.ID}}
	jsonRequest(t, c, "POST", gin.H{"content": "let me in"})

	env.chat.SendMessage(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReactionEndpoints(t *testing.T) {
	env := setupEnv(t)
	env.seedEstate("e_hr")
	env.seedUser("hr_a", "e_hr", models.RoleResident)
	env.seedUser("hr_b", "e_hr", models.RoleResident)

	conv, _ := env.store.CreateConversation("e_hr", "hr_a", services.CreateConversationInput{
		Kind:           models.ConversationDirect,
		ParticipantIDs: []string{"hr_b"},
	})
	content := "react"
	msg, _ := env.store.CreateMessage(conv.ID, "hr_a", services.MessageInput{Content: &content})

	add := func(userID, emoji string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Set("userId", userID)
		c.Params = gin.Params{{Key: "id", Value: msg.ID}}
		jsonRequest(t, c, "POST", gin.H{"emoji": emoji})
		env.chat.AddReaction(c)
		return w
	}

	assert.Equal(t, http.StatusCreated, add("hr_b", "🎉").Code)
	assert.Equal(t, http.StatusConflict, add("hr_b", "🎉").Code)
	assert.Equal(t, http.StatusCreated, add("hr_b", "👀").Code)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("userId", "hr_b")
	c.Params = gin.Params{{Key: "id", Value: msg.ID}, {Key: "emoji", Value: "🎉"}}
	c.Request, _ = http.NewRequest("DELETE", "/", nil)
	env.chat.RemoveReaction(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListMessagesEndpoint(t *testing.T) {
	env := setupEnv(t)
	env.seedEstate("e_hl")
	env.seedUser("hl_a", "e_hl", models.RoleResident)
	env.seedUser("hl_b", "e_hl", models.RoleResident)

	conv, _ := env.store.CreateConversation("e_hl", "hl_a", services.CreateConversationInput{
		Kind:           models.ConversationDirect,
		ParticipantIDs: []string{"hl_b"},
	})
	for _, text := range []string{"one", "two", "three"} {
		content := text
		_, err := env.store.CreateMessage(conv.ID, "hl_a", services.MessageInput{Content: &content})
		assert.NoError(t, err)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("userId", "hl_b")
	c.Params = gin.Params{{Key: "id", Value: conv.ID}}
	c.Request, _ = http.NewRequest("GET", "/?page=1&limit=50", nil)

	env.chat.ListMessages(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Len(t, resp.Messages, 3)
}

func TestAddParticipantEndpoint_AdminOnly(t *testing.T) {
	env := setupEnv(t)
	env.seedEstate("e_hp")
	env.seedUser("hp_a", "e_hp", models.RoleResident)
	env.seedUser("hp_b", "e_hp", models.RoleResident)
	env.seedUser("hp_c", "e_hp", models.RoleResident)

	conv, _ := env.store.CreateConversation("e_hp", "hp_a", services.CreateConversationInput{
		Kind:           models.ConversationGroup,
		ParticipantIDs: []string{"hp_b"},
	})

	// Non-admin actor is rejected.
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("userId", "hp_b")
	c.Params = gin.Params{{Key: "id", Value: conv.ID}}
	jsonRequest(t, c, "POST", gin.H{"userId": "hp_c"})
	env.chat.AddParticipant(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Admin succeeds.
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Set("userId", "hp_a")
	c.Params = gin.Params{{Key: "id", Value: conv.ID}}
	jsonRequest(t, c, "POST", gin.H{"userId": "hp_c"})
	env.chat.AddParticipant(c)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.access.IsActiveParticipant(conv.ID, "hp_c"))
}

func TestLeaveEndpoint(t *testing.T) {
	env := setupEnv(t)
	env.seedEstate("e_hv")
	env.seedUser("hv_a", "e_hv", models.RoleResident)
	env.seedUser("hv_b", "e_hv", models.RoleResident)

	conv, _ := env.store.CreateConversation("e_hv", "hv_a", services.CreateConversationInput{
		Kind:           models.ConversationDirect,
		ParticipantIDs: []string{"hv_b"},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("userId", "hv_b")
	c.Params = gin.Params{{Key: "id", Value: conv.ID}}
	c.Request, _ = http.NewRequest("POST", "/", nil)

	env.chat.Leave(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.access.IsActiveParticipant(conv.ID, "hv_b"))
}
