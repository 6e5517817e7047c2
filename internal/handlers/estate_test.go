package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/estatelink/estatelink-backend/internal/models"
	"github.com/estatelink/estatelink-backend/internal/services"
)

func TestGetOrCreateGroupEndpoint(t *testing.T) {
	env := setupEnv(t)
	env.seedEstate("e_eg")
	env.seedUser("eg_a", "e_eg", models.RoleResident)
	env.seedUser("eg_b", "e_eg", models.RoleResident)

	call := func(userID string) (*httptest.ResponseRecorder, models.Conversation) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Set("userId", userID)
		c.Params = gin.Params{{Key: "id", Value: "e_eg"}}
		c.Request, _ = http.NewRequest("GET", "/", nil)
		env.estate.GetOrCreateGroup(c)

		var resp struct {
			Conversation models.Conversation `json:"conversation"`
		}
		json.Unmarshal(w.Body.Bytes(), &resp)
		return w, resp.Conversation
	}

	w1, conv1 := call("eg_a")
	assert.Equal(t, http.StatusOK, w1.Code)
	assert.True(t, conv1.IsEstateGroup)

	// The second caller lands in the same conversation.
	w2, conv2 := call("eg_b")
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, conv1.ID, conv2.ID)
}

func TestEstateEndpoints_RejectForeignEstate(t *testing.T) {
	env := setupEnv(t)
	env.seedEstate("e_own")
	env.seedEstate("e_other")
	env.seedUser("fe_a", "e_own", models.RoleResident)

	call := func(estateID string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Set("userId", "fe_a")
		c.Params = gin.Params{{Key: "id", Value: estateID}}
		c.Request, _ = http.NewRequest("GET", "/", nil)
		env.estate.GetOrCreateGroup(c)
		return w
	}

	// Someone else's estate: forbidden.
	assert.Equal(t, http.StatusForbidden, call("e_other").Code)

	// An estate that does not exist at all: not found.
	assert.Equal(t, http.StatusNotFound, call("e_missing").Code)
}

func TestListEstateConversationsEndpoint_ParticipantScoped(t *testing.T) {
	env := setupEnv(t)
	env.seedEstate("e_lc")
	env.seedUser("lc_a", "e_lc", models.RoleResident)
	env.seedUser("lc_b", "e_lc", models.RoleResident)
	env.seedUser("lc_out", "e_lc", models.RoleResident)

	title := "neighbours"
	_, err := env.store.CreateConversation("e_lc", "lc_a", services.CreateConversationInput{
		Kind:           models.ConversationDirect,
		Title:          &title,
		ParticipantIDs: []string{"lc_b"},
	})
	assert.NoError(t, err)

	list := func(userID string) []models.Conversation {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Set("userId", userID)
		c.Params = gin.Params{{Key: "id", Value: "e_lc"}}
		c.Request, _ = http.NewRequest("GET", "/", nil)
		env.estate.ListConversations(c)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Conversations []models.Conversation `json:"conversations"`
		}
		json.Unmarshal(w.Body.Bytes(), &resp)
		return resp.Conversations
	}

	// A direct thread between a and b never shows up for another resident.
	assert.Len(t, list("lc_a"), 1)
	assert.Empty(t, list("lc_out"))
}

func TestBroadcastEndpoint_RoleGated(t *testing.T) {
	env := setupEnv(t)
	env.seedEstate("e_bc")
	env.seedUser("bc_res", "e_bc", models.RoleResident)
	env.seedUser("bc_sec", "e_bc", models.RoleSecurity)
	env.seedUser("bc_off", "e_bc", models.RoleResident)

	send := func(userID string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Set("userId", userID)
		c.Params = gin.Params{{Key: "id", Value: "e_bc"}}
		jsonRequest(t, c, "POST", gin.H{"message": "Gate closed tonight"})
		env.estate.Broadcast(c)
		return w
	}

	// Residents may not broadcast.
	assert.Equal(t, http.StatusForbidden, send("bc_res").Code)

	// Security personnel may; offline estate users get the push fallback.
	assert.Equal(t, http.StatusOK, send("bc_sec").Code)
	assert.NotEmpty(t, env.notifier.pushes["bc_off"])

	// The announcement is persisted into the estate group conversation.
	var group models.Conversation
	env.db.Where("estate_id = ? AND is_estate_group = ?", "e_bc", true).First(&group)
	var count int64
	env.db.Model(&models.Message{}).Where("conversation_id = ?", group.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestListOnlineUsersEndpoint(t *testing.T) {
	env := setupEnv(t)
	env.seedEstate("e_ol")
	env.seedUser("ol_a", "e_ol", models.RoleResident)

	env.presence.JoinRoom("e_ol", "ol_b")
	env.presence.JoinRoom("e_ol", "ol_c")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("userId", "ol_a")
	c.Params = gin.Params{{Key: "id", Value: "e_ol"}}
	c.Request, _ = http.NewRequest("GET", "/", nil)

	env.estate.ListOnlineUsers(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Online []string `json:"online"`
		Count  int      `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, 2, resp.Count)
	assert.ElementsMatch(t, []string{"ol_b", "ol_c"}, resp.Online)
}
