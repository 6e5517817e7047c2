package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/estatelink/estatelink-backend/internal/models"
)

func TestStoreNotifier_PersistsNotificationRow(t *testing.T) {
	db := openTestDB(t)
	seedEstate(db, "est_nt")
	seedUser(db, "nt_a", "est_nt", models.RoleResident)

	notifier := NewStoreNotifier(db)
	notifier.SendToUser("nt_a", Push{
		Title: "First Last",
		Body:  "hello there",
		Kind:  models.NotificationNewMessage,
		Data:  map[string]string{"conversationId": "conv1"},
	})

	var rows []models.Notification
	db.Where("user_id = ?", "nt_a").Find(&rows)
	assert.Len(t, rows, 1)
	assert.Equal(t, models.NotificationNewMessage, rows[0].Kind)
	assert.Equal(t, "hello there", rows[0].Body)
	assert.Contains(t, rows[0].Data, "conv1")
	assert.False(t, rows[0].IsRead)
}
