package services

import (
	"encoding/json"

	"github.com/estatelink/estatelink-backend/internal/models"
	"github.com/estatelink/estatelink-backend/pkg/logger"
	"gorm.io/gorm"
)

// Push is what the notification bridge delivers to one offline user.
type Push struct {
	Title string
	Body  string
	Kind  models.NotificationKind
	Data  map[string]string
}

// Notifier is the notification-bridge collaborator: best-effort, non-blocking
// delivery to a single user. Failures are the implementation's problem; the
// originating send never fails because of them.
type Notifier interface {
	SendToUser(userID string, push Push)
}

// StoreNotifier persists each push as a Notification row that the device
// push transport drains. Errors are logged and swallowed.
type StoreNotifier struct {
	db *gorm.DB
}

func NewStoreNotifier(db *gorm.DB) *StoreNotifier {
	return &StoreNotifier{db: db}
}

func (n *StoreNotifier) SendToUser(userID string, push Push) {
	data := "{}"
	if len(push.Data) > 0 {
		if raw, err := json.Marshal(push.Data); err == nil {
			data = string(raw)
		}
	}

	kind := push.Kind
	if kind == "" {
		kind = models.NotificationSystem
	}

	notification := models.Notification{
		UserID: userID,
		Kind:   kind,
		Title:  push.Title,
		Body:   push.Body,
		Data:   data,
	}

	if err := n.db.Create(&notification).Error; err != nil {
		logger.Warn().
			Err(err).
			Str("user_id", userID).
			Str("kind", string(kind)).
			Msg("Failed to queue push notification")
	}
}
