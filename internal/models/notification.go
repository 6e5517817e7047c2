package models

import (
	"time"

	"github.com/estatelink/estatelink-backend/pkg/utils"
	"gorm.io/gorm"
)

type NotificationKind string

const (
	NotificationNewMessage      NotificationKind = "NEW_MESSAGE"
	NotificationEstateBroadcast NotificationKind = "ESTATE_BROADCAST"
	NotificationSystem          NotificationKind = "SYSTEM"
)

// Notification is the durable half of the push fallback: when a message
// recipient is offline the bridge writes one of these instead of emitting
// over a socket. The actual device push transport consumes this table.
type Notification struct {
	ID        string           `gorm:"primaryKey;type:text" json:"id"`
	UserID    string           `gorm:"index;type:text;not null" json:"userId"`
	Kind      NotificationKind `gorm:"type:varchar(30);default:'SYSTEM';not null" json:"kind"`
	Title     string           `gorm:"type:text;not null" json:"title"`
	Body      string           `gorm:"type:text" json:"body"`
	Data      string           `gorm:"type:jsonb;default:'{}'" json:"data"`
	IsRead    bool             `gorm:"default:false" json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID = utils.GenerateID()
	}
	return
}
