package models

import (
	"time"

	"github.com/estatelink/estatelink-backend/pkg/utils"
	"gorm.io/gorm"
)

type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

type MessageKind string

const (
	MessageText        MessageKind = "text"
	MessageImage       MessageKind = "image"
	MessageFile        MessageKind = "file"
	MessageVoice       MessageKind = "voice"
	MessageLinkPreview MessageKind = "link_preview"
	MessageSystem      MessageKind = "system"
)

// ValidMessageKind checks a client-supplied message kind against the closed set.
func ValidMessageKind(k MessageKind) bool {
	switch k {
	case MessageText, MessageImage, MessageFile, MessageVoice, MessageLinkPreview, MessageSystem:
		return true
	}
	return false
}

type MessageStatus string

const (
	MessageQueued    MessageStatus = "queued"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

// Conversation is a direct or group message thread owned by an estate.
type Conversation struct {
	ID              string           `gorm:"primaryKey;type:text" json:"id"`
	EstateID        string           `gorm:"index;type:text;not null" json:"estateId"`
	CreatedByUserID string           `gorm:"type:text;not null" json:"createdByUserId"`
	Kind            ConversationKind `gorm:"type:varchar(10);default:'direct';not null" json:"kind"`
	Title           *string          `gorm:"type:text" json:"title,omitempty"`
	PhotoURL        *string          `gorm:"type:text" json:"photoUrl,omitempty"`
	IsEstateGroup   bool             `gorm:"default:false;index" json:"isEstateGroup"`
	Metadata        string           `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`

	// Relations
	Participants []Participant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
	Messages     []Message     `gorm:"foreignKey:ConversationID" json:"-"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = utils.GenerateID()
	}
	return
}

// Participant tracks one user's membership in one conversation, including
// per-user state such as mute, pin and the last-read pointer.
// Unique index: one row per (conversation_id, user_id). A user who left keeps
// the row with left_at set; re-adding clears it instead of inserting again.
type Participant struct {
	ID                   string     `gorm:"primaryKey;type:text" json:"id"`
	ConversationID       string     `gorm:"uniqueIndex:idx_conversation_user;type:text;not null" json:"conversationId"`
	UserID               string     `gorm:"uniqueIndex:idx_conversation_user;index;type:text;not null" json:"userId"`
	IsAdmin              bool       `gorm:"default:false" json:"isAdmin"`
	IsMuted              bool       `gorm:"default:false" json:"isMuted"`
	MutedUntil           *time.Time `json:"mutedUntil,omitempty"`
	IsPinned             bool       `gorm:"default:false" json:"isPinned"`
	IsArchived           bool       `gorm:"default:false" json:"isArchived"`
	NotificationsEnabled bool       `gorm:"default:true" json:"notificationsEnabled"`
	LastReadMessageID    *string    `gorm:"type:text" json:"lastReadMessageId,omitempty"`
	LeftAt               *time.Time `json:"leftAt,omitempty"`
	RemovedAt            *time.Time `json:"removedAt,omitempty"`
	JoinedAt             time.Time  `json:"joinedAt"`

	// Relations
	Conversation Conversation `gorm:"foreignKey:ConversationID" json:"-"`
	User         User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (p *Participant) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = utils.GenerateID()
	}
	return
}

// Active reports whether the membership currently grants access.
func (p *Participant) Active() bool {
	return p.LeftAt == nil && p.RemovedAt == nil
}

// Message is append-only; only status, edited_at and deleted_at soft markers
// mutate after creation. Deletion is a marker, never a hard delete.
type Message struct {
	ID               string        `gorm:"primaryKey;type:text" json:"id"`
	ConversationID   string        `gorm:"index;type:text;not null" json:"conversationId"`
	SenderUserID     string        `gorm:"index;type:text;not null" json:"senderUserId"`
	Kind             MessageKind   `gorm:"type:varchar(20);default:'text';not null" json:"kind"`
	Content          *string       `gorm:"type:text" json:"content,omitempty"`
	Metadata         string        `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	ReplyToMessageID *string       `gorm:"type:text;index" json:"replyToMessageId,omitempty"`
	Status           MessageStatus `gorm:"type:varchar(10);default:'sent';not null" json:"status"`
	EditedAt         *time.Time    `json:"editedAt,omitempty"`
	DeletedAt        *time.Time    `json:"deletedAt,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`

	// Relations
	Sender  User     `gorm:"foreignKey:SenderUserID" json:"sender,omitempty"`
	ReplyTo *Message `gorm:"foreignKey:ReplyToMessageID" json:"replyTo,omitempty"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = utils.GenerateID()
	}
	return
}

// Reaction stores emoji reactions on messages.
// Unique index: one row per (message_id, user_id, emoji).
type Reaction struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	MessageID string    `gorm:"uniqueIndex:idx_message_user_emoji;type:text;not null" json:"messageId"`
	UserID    string    `gorm:"uniqueIndex:idx_message_user_emoji;type:text;not null" json:"userId"`
	Emoji     string    `gorm:"uniqueIndex:idx_message_user_emoji;type:text;not null" json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`

	// Relations
	Message Message `gorm:"foreignKey:MessageID" json:"-"`
	User    User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (r *Reaction) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = utils.GenerateID()
	}
	return
}
