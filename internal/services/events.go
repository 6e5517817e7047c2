package services

import (
	"time"

	"github.com/estatelink/estatelink-backend/internal/models"
)

// Socket event names. The sets below are closed: every payload crossing the
// duplex surface is one of these structs, keyed by its event name.
const (
	// client -> server
	EventJoinEstateGroup  = "join_estate_group"
	EventLeaveEstateGroup = "leave_estate_group"
	EventSendMessage      = "send_message"
	EventTyping           = "typing"
	EventMarkAsRead       = "mark_as_read"
	EventEstateBroadcast  = "estate_broadcast"

	// server -> client
	EventUserOnline   = "user_online"
	EventUserOffline  = "user_offline"
	EventNewMessage   = "new_message"
	EventMessageSent  = "message_sent"
	EventError        = "error"
	EventUserTyping   = "user_typing"
	EventMessageRead  = "message_read"
	EventNotification = "notification"
	EventBroadcastOut = "estate_broadcast"
)

// Inbound payloads.

type JoinEstateGroupEvent struct {
	EstateID string `json:"estateId"`
}

type LeaveEstateGroupEvent struct {
	EstateID string `json:"estateId"`
}

type SendMessageEvent struct {
	ConversationID   string             `json:"conversationId"`
	Content          *string            `json:"content,omitempty"`
	Kind             models.MessageKind `json:"kind"`
	Metadata         map[string]any     `json:"metadata,omitempty"`
	ReplyToMessageID *string            `json:"replyToMessageId,omitempty"`
}

type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type MarkAsReadEvent struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type EstateBroadcastEvent struct {
	Message string             `json:"message"`
	Kind    models.MessageKind `json:"kind,omitempty"`
}

// Outbound payloads.

type UserOnlinePayload struct {
	UserID    string    `json:"userId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Timestamp time.Time `json:"timestamp"`
}

type UserOfflinePayload struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type NewMessagePayload struct {
	ConversationID string          `json:"conversationId"`
	Message        *models.Message `json:"message"`
}

type MessageSentPayload struct {
	MessageID string `json:"messageId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type UserTypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

type MessageReadPayload struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	ReadBy         string    `json:"readBy"`
	ReadAt         time.Time `json:"readAt"`
}

type EstateBroadcastPayload struct {
	Message   string             `json:"message"`
	Kind      models.MessageKind `json:"kind"`
	From      string             `json:"from"`
	Timestamp time.Time          `json:"timestamp"`
}
