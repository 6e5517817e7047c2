package services

import (
	"time"
	"unicode/utf8"

	"github.com/estatelink/estatelink-backend/internal/models"
	"github.com/estatelink/estatelink-backend/pkg/logger"
)

const pushBodyLimit = 120

// FanoutRouter distributes persisted events to their recipients: a direct
// socket emit for everyone online, the notification bridge for everyone
// offline. Persistence always completes before any of these methods run.
type FanoutRouter struct {
	store    *ConversationStore
	presence SessionStore
	notifier Notifier
}

func NewFanoutRouter(store *ConversationStore, presence SessionStore, notifier Notifier) *FanoutRouter {
	return &FanoutRouter{store: store, presence: presence, notifier: notifier}
}

// MessageCreated routes a freshly persisted message to every active
// participant except the sender. Exactly one direct emit per online
// recipient; offline recipients get a best-effort push with the conversation
// id in the data payload.
func (f *FanoutRouter) MessageCreated(msg *models.Message, sender *models.User) {
	participants, err := f.store.ActiveParticipants(msg.ConversationID)
	if err != nil {
		logger.Error().Err(err).
			Str("conversation_id", msg.ConversationID).
			Msg("Fan-out recipient lookup failed")
		return
	}

	payload := NewMessagePayload{
		ConversationID: msg.ConversationID,
		Message:        msg,
	}

	for _, p := range participants {
		if p.UserID == msg.SenderUserID {
			continue
		}
		if session, ok := f.presence.SessionFor(p.UserID); ok {
			session.Emit(EventNewMessage, payload)
			continue
		}
		f.notifier.SendToUser(p.UserID, Push{
			Title: sender.DisplayName(),
			Body:  pushBody(msg),
			Kind:  models.NotificationNewMessage,
			Data: map[string]string{
				"conversationId": msg.ConversationID,
				"messageId":      msg.ID,
			},
		})
	}
}

func pushBody(msg *models.Message) string {
	if msg.Content != nil && *msg.Content != "" {
		body := *msg.Content
		if len(body) > pushBodyLimit {
			// Back up so the cut never splits a multi-byte rune.
			cut := pushBodyLimit
			for cut > 0 && !utf8.RuneStart(body[cut]) {
				cut--
			}
			body = body[:cut]
		}
		return body
	}
	switch msg.Kind {
	case models.MessageImage:
		return "Sent a photo"
	case models.MessageFile:
		return "Sent a file"
	case models.MessageVoice:
		return "Sent a voice note"
	default:
		return "Sent a message"
	}
}

// ReadReceipt broadcasts message_read to the other active participants'
// online sessions. Read receipts have no offline fallback.
func (f *FanoutRouter) ReadReceipt(conversationID, messageID, readBy string, readAt time.Time) {
	participants, err := f.store.ActiveParticipants(conversationID)
	if err != nil {
		logger.Error().Err(err).
			Str("conversation_id", conversationID).
			Msg("Read-receipt recipient lookup failed")
		return
	}

	payload := MessageReadPayload{
		ConversationID: conversationID,
		MessageID:      messageID,
		ReadBy:         readBy,
		ReadAt:         readAt,
	}
	for _, p := range participants {
		if p.UserID == readBy {
			continue
		}
		if session, ok := f.presence.SessionFor(p.UserID); ok {
			session.Emit(EventMessageRead, payload)
		}
	}
}

// Typing broadcasts the indicator to the other active participants currently
// online. Purely ephemeral: no persistence, no fallback.
func (f *FanoutRouter) Typing(conversationID, userID string, isTyping bool) {
	participants, err := f.store.ActiveParticipants(conversationID)
	if err != nil {
		logger.Error().Err(err).
			Str("conversation_id", conversationID).
			Msg("Typing recipient lookup failed")
		return
	}

	payload := UserTypingPayload{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	}
	for _, p := range participants {
		if p.UserID == userID {
			continue
		}
		if session, ok := f.presence.SessionFor(p.UserID); ok {
			session.Emit(EventUserTyping, payload)
		}
	}
}

// PresenceChanged announces user_online / user_offline to the estate room.
func (f *FanoutRouter) PresenceChanged(user *models.User, online bool) {
	now := time.Now()
	for _, memberID := range f.presence.RoomMembers(user.EstateID) {
		if memberID == user.ID {
			continue
		}
		session, ok := f.presence.SessionFor(memberID)
		if !ok {
			continue
		}
		if online {
			session.Emit(EventUserOnline, UserOnlinePayload{
				UserID:    user.ID,
				FirstName: user.FirstName,
				LastName:  user.LastName,
				Timestamp: now,
			})
		} else {
			session.Emit(EventUserOffline, UserOfflinePayload{
				UserID:    user.ID,
				Timestamp: now,
			})
		}
	}
}

// EstateBroadcast delivers a room-wide announcement: a direct emit to every
// online room member, a push to every other active estate user.
func (f *FanoutRouter) EstateBroadcast(from *models.User, activeUsers []models.User, message string, kind models.MessageKind) {
	if kind == "" {
		kind = models.MessageSystem
	}
	payload := EstateBroadcastPayload{
		Message:   message,
		Kind:      kind,
		From:      from.DisplayName(),
		Timestamp: time.Now(),
	}

	delivered := map[string]bool{from.ID: true}
	for _, memberID := range f.presence.RoomMembers(from.EstateID) {
		if delivered[memberID] {
			continue
		}
		if session, ok := f.presence.SessionFor(memberID); ok {
			session.Emit(EventBroadcastOut, payload)
			delivered[memberID] = true
		}
	}

	for _, u := range activeUsers {
		if delivered[u.ID] {
			continue
		}
		// Room membership can lag a connect; treat any online session as
		// delivered rather than double-dipping into push.
		if session, ok := f.presence.SessionFor(u.ID); ok {
			session.Emit(EventBroadcastOut, payload)
			delivered[u.ID] = true
			continue
		}
		f.notifier.SendToUser(u.ID, Push{
			Title: "Estate announcement",
			Body:  message,
			Kind:  models.NotificationEstateBroadcast,
			Data: map[string]string{
				"estateId": from.EstateID,
				"from":     from.ID,
			},
		})
		delivered[u.ID] = true
	}
}
