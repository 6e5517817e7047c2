package services

import (
	"encoding/json"
	"time"

	"github.com/estatelink/estatelink-backend/internal/directory"
	"github.com/estatelink/estatelink-backend/internal/models"
	"github.com/estatelink/estatelink-backend/pkg/errors"
	"gorm.io/gorm"
)

const defaultPageSize = 50

// ConversationStore owns the durable chat state: conversations, participants,
// messages and reactions. Both the REST surface and the socket gateway write
// through it, so the access checks live here rather than in the handlers.
type ConversationStore struct {
	db      *gorm.DB
	access  *AccessPolicy
	estates *directory.Estates
}

func NewConversationStore(db *gorm.DB, access *AccessPolicy, estates *directory.Estates) *ConversationStore {
	return &ConversationStore{db: db, access: access, estates: estates}
}

// CreateConversationInput carries the creation parameters for a thread.
type CreateConversationInput struct {
	Kind           models.ConversationKind
	Title          *string
	PhotoURL       *string
	ParticipantIDs []string
}

// CreateConversation persists the conversation plus one participant row per
// user in participantIDs plus the creator, who is marked admin.
func (s *ConversationStore) CreateConversation(estateID, creatorID string, in CreateConversationInput) (*models.Conversation, error) {
	if in.Kind != models.ConversationDirect && in.Kind != models.ConversationGroup {
		return nil, errors.BadRequest("Invalid conversation kind")
	}

	conv := models.Conversation{
		EstateID:        estateID,
		CreatedByUserID: creatorID,
		Kind:            in.Kind,
		Title:           in.Title,
		PhotoURL:        in.PhotoURL,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}

		now := time.Now()
		seen := map[string]bool{}
		for _, userID := range append([]string{creatorID}, in.ParticipantIDs...) {
			if seen[userID] {
				continue
			}
			seen[userID] = true

			p := models.Participant{
				ConversationID: conv.ID,
				UserID:         userID,
				IsAdmin:        userID == creatorID,
				JoinedAt:       now,
			}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.getConversation(conv.ID)
}

func (s *ConversationStore) getConversation(id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.Preload("Participants", "left_at IS NULL AND removed_at IS NULL").
		Preload("Participants.User").
		First(&conv, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NotFound("Conversation not found")
		}
		return nil, err
	}
	return &conv, nil
}

// GetConversation fetches a conversation for an active participant.
func (s *ConversationStore) GetConversation(id, userID string) (*models.Conversation, error) {
	conv, err := s.getConversation(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.ActiveParticipant(id, userID); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversationsForUser returns the user's active threads, most recently
// updated first.
func (s *ConversationStore) ListConversationsForUser(userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.
		Joins("JOIN participants ON participants.conversation_id = conversations.id").
		Where("participants.user_id = ? AND participants.left_at IS NULL AND participants.removed_at IS NULL", userID).
		Preload("Participants", "left_at IS NULL AND removed_at IS NULL").
		Preload("Participants.User").
		Order("conversations.updated_at desc").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// ListEstateConversations returns the estate's conversations visible to the
// caller: only the ones where they hold an active participant row. Private
// threads between other residents stay private.
func (s *ConversationStore) ListEstateConversations(estateID, userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.
		Joins("JOIN participants ON participants.conversation_id = conversations.id").
		Where("conversations.estate_id = ?", estateID).
		Where("participants.user_id = ? AND participants.left_at IS NULL AND participants.removed_at IS NULL", userID).
		Order("conversations.updated_at desc").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// AddParticipant adds target to the conversation. The actor must be an active
// admin participant. A prior row left behind by leave/removal is resurrected
// (left_at cleared, joined_at reset) instead of inserting a duplicate.
func (s *ConversationStore) AddParticipant(conversationID, actorID, targetID string) (*models.Participant, error) {
	if _, err := s.getConversation(conversationID); err != nil {
		return nil, err
	}
	if !s.access.IsAdmin(conversationID, actorID) {
		return nil, errors.Forbidden("Only conversation admins can add participants")
	}

	var existing models.Participant
	err := s.db.Where("conversation_id = ? AND user_id = ?", conversationID, targetID).First(&existing).Error
	switch {
	case err == nil:
		if existing.Active() {
			return nil, errors.Conflict("User is already a participant")
		}
		now := time.Now()
		updates := map[string]interface{}{
			"left_at":    nil,
			"removed_at": nil,
			"joined_at":  now,
		}
		if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
			return nil, err
		}
		existing.LeftAt = nil
		existing.RemovedAt = nil
		existing.JoinedAt = now
		return &existing, nil
	case err == gorm.ErrRecordNotFound:
		p := models.Participant{
			ConversationID: conversationID,
			UserID:         targetID,
			JoinedAt:       time.Now(),
		}
		if err := s.db.Create(&p).Error; err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return nil, err
	}
}

// Leave marks the caller's participant row as left.
func (s *ConversationStore) Leave(conversationID, userID string) error {
	p, err := s.access.ActiveParticipant(conversationID, userID)
	if err != nil {
		return err
	}
	return s.db.Model(p).Update("left_at", time.Now()).Error
}

// MessageInput carries the payload for a new message.
type MessageInput struct {
	Kind             models.MessageKind
	Content          *string
	Metadata         map[string]any
	ReplyToMessageID *string
}

// CreateMessage validates access and the reply reference, persists the
// message with status sent, and bumps the conversation's updated_at. The
// caller fans out only after this returns.
func (s *ConversationStore) CreateMessage(conversationID, senderID string, in MessageInput) (*models.Message, error) {
	if _, err := s.getConversation(conversationID); err != nil {
		return nil, err
	}
	if _, err := s.access.ActiveParticipant(conversationID, senderID); err != nil {
		return nil, err
	}

	kind := in.Kind
	if kind == "" {
		kind = models.MessageText
	}
	if !models.ValidMessageKind(kind) {
		return nil, errors.BadRequest("Invalid message kind")
	}

	if in.ReplyToMessageID != nil {
		var parent models.Message
		if err := s.db.First(&parent, "id = ?", *in.ReplyToMessageID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, errors.BadRequest("Replied-to message does not exist")
			}
			return nil, err
		}
		if parent.ConversationID != conversationID {
			return nil, errors.BadRequest("Replied-to message belongs to a different conversation")
		}
	}

	metadata := "{}"
	if len(in.Metadata) > 0 {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, errors.BadRequest("Invalid message metadata")
		}
		metadata = string(raw)
	}

	msg := models.Message{
		ConversationID:   conversationID,
		SenderUserID:     senderID,
		Kind:             kind,
		Content:          in.Content,
		Metadata:         metadata,
		ReplyToMessageID: in.ReplyToMessageID,
		Status:           models.MessageSent,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.Preload("Sender").First(&msg, "id = ?", msg.ID).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns one page of a conversation's messages in chronological
// order. Pages count from 1 and walk backwards from the newest message, but
// each page is returned oldest-first.
func (s *ConversationStore) ListMessages(conversationID, userID string, page, limit int) ([]models.Message, error) {
	if _, err := s.getConversation(conversationID); err != nil {
		return nil, err
	}
	if _, err := s.access.ActiveParticipant(conversationID, userID); err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = defaultPageSize
	}

	var messages []models.Message
	err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Preload("Sender").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Scan is newest-first for paging; flip to chronological for the client.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *ConversationStore) getMessage(id string) (*models.Message, error) {
	var msg models.Message
	if err := s.db.First(&msg, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NotFound("Message not found")
		}
		return nil, err
	}
	return &msg, nil
}

// AddReaction records an emoji reaction. One row per (message, user, emoji);
// a duplicate is a Conflict.
func (s *ConversationStore) AddReaction(messageID, userID, emoji string) (*models.Reaction, error) {
	if emoji == "" {
		return nil, errors.BadRequest("Emoji is required")
	}
	msg, err := s.getMessage(messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.ActiveParticipant(msg.ConversationID, userID); err != nil {
		return nil, err
	}

	var count int64
	s.db.Model(&models.Reaction{}).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Count(&count)
	if count > 0 {
		return nil, errors.Conflict("Reaction already exists")
	}

	reaction := models.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
	}
	if err := s.db.Create(&reaction).Error; err != nil {
		return nil, err
	}
	return &reaction, nil
}

// RemoveReaction deletes the caller's reaction; NotFound if absent.
func (s *ConversationStore) RemoveReaction(messageID, userID, emoji string) error {
	msg, err := s.getMessage(messageID)
	if err != nil {
		return err
	}
	if _, err := s.access.ActiveParticipant(msg.ConversationID, userID); err != nil {
		return err
	}

	res := s.db.Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&models.Reaction{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.NotFound("Reaction not found")
	}
	return nil
}

// MarkRead moves the caller's last-read pointer to messageID. The message
// must exist in the conversation; beyond that the pointer is overwritten
// last-writer-wins, with no forward-only ordering check.
func (s *ConversationStore) MarkRead(conversationID, userID, messageID string) (*models.Participant, error) {
	p, err := s.access.ActiveParticipant(conversationID, userID)
	if err != nil {
		return nil, err
	}

	msg, err := s.getMessage(messageID)
	if err != nil {
		return nil, err
	}
	if msg.ConversationID != conversationID {
		return nil, errors.NotFound("Message not found in this conversation")
	}

	if err := s.db.Model(p).Update("last_read_message_id", messageID).Error; err != nil {
		return nil, err
	}
	p.LastReadMessageID = &messageID
	return p, nil
}

// ActiveParticipants returns the conversation's current members with their
// user records loaded, for fan-out recipient computation.
func (s *ConversationStore) ActiveParticipants(conversationID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := s.db.Where("conversation_id = ? AND left_at IS NULL AND removed_at IS NULL", conversationID).
		Preload("User").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

// GetOrCreateEstateGroup returns the estate-wide group conversation, creating
// it lazily on first request with every currently-active estate user enrolled.
// Later callers who are not yet members are enrolled into the same
// conversation; a second conversation is never created.
func (s *ConversationStore) GetOrCreateEstateGroup(estateID, callerID string) (*models.Conversation, error) {
	estate, err := s.estates.ByID(estateID)
	if err != nil {
		return nil, err
	}

	var conv models.Conversation
	err = s.db.Where("estate_id = ? AND is_estate_group = ?", estateID, true).First(&conv).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		users, err := s.estates.ListActiveUsers(estateID)
		if err != nil {
			return nil, err
		}
		title := estate.Name + " Community"
		conv = models.Conversation{
			EstateID:        estateID,
			CreatedByUserID: callerID,
			Kind:            models.ConversationGroup,
			Title:           &title,
			IsEstateGroup:   true,
		}
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&conv).Error; err != nil {
				return err
			}
			now := time.Now()
			enrolled := false
			for _, u := range users {
				p := models.Participant{
					ConversationID: conv.ID,
					UserID:         u.ID,
					IsAdmin:        u.Role == models.RoleAdmin,
					JoinedAt:       now,
				}
				if u.ID == callerID {
					enrolled = true
				}
				if err := tx.Create(&p).Error; err != nil {
					return err
				}
			}
			if !enrolled {
				p := models.Participant{
					ConversationID: conv.ID,
					UserID:         callerID,
					JoinedAt:       now,
				}
				if err := tx.Create(&p).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		// Existing group: enroll the caller if they are not yet an active
		// member, resurrecting a left row when one exists.
		if !s.access.IsActiveParticipant(conv.ID, callerID) {
			if err := s.enroll(conv.ID, callerID); err != nil {
				return nil, err
			}
		}
	}

	return s.getConversation(conv.ID)
}

// enroll inserts or resurrects a participant row without an admin check; used
// only by lazy estate-group enrollment.
func (s *ConversationStore) enroll(conversationID, userID string) error {
	var existing models.Participant
	err := s.db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).First(&existing).Error
	switch {
	case err == nil:
		return s.db.Model(&existing).Updates(map[string]interface{}{
			"left_at":    nil,
			"removed_at": nil,
			"joined_at":  time.Now(),
		}).Error
	case err == gorm.ErrRecordNotFound:
		p := models.Participant{
			ConversationID: conversationID,
			UserID:         userID,
			JoinedAt:       time.Now(),
		}
		return s.db.Create(&p).Error
	default:
		return err
	}
}
