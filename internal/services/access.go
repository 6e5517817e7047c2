package services

import (
	"github.com/estatelink/estatelink-backend/internal/models"
	"github.com/estatelink/estatelink-backend/pkg/errors"
	"gorm.io/gorm"
)

// AccessPolicy answers the authorization questions the messaging core asks:
// may this user touch this conversation, may they manage its participants,
// may they broadcast to their estate. Every conversation read and write goes
// through ActiveParticipant first.
type AccessPolicy struct {
	db *gorm.DB
}

func NewAccessPolicy(db *gorm.DB) *AccessPolicy {
	return &AccessPolicy{db: db}
}

// ActiveParticipant returns the caller's participant row if it grants access
// (left_at and removed_at both null), Forbidden otherwise.
func (a *AccessPolicy) ActiveParticipant(conversationID, userID string) (*models.Participant, error) {
	var p models.Participant
	err := a.db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Forbidden("Not a participant of this conversation")
		}
		return nil, err
	}
	if !p.Active() {
		return nil, errors.Forbidden("Not a participant of this conversation")
	}
	return &p, nil
}

func (a *AccessPolicy) IsActiveParticipant(conversationID, userID string) bool {
	_, err := a.ActiveParticipant(conversationID, userID)
	return err == nil
}

// IsAdmin reports whether the user is an active admin participant. Gates
// participant management.
func (a *AccessPolicy) IsAdmin(conversationID, userID string) bool {
	p, err := a.ActiveParticipant(conversationID, userID)
	if err != nil {
		return false
	}
	return p.IsAdmin
}

// CanBroadcastToEstate gates the estate-wide broadcast path by role.
func (a *AccessPolicy) CanBroadcastToEstate(user *models.User) bool {
	return user.CanBroadcast()
}
