package directory

import (
	"github.com/estatelink/estatelink-backend/internal/models"
	"github.com/estatelink/estatelink-backend/pkg/errors"
	"gorm.io/gorm"
)

// Users is the user-directory collaborator. The messaging core only reads
// from it; account management happens elsewhere.
type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

// ByID resolves a user by id. Suspended users still resolve; callers that
// care about status check it themselves.
func (u *Users) ByID(id string) (*models.User, error) {
	var user models.User
	if err := u.db.First(&user, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NotFound("User not found")
		}
		return nil, err
	}
	return &user, nil
}

// Estates is the estate-directory collaborator.
type Estates struct {
	db *gorm.DB
}

func NewEstates(db *gorm.DB) *Estates {
	return &Estates{db: db}
}

func (e *Estates) ByID(id string) (*models.Estate, error) {
	var estate models.Estate
	if err := e.db.First(&estate, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NotFound("Estate not found")
		}
		return nil, err
	}
	return &estate, nil
}

func (e *Estates) Exists(id string) (bool, error) {
	var count int64
	if err := e.db.Model(&models.Estate{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListActiveUsers returns every non-suspended user that belongs to the estate.
func (e *Estates) ListActiveUsers(estateID string) ([]models.User, error) {
	var users []models.User
	err := e.db.Where("estate_id = ? AND status = ?", estateID, models.UserStatusActive).
		Order("created_at asc").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
