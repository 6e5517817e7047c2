package models

import "time"

// Estate is the tenant boundary. Conversations and presence rooms are
// scoped to exactly one estate.
type Estate struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Address   string    `gorm:"type:text" json:"address"`
	CreatedAt time.Time `json:"createdAt"`
}
