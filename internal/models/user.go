package models

import "time"

type UserRole string

const (
	RoleResident UserRole = "resident"
	RoleAdmin    UserRole = "admin"
	RoleSecurity UserRole = "security"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

// User is the directory record this backend reads for access control and
// presence. Profile management itself lives in a separate service; only the
// fields the messaging core needs are mapped here.
type User struct {
	ID        string     `gorm:"primaryKey;type:text" json:"id"`
	EstateID  string     `gorm:"index;type:text;not null" json:"estateId"`
	FirstName string     `gorm:"type:text" json:"firstName"`
	LastName  string     `gorm:"type:text" json:"lastName"`
	Email     string     `gorm:"uniqueIndex;type:text;not null" json:"email"`
	Role      UserRole   `gorm:"type:varchar(20);default:'resident';not null" json:"role"`
	Status    UserStatus `gorm:"type:varchar(20);default:'active';not null" json:"status"`
	PhotoURL  string     `gorm:"type:text" json:"photoUrl"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`

	Estate Estate `gorm:"foreignKey:EstateID" json:"-"`
}

func (u *User) DisplayName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Email
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// CanBroadcast reports whether the user's role allows estate-wide broadcasts.
func (u *User) CanBroadcast() bool {
	return u.Role == RoleAdmin || u.Role == RoleSecurity
}
