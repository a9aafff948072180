package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Name         string    `gorm:"not null;size:100" json:"name"`
	PasswordHash string    `gorm:"not null;size:255" json:"-"`
	Role         string    `gorm:"not null;default:member;size:20" json:"role"` // member, admin
	Active       bool      `gorm:"not null" json:"active"`
	FCMToken     string    `json:"-"`
	Currency     string    `gorm:"default:GBP;size:3" json:"currency"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = ledger.RoleMember
	}
	return nil
}

// Actor returns the ledger actor for this user.
func (u *User) Actor() ledger.Actor {
	return ledger.Actor{UserID: u.ID, Role: u.Role}
}

// Response struct (what we return to clients)
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Active:    u.Active,
		Currency:  u.Currency,
		CreatedAt: u.CreatedAt,
	}
}
