package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Settlement records a payment made outside the app between two members. It
// is informational and never clears individual expense shares.
type Settlement struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	FromUserID uuid.UUID       `gorm:"type:uuid;index;not null" json:"from_user_id"`
	ToUserID   uuid.UUID       `gorm:"type:uuid;index;not null" json:"to_user_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency   string          `gorm:"not null;size:3" json:"currency"`
	EventID    *uuid.UUID      `gorm:"type:uuid;index" json:"event_id,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	IsSettled  bool            `gorm:"not null" json:"is_settled"`
	SettledAt  *time.Time      `json:"settled_at,omitempty"`
	CreatedBy  uuid.UUID       `gorm:"type:uuid" json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (s *Settlement) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type CreateSettlementRequest struct {
	FromUserID string          `json:"from_user_id"` // defaults to the caller
	ToUserID   string          `json:"to_user_id" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	EventID    string          `json:"event_id"`
	Notes      string          `json:"notes"`
}

type SettlementResponse struct {
	ID         uuid.UUID  `json:"id"`
	FromUserID uuid.UUID  `json:"from_user_id"`
	FromName   string     `json:"from_name,omitempty"`
	ToUserID   uuid.UUID  `json:"to_user_id"`
	ToName     string     `json:"to_name,omitempty"`
	Amount     string     `json:"amount"`
	Currency   string     `json:"currency"`
	EventID    *uuid.UUID `json:"event_id,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	IsSettled  bool       `json:"is_settled"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (s *Settlement) ToResponse(names map[uuid.UUID]string) SettlementResponse {
	return SettlementResponse{
		ID:         s.ID,
		FromUserID: s.FromUserID,
		FromName:   names[s.FromUserID],
		ToUserID:   s.ToUserID,
		ToName:     names[s.ToUserID],
		Amount:     s.Amount.StringFixed(2),
		Currency:   s.Currency,
		EventID:    s.EventID,
		Notes:      s.Notes,
		IsSettled:  s.IsSettled,
		SettledAt:  s.SettledAt,
		CreatedAt:  s.CreatedAt,
	}
}
