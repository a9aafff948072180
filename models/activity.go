package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActivityExpenseAdded      = "expense_added"
	ActivityExpenseUpdated    = "expense_updated"
	ActivityExpenseDeleted    = "expense_deleted"
	ActivitySharePaid         = "share_paid"
	ActivitySettlementCreated = "settlement_created"
	ActivitySettlementSettled = "settlement_settled"
	ActivityEventCreated      = "event_created"
	ActivityMemberJoined      = "member_joined"
)

type Activity struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	EventID     *uuid.UUID `gorm:"type:uuid;index" json:"event_id,omitempty"`
	EventTitle  string     `gorm:"-" json:"event_title,omitempty"`
	UserID      uuid.UUID  `gorm:"type:uuid;index" json:"user_id"`
	Type        string     `gorm:"not null;size:30" json:"type"`
	ReferenceID uuid.UUID  `gorm:"type:uuid" json:"reference_id,omitempty"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
