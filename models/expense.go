package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
)

type ExpenseStatus string

const (
	ExpenseDraft    ExpenseStatus = "draft"
	ExpensePending  ExpenseStatus = "pending"
	ExpenseApproved ExpenseStatus = "approved"
	ExpenseSettled  ExpenseStatus = "settled"
)

// ParseExpenseStatus validates a client-supplied status. Empty means pending.
func ParseExpenseStatus(s string) (ExpenseStatus, error) {
	switch st := ExpenseStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return ExpensePending, nil
	case ExpenseDraft, ExpensePending, ExpenseApproved, ExpenseSettled:
		return st, nil
	default:
		return "", ledger.Validation("parse status", "invalid expense status %q", s)
	}
}

type Expense struct {
	ID           uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string               `gorm:"not null;size:255" json:"title"`
	Amount       decimal.Decimal      `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency     string               `gorm:"not null;size:3" json:"currency"`
	Category     string               `gorm:"size:50" json:"category"` // transport, accommodation, food, equipment, fees, other
	PaidBy       uuid.UUID            `gorm:"type:uuid;index;not null" json:"paid_by"`
	EventID      *uuid.UUID           `gorm:"type:uuid;index" json:"event_id,omitempty"`
	Status       ExpenseStatus        `gorm:"not null;default:pending;size:20" json:"status"`
	SplitMode    ledger.SplitMode     `gorm:"not null;default:equal;size:20" json:"split_mode"`
	Notes        string               `json:"notes,omitempty"`
	CreatedBy    uuid.UUID            `gorm:"type:uuid" json:"created_by"`
	Participants []ExpenseParticipant `gorm:"foreignKey:ExpenseID" json:"participants,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func (e *Expense) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// LedgerEntry converts the expense into the balance engine's input.
func (e *Expense) LedgerEntry() ledger.ExpenseEntry {
	entry := ledger.ExpenseEntry{
		ID:           e.ID,
		PaidBy:       e.PaidBy,
		EventID:      e.EventID,
		Participants: make([]ledger.ParticipantEntry, 0, len(e.Participants)),
	}
	for _, p := range e.Participants {
		entry.Participants = append(entry.Participants, ledger.ParticipantEntry{
			UserID: p.UserID,
			Share:  p.ShareAmount,
			Paid:   p.IsPaid,
		})
	}
	return entry
}

// Participant returns the participant row for userID, or nil.
func (e *Expense) Participant(userID uuid.UUID) *ExpenseParticipant {
	for i := range e.Participants {
		if e.Participants[i].UserID == userID {
			return &e.Participants[i]
		}
	}
	return nil
}

// OutstandingShares reports whether any non-payer share is still unpaid.
func (e *Expense) OutstandingShares() bool {
	for _, p := range e.Participants {
		if p.UserID != e.PaidBy && !p.IsPaid {
			return true
		}
	}
	return false
}

// AnyPaid reports whether any share has been marked paid.
func (e *Expense) AnyPaid() bool {
	for _, p := range e.Participants {
		if p.IsPaid {
			return true
		}
	}
	return false
}

// ExpenseParticipant is one user's share of an expense. The payer's own row
// never represents a debt.
type ExpenseParticipant struct {
	ExpenseID   uuid.UUID       `gorm:"type:uuid;primaryKey" json:"expense_id"`
	UserID      uuid.UUID       `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	Position    int             `gorm:"not null" json:"-"`
	ShareAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"share_amount"`
	IsPaid      bool            `gorm:"not null" json:"is_paid"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Request structs
type CreateExpenseRequest struct {
	Title        string          `json:"title" binding:"required"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Category     string          `json:"category"`
	PaidBy       string          `json:"paid_by"`  // defaults to the caller
	EventID      string          `json:"event_id"` // optional
	Status       string          `json:"status"`
	SplitMode    string          `json:"split_mode" binding:"omitempty,oneof=equal custom exact percentage weighted shares"`
	Participants []string        `json:"participants"` // for equal splits; defaults to the event's participants
	Splits       []SplitInput    `json:"splits"`       // required for custom, percentage, weighted
	Notes        string          `json:"notes"`
}

type SplitInput struct {
	UserID string          `json:"user_id" binding:"required"`
	Value  decimal.Decimal `json:"value"` // exact amount, percentage, or weight
}

type UpdateExpenseRequest struct {
	Title        *string          `json:"title"`
	Amount       *decimal.Decimal `json:"amount"`
	Currency     *string          `json:"currency"`
	Category     *string          `json:"category"`
	Status       *string          `json:"status"`
	Notes        *string          `json:"notes"`
	SplitMode    *string          `json:"split_mode"`
	Participants []string         `json:"participants"`
	Splits       []SplitInput     `json:"splits"`
}

// Response
type ExpenseResponse struct {
	ID           uuid.UUID             `json:"id"`
	Title        string                `json:"title"`
	Amount       string                `json:"amount"`
	Currency     string                `json:"currency"`
	Category     string                `json:"category"`
	PaidBy       uuid.UUID             `json:"paid_by"`
	PayerName    string                `json:"payer_name,omitempty"`
	EventID      *uuid.UUID            `json:"event_id,omitempty"`
	Status       ExpenseStatus         `json:"status"`
	SplitMode    ledger.SplitMode      `json:"split_mode"`
	Notes        string                `json:"notes,omitempty"`
	Participants []ParticipantResponse `json:"participants"`
	CreatedAt    time.Time             `json:"created_at"`
}

type ParticipantResponse struct {
	UserID      uuid.UUID  `json:"user_id"`
	UserName    string     `json:"user_name,omitempty"`
	ShareAmount string     `json:"share_amount"`
	IsPaid      bool       `json:"is_paid"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// ToResponse renders the expense with money as fixed two-decimal strings.
// names maps user ids to display names and may be nil.
func (e *Expense) ToResponse(names map[uuid.UUID]string) ExpenseResponse {
	resp := ExpenseResponse{
		ID:           e.ID,
		Title:        e.Title,
		Amount:       e.Amount.StringFixed(2),
		Currency:     e.Currency,
		Category:     e.Category,
		PaidBy:       e.PaidBy,
		PayerName:    names[e.PaidBy],
		EventID:      e.EventID,
		Status:       e.Status,
		SplitMode:    e.SplitMode,
		Notes:        e.Notes,
		Participants: make([]ParticipantResponse, 0, len(e.Participants)),
		CreatedAt:    e.CreatedAt,
	}
	for _, p := range e.Participants {
		resp.Participants = append(resp.Participants, ParticipantResponse{
			UserID:      p.UserID,
			UserName:    names[p.UserID],
			ShareAmount: p.ShareAmount.StringFixed(2),
			IsPaid:      p.IsPaid,
			PaidAt:      p.PaidAt,
		})
	}
	return resp
}
