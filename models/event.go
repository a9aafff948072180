package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event is a trip or club outing that expenses can be grouped under.
type Event struct {
	ID           uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string             `gorm:"not null;size:200" json:"title"`
	Description  string             `json:"description,omitempty"`
	StartsAt     *time.Time         `json:"starts_at,omitempty"`
	EndsAt       *time.Time         `json:"ends_at,omitempty"`
	CreatedBy    uuid.UUID          `gorm:"type:uuid" json:"created_by"`
	Participants []EventParticipant `gorm:"foreignKey:EventID" json:"participants,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// ParticipantIDs returns the ids of everyone attending, in join order.
func (e *Event) ParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(e.Participants))
	for _, p := range e.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// HasParticipant reports whether userID is attending the event.
func (e *Event) HasParticipant(userID uuid.UUID) bool {
	for _, p := range e.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

type EventParticipant struct {
	EventID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"event_id"`
	UserID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// Request structs
type CreateEventRequest struct {
	Title        string   `json:"title" binding:"required"`
	Description  string   `json:"description"`
	StartsAt     string   `json:"starts_at"` // RFC 3339 or YYYY-MM-DD
	EndsAt       string   `json:"ends_at"`
	Participants []string `json:"participants"` // user IDs
}

type AddEventParticipantsRequest struct {
	UserIDs []string `json:"user_ids" binding:"required,min=1"`
}
