package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
	"github.com/AndrewCorlett/errolian-club-sub000/models"
)

// CreateEvent stores the event and its initial attendees together.
func (s *Store) CreateEvent(ctx context.Context, e *models.Event, participantIDs []uuid.UUID) error {
	const op = "create event"
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(e).Error; err != nil {
			return err
		}
		return addParticipants(tx, e.ID, participantIDs)
	})
	if err != nil {
		return translate(op, err)
	}
	loaded, err := s.GetEvent(ctx, e.ID)
	if err != nil {
		return err
	}
	*e = *loaded
	return nil
}

func addParticipants(tx *gorm.DB, eventID uuid.UUID, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]models.EventParticipant, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, models.EventParticipant{EventID: eventID, UserID: id})
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var e models.Event
	err := s.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("joined_at ASC, user_id") }).
		First(&e, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.NotFound("get event", "event %s not found", id)
	}
	if err != nil {
		return nil, translate("get event", err)
	}
	return &e, nil
}

// ListEventsForUser returns the events the user attends, most recent first.
func (s *Store) ListEventsForUser(ctx context.Context, userID uuid.UUID) ([]models.Event, error) {
	attending := s.db.Model(&models.EventParticipant{}).Select("event_id").Where("user_id = ?", userID)
	var events []models.Event
	err := s.db.WithContext(ctx).
		Preload("Participants").
		Where("id IN (?)", attending).
		Order("created_at DESC").
		Find(&events).Error
	if err != nil {
		return nil, translate("list events", err)
	}
	return events, nil
}

// AddEventParticipants adds attendees. Users already attending are ignored.
func (s *Store) AddEventParticipants(ctx context.Context, eventID uuid.UUID, userIDs []uuid.UUID) (*models.Event, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	if err := addParticipants(s.db.WithContext(ctx), eventID, userIDs); err != nil {
		return nil, translate("add event participants", err)
	}
	return s.GetEvent(ctx, eventID)
}
