package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/AndrewCorlett/errolian-club-sub000/models"
)

type ActivityFilter struct {
	EventID *uuid.UUID
	// UserID restricts the feed to activity the user can see: their own and
	// anything in events they attend.
	UserID *uuid.UUID
	Page
}

func (s *Store) RecordActivity(ctx context.Context, a *models.Activity) error {
	return translate("record activity", s.db.WithContext(ctx).Create(a).Error)
}

func (s *Store) ListActivities(ctx context.Context, f ActivityFilter) ([]models.Activity, error) {
	q := s.db.WithContext(ctx).Model(&models.Activity{})
	if f.EventID != nil {
		q = q.Where("event_id = ?", *f.EventID)
	}
	if f.UserID != nil {
		attending := s.db.Model(&models.EventParticipant{}).Select("event_id").Where("user_id = ?", *f.UserID)
		q = q.Where("(user_id = ? OR event_id IN (?))", *f.UserID, attending)
	}

	var activities []models.Activity
	if err := f.Page.apply(q.Order("created_at DESC")).Find(&activities).Error; err != nil {
		return nil, translate("list activities", err)
	}

	titles, err := s.eventTitles(ctx, activities)
	if err != nil {
		return nil, err
	}
	for i := range activities {
		if activities[i].EventID != nil {
			activities[i].EventTitle = titles[*activities[i].EventID]
		}
	}
	return activities, nil
}

func (s *Store) eventTitles(ctx context.Context, activities []models.Activity) (map[uuid.UUID]string, error) {
	seen := map[uuid.UUID]bool{}
	var ids []uuid.UUID
	for _, a := range activities {
		if a.EventID != nil && !seen[*a.EventID] {
			seen[*a.EventID] = true
			ids = append(ids, *a.EventID)
		}
	}
	titles := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return titles, nil
	}
	var events []models.Event
	if err := s.db.WithContext(ctx).Select("id", "title").Where("id IN ?", ids).Find(&events).Error; err != nil {
		return nil, translate("list activities", err)
	}
	for _, e := range events {
		titles[e.ID] = e.Title
	}
	return titles, nil
}
