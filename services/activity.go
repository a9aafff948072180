package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
	"github.com/AndrewCorlett/errolian-club-sub000/models"
	"github.com/AndrewCorlett/errolian-club-sub000/store"
)

// ActivityService serves the activity feed and records entries on behalf of
// the other services. A failed write is logged and never fails the
// operation that caused it.
type ActivityService struct {
	store *store.Store
}

func NewActivityService(st *store.Store) *ActivityService {
	return &ActivityService{store: st}
}

func (s *ActivityService) record(ctx context.Context, a models.Activity) {
	if err := s.store.RecordActivity(ctx, &a); err != nil {
		slog.Warn("Failed to record activity", "type", a.Type, "reference_id", a.ReferenceID, "error", err)
	}
}

// Feed returns the actor's own activity plus everything in events they
// attend, newest first.
func (s *ActivityService) Feed(ctx context.Context, actor ledger.Actor, page store.Page) ([]models.Activity, error) {
	return s.store.ListActivities(ctx, store.ActivityFilter{UserID: &actor.UserID, Page: page})
}

// EventFeed returns the activity of one event. Only attendees and admins
// may read it.
func (s *ActivityService) EventFeed(ctx context.Context, actor ledger.Actor, eventID uuid.UUID, page store.Page) ([]models.Activity, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !actor.Privileged() && !event.HasParticipant(actor.UserID) {
		return nil, ledger.Forbidden("event activity", "you are not attending this event")
	}
	return s.store.ListActivities(ctx, store.ActivityFilter{EventID: &eventID, Page: page})
}
