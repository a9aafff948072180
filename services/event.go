package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
	"github.com/AndrewCorlett/errolian-club-sub000/models"
	"github.com/AndrewCorlett/errolian-club-sub000/store"
)

// EventService groups members and expenses under a trip or outing.
type EventService struct {
	store    *store.Store
	activity *ActivityService
	notifier Notifier
}

func NewEventService(st *store.Store, activity *ActivityService, notifier Notifier) *EventService {
	return &EventService{store: st, activity: activity, notifier: notifier}
}

type CreateEventInput struct {
	Title        string
	Description  string
	StartsAt     *time.Time
	EndsAt       *time.Time
	Participants []uuid.UUID
}

// Create stores a new event. The creator always attends.
func (s *EventService) Create(ctx context.Context, actor ledger.Actor, in CreateEventInput) (*models.Event, error) {
	const op = "create event"
	if actor.UserID == uuid.Nil {
		return nil, ledger.Forbidden(op, "no authenticated user")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ledger.Validation(op, "title is required")
	}
	if in.StartsAt != nil && in.EndsAt != nil && in.EndsAt.Before(*in.StartsAt) {
		return nil, ledger.Validation(op, "event cannot end before it starts")
	}

	ids := uniqueIDs(append([]uuid.UUID{actor.UserID}, in.Participants...))
	users, err := requireUsers(ctx, s.store, op, ids)
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		Title:       title,
		Description: in.Description,
		StartsAt:    in.StartsAt,
		EndsAt:      in.EndsAt,
		CreatedBy:   actor.UserID,
	}
	if err := s.store.CreateEvent(ctx, event, ids); err != nil {
		return nil, err
	}

	creator := users[actor.UserID]
	s.activity.record(ctx, models.Activity{
		EventID:     &event.ID,
		UserID:      actor.UserID,
		Type:        models.ActivityEventCreated,
		ReferenceID: event.ID,
		Description: fmt.Sprintf("%s created \"%s\"", creator.Name, event.Title),
	})
	for _, id := range ids[1:] {
		s.notifier.MemberJoined(event, creator, users[id])
	}
	return event, nil
}

func (s *EventService) Get(ctx context.Context, actor ledger.Actor, id uuid.UUID) (*models.Event, error) {
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Privileged() && !event.HasParticipant(actor.UserID) {
		return nil, ledger.Forbidden("get event", "you are not attending this event")
	}
	return event, nil
}

func (s *EventService) List(ctx context.Context, actor ledger.Actor) ([]models.Event, error) {
	return s.store.ListEventsForUser(ctx, actor.UserID)
}

// AddParticipants adds attendees. Only attendees and admins may add people.
func (s *EventService) AddParticipants(ctx context.Context, actor ledger.Actor, eventID uuid.UUID, userIDs []uuid.UUID) (*models.Event, error) {
	const op = "add event participants"
	if len(userIDs) == 0 {
		return nil, ledger.Validation(op, "at least one user is required")
	}
	event, err := s.Get(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}

	var added []uuid.UUID
	for _, id := range uniqueIDs(userIDs) {
		if !event.HasParticipant(id) {
			added = append(added, id)
		}
	}
	users, err := requireUsers(ctx, s.store, op, append(added, actor.UserID))
	if err != nil {
		return nil, err
	}
	if len(added) == 0 {
		return event, nil
	}

	event, err = s.store.AddEventParticipants(ctx, eventID, added)
	if err != nil {
		return nil, err
	}

	adder := users[actor.UserID]
	for _, id := range added {
		member := users[id]
		s.activity.record(ctx, models.Activity{
			EventID:     &event.ID,
			UserID:      actor.UserID,
			Type:        models.ActivityMemberJoined,
			ReferenceID: id,
			Description: fmt.Sprintf("%s added %s to \"%s\"", adder.Name, member.Name, event.Title),
		})
		s.notifier.MemberJoined(event, adder, member)
	}
	return event, nil
}

// requireUsers loads every id and fails with NotFound naming the first one
// that does not exist.
func requireUsers(ctx context.Context, st *store.Store, op string, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	users, err := st.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := users[id]; !ok {
			return nil, ledger.NotFound(op, "user %s not found", id)
		}
	}
	return users, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
