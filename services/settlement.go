package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
	"github.com/AndrewCorlett/errolian-club-sub000/metrics"
	"github.com/AndrewCorlett/errolian-club-sub000/models"
	"github.com/AndrewCorlett/errolian-club-sub000/store"
)

// DuplicateGuard remembers recently recorded settlements so an accidental
// double submit is rejected.
type DuplicateGuard interface {
	// Claim reports false when key was already claimed within window.
	Claim(ctx context.Context, key string, window time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisDuplicateGuard claims keys with SET NX and a TTL.
type RedisDuplicateGuard struct {
	client *redis.Client
	prefix string
}

func NewRedisDuplicateGuard(client *redis.Client) *RedisDuplicateGuard {
	return &RedisDuplicateGuard{client: client, prefix: "settlement:dedup:"}
}

func (g *RedisDuplicateGuard) Claim(ctx context.Context, key string, window time.Duration) (bool, error) {
	return g.client.SetNX(ctx, g.prefix+key, time.Now().Unix(), window).Result()
}

func (g *RedisDuplicateGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, g.prefix+key).Err()
}

// SettlementService records payments members make to each other outside the
// app. Settlements are informational: they never mark expense shares paid.
type SettlementService struct {
	store    *store.Store
	activity *ActivityService
	notifier Notifier
	metrics  *metrics.Metrics
	guard    DuplicateGuard
	window   time.Duration
	currency string
	now      func() time.Time
}

// NewSettlementService builds the service. guard may be nil, which disables
// duplicate detection.
func NewSettlementService(st *store.Store, activity *ActivityService, notifier Notifier, m *metrics.Metrics, guard DuplicateGuard, window time.Duration, defaultCurrency string) *SettlementService {
	return &SettlementService{
		store:    st,
		activity: activity,
		notifier: notifier,
		metrics:  m,
		guard:    guard,
		window:   window,
		currency: defaultCurrency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CreateSettlementInput struct {
	FromUserID uuid.UUID // defaults to the actor
	ToUserID   uuid.UUID
	Amount     decimal.Decimal
	Currency   string
	EventID    *uuid.UUID
	Notes      string
}

func (s *SettlementService) Create(ctx context.Context, actor ledger.Actor, in CreateSettlementInput) (*models.Settlement, error) {
	const op = "create settlement"
	from := in.FromUserID
	if from == uuid.Nil {
		from = actor.UserID
	}
	if !in.Amount.IsPositive() {
		return nil, ledger.Validation(op, "amount must be greater than zero")
	}
	if !ledger.HasAtMostTwoDecimals(in.Amount) {
		return nil, ledger.Validation(op, "amount must have at most two decimal places")
	}
	if from == in.ToUserID {
		return nil, ledger.Validation(op, "cannot settle with yourself")
	}
	if !actor.Privileged() && actor.UserID != from && actor.UserID != in.ToUserID {
		return nil, ledger.Forbidden(op, "you can only record settlements you are part of")
	}

	users, err := requireUsers(ctx, s.store, op, []uuid.UUID{from, in.ToUserID})
	if err != nil {
		return nil, err
	}
	if in.EventID != nil {
		if _, err := s.store.GetEvent(ctx, *in.EventID); err != nil {
			return nil, err
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.currency
	}
	key := fmt.Sprintf("%s:%s:%s:%s", from, in.ToUserID, in.Amount.StringFixed(2), currency)
	claimed, err := s.claim(ctx, key)
	if err != nil {
		return nil, err
	}

	settlement := &models.Settlement{
		FromUserID: from,
		ToUserID:   in.ToUserID,
		Amount:     in.Amount,
		Currency:   currency,
		EventID:    in.EventID,
		Notes:      in.Notes,
		CreatedBy:  actor.UserID,
	}
	if err := s.store.CreateSettlement(ctx, settlement); err != nil {
		if claimed {
			if relErr := s.guard.Release(ctx, key); relErr != nil {
				slog.Warn("Failed to release settlement guard", "key", key, "error", relErr)
			}
		}
		return nil, err
	}
	s.metrics.SettlementsCreated.Inc()

	payer, payee := users[from], users[in.ToUserID]
	s.activity.record(ctx, models.Activity{
		EventID:     settlement.EventID,
		UserID:      actor.UserID,
		Type:        models.ActivitySettlementCreated,
		ReferenceID: settlement.ID,
		Description: fmt.Sprintf("%s paid %s %s %s", payer.Name, payee.Name, currency, in.Amount.StringFixed(2)),
	})
	s.notifier.SettlementRecorded(settlement, payer, payee)
	return settlement, nil
}

// claim consults the duplicate guard. A guard outage is logged and the
// settlement goes through unguarded.
func (s *SettlementService) claim(ctx context.Context, key string) (bool, error) {
	if s.guard == nil || s.window <= 0 {
		return false, nil
	}
	ok, err := s.guard.Claim(ctx, key, s.window)
	if err != nil {
		slog.Warn("Settlement duplicate guard unavailable", "error", err)
		return false, nil
	}
	if !ok {
		s.metrics.DuplicatesRejected.Inc()
		return false, ledger.Conflict("create settlement", "an identical settlement was recorded in the last %s", s.window)
	}
	return true, nil
}

// MarkSettled confirms a settlement. Either party or an admin may do this,
// once.
func (s *SettlementService) MarkSettled(ctx context.Context, actor ledger.Actor, id uuid.UUID) (*models.Settlement, error) {
	const op = "mark settlement settled"
	settlement, err := s.store.GetSettlement(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Privileged() && actor.UserID != settlement.FromUserID && actor.UserID != settlement.ToUserID {
		return nil, ledger.Forbidden(op, "only the two parties can confirm this settlement")
	}
	settlement, err = s.store.MarkSettled(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	s.metrics.SettlementsSettled.Inc()

	s.activity.record(ctx, models.Activity{
		EventID:     settlement.EventID,
		UserID:      actor.UserID,
		Type:        models.ActivitySettlementSettled,
		ReferenceID: settlement.ID,
		Description: fmt.Sprintf("Settlement of %s %s confirmed", settlement.Currency, settlement.Amount.StringFixed(2)),
	})
	return settlement, nil
}

type SettlementQuery struct {
	UserID  *uuid.UUID // admins only; others always see their own
	EventID *uuid.UUID
	Settled *bool
	Page    store.Page
}

func (s *SettlementService) List(ctx context.Context, actor ledger.Actor, q SettlementQuery) ([]models.Settlement, int64, error) {
	filter := store.SettlementFilter{EventID: q.EventID, Settled: q.Settled, Page: q.Page}
	switch {
	case actor.Privileged() && q.UserID != nil:
		filter.UserID = q.UserID
	case actor.Privileged() && q.EventID != nil:
		// every settlement in the event
	default:
		filter.UserID = &actor.UserID
	}
	return s.store.ListSettlements(ctx, filter)
}
