package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
	"github.com/AndrewCorlett/errolian-club-sub000/models"
)

type SettlementFilter struct {
	// UserID matches settlements where the user is either side.
	UserID  *uuid.UUID
	EventID *uuid.UUID
	Settled *bool
	Page
}

func (s *Store) CreateSettlement(ctx context.Context, st *models.Settlement) error {
	const op = "create settlement"
	if st.FromUserID == st.ToUserID {
		return ledger.Validation(op, "cannot settle with yourself")
	}
	if !st.Amount.IsPositive() {
		return ledger.Validation(op, "amount must be greater than zero")
	}
	return translate(op, s.db.WithContext(ctx).Create(st).Error)
}

func (s *Store) GetSettlement(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	var st models.Settlement
	err := s.db.WithContext(ctx).First(&st, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.NotFound("get settlement", "settlement %s not found", id)
	}
	if err != nil {
		return nil, translate("get settlement", err)
	}
	return &st, nil
}

// MarkSettled flips is_settled exactly once. A second call fails with an
// InvalidState error rather than moving settled_at.
func (s *Store) MarkSettled(ctx context.Context, id uuid.UUID, at time.Time) (*models.Settlement, error) {
	const op = "mark settlement settled"
	res := s.db.WithContext(ctx).Model(&models.Settlement{}).
		Where("id = ? AND is_settled = ?", id, false).
		Updates(map[string]any{"is_settled": true, "settled_at": at})
	if res.Error != nil {
		return nil, translate(op, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetSettlement(ctx, id); err != nil {
			return nil, err
		}
		return nil, ledger.InvalidState(op, "settlement %s is already settled", id)
	}
	return s.GetSettlement(ctx, id)
}

func (s *Store) ListSettlements(ctx context.Context, f SettlementFilter) ([]models.Settlement, int64, error) {
	const op = "list settlements"
	q := s.db.WithContext(ctx).Model(&models.Settlement{})
	if f.UserID != nil {
		q = q.Where("(from_user_id = ? OR to_user_id = ?)", *f.UserID, *f.UserID)
	}
	if f.EventID != nil {
		q = q.Where("event_id = ?", *f.EventID)
	}
	if f.Settled != nil {
		q = q.Where("is_settled = ?", *f.Settled)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(op, err)
	}
	var settlements []models.Settlement
	if err := f.Page.apply(q.Order("created_at DESC, id")).Find(&settlements).Error; err != nil {
		return nil, 0, translate(op, err)
	}
	return settlements, total, nil
}

// ListAllSettlements returns every settlement involving userID, optionally
// restricted to one event. Balance layering reads through this.
func (s *Store) ListAllSettlements(ctx context.Context, userID uuid.UUID, eventID *uuid.UUID) ([]models.Settlement, error) {
	q := s.db.WithContext(ctx).Where("(from_user_id = ? OR to_user_id = ?)", userID, userID)
	if eventID != nil {
		q = q.Where("event_id = ?", *eventID)
	}
	var settlements []models.Settlement
	if err := q.Order("created_at ASC, id").Find(&settlements).Error; err != nil {
		return nil, translate("list all settlements", err)
	}
	return settlements, nil
}
