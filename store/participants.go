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

// MarkParticipantPaid moves a share from unpaid to paid. The update is
// conditional on is_paid being false, so two concurrent calls cannot both
// succeed.
func (s *Store) MarkParticipantPaid(ctx context.Context, expenseID, userID uuid.UUID, at time.Time) error {
	const op = "mark share paid"
	res := s.db.WithContext(ctx).Model(&models.ExpenseParticipant{}).
		Where("expense_id = ? AND user_id = ? AND is_paid = ?", expenseID, userID, false).
		Updates(map[string]any{"is_paid": true, "paid_at": at})
	if res.Error != nil {
		return translate(op, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var p models.ExpenseParticipant
	err := s.db.WithContext(ctx).First(&p, "expense_id = ? AND user_id = ?", expenseID, userID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ledger.NotFound(op, "user %s has no share in expense %s", userID, expenseID)
	case err != nil:
		return translate(op, err)
	default:
		return ledger.InvalidState(op, "share of user %s is already paid", userID)
	}
}
