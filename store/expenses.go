package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
	"github.com/AndrewCorlett/errolian-club-sub000/models"
)

// ExpenseFilter narrows expense listings. A nil field does not filter.
type ExpenseFilter struct {
	EventID *uuid.UUID
	// UserID matches expenses the user paid or has a share in.
	UserID *uuid.UUID
	Page
}

func (s *Store) applyExpenseFilter(db *gorm.DB, f ExpenseFilter) *gorm.DB {
	if f.EventID != nil {
		db = db.Where("event_id = ?", *f.EventID)
	}
	if f.UserID != nil {
		shares := s.db.Model(&models.ExpenseParticipant{}).Select("expense_id").Where("user_id = ?", *f.UserID)
		db = db.Where("(paid_by = ? OR id IN (?))", *f.UserID, shares)
	}
	return db
}

func preloadParticipants(db *gorm.DB) *gorm.DB {
	return db.Preload("Participants", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func checkShares(op string, amount decimal.Decimal, parts []models.ExpenseParticipant) error {
	if len(parts) == 0 {
		return ledger.Validation(op, "at least one participant is required")
	}
	seen := make(map[uuid.UUID]bool, len(parts))
	total := decimal.Zero
	for _, p := range parts {
		if seen[p.UserID] {
			return ledger.Validation(op, "duplicate participant %s", p.UserID)
		}
		seen[p.UserID] = true
		if p.ShareAmount.IsNegative() {
			return ledger.Validation(op, "share amounts must not be negative")
		}
		total = total.Add(p.ShareAmount)
	}
	if !total.Equal(amount) {
		return ledger.Validation(op, "shares do not sum to total")
	}
	return nil
}

func bindParticipants(expenseID uuid.UUID, parts []models.ExpenseParticipant) {
	for i := range parts {
		parts[i].ExpenseID = expenseID
		parts[i].Position = i
	}
}

// CreateExpense persists an expense together with its participant rows. An
// expense is never left behind without participants.
func (s *Store) CreateExpense(ctx context.Context, e *models.Expense, parts []models.ExpenseParticipant) error {
	const op = "create expense"
	if !e.Amount.IsPositive() {
		return ledger.Validation(op, "amount must be greater than zero")
	}
	if err := checkShares(op, e.Amount, parts); err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	bindParticipants(e.ID, parts)

	if !s.atomic {
		if err := s.createCompensating(ctx, e, parts); err != nil {
			return err
		}
		e.Participants = parts
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(e).Error; err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		if err := tx.Create(&parts).Error; err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}
		return nil
	})
	if err != nil {
		return translate(op, err)
	}
	e.Participants = parts
	return nil
}

func (s *Store) createCompensating(ctx context.Context, e *models.Expense, parts []models.ExpenseParticipant) error {
	const op = "create expense"
	db := s.db.WithContext(ctx)

	if err := db.Omit(clause.Associations).Create(e).Error; err != nil {
		return translate(op, fmt.Errorf("insert expense: %w", err))
	}

	insertErr := db.Create(&parts).Error
	if insertErr == nil {
		return nil
	}
	insertErr = fmt.Errorf("insert participants: %w", insertErr)

	// Compensate: remove whatever was written for this expense.
	var compensateErrs []error
	if err := db.Where("expense_id = ?", e.ID).Delete(&models.ExpenseParticipant{}).Error; err != nil {
		compensateErrs = append(compensateErrs, fmt.Errorf("compensating delete of participants: %w", err))
	}
	if err := db.Where("id = ?", e.ID).Delete(&models.Expense{}).Error; err != nil {
		compensateErrs = append(compensateErrs, fmt.Errorf("compensating delete of expense %s: %w", e.ID, err))
	}
	if len(compensateErrs) > 0 {
		return ledger.Storage(op, errors.Join(append([]error{insertErr}, compensateErrs...)...))
	}
	return ledger.Storage(op, insertErr)
}

// GetExpense loads an expense with its participants in allocation order.
func (s *Store) GetExpense(ctx context.Context, id uuid.UUID) (*models.Expense, error) {
	var e models.Expense
	err := preloadParticipants(s.db.WithContext(ctx)).First(&e, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.NotFound("get expense", "expense %s not found", id)
	}
	if err != nil {
		return nil, translate("get expense", err)
	}
	return &e, nil
}

// ListExpenses returns one page of expenses, newest first, and the total
// number of matching expenses.
func (s *Store) ListExpenses(ctx context.Context, f ExpenseFilter) ([]models.Expense, int64, error) {
	const op = "list expenses"
	db := s.db.WithContext(ctx)

	var total int64
	if err := s.applyExpenseFilter(db.Model(&models.Expense{}), f).Count(&total).Error; err != nil {
		return nil, 0, translate(op, err)
	}

	var expenses []models.Expense
	q := s.applyExpenseFilter(preloadParticipants(db), f).Order("created_at DESC, id")
	if err := f.Page.apply(q).Find(&expenses).Error; err != nil {
		return nil, 0, translate(op, err)
	}
	return expenses, total, nil
}

// ListAllExpenses returns every matching expense, oldest first, ignoring
// paging. Balance computation reads through this.
func (s *Store) ListAllExpenses(ctx context.Context, f ExpenseFilter) ([]models.Expense, error) {
	var expenses []models.Expense
	q := s.applyExpenseFilter(preloadParticipants(s.db.WithContext(ctx)), f).Order("created_at ASC, id")
	if err := q.Find(&expenses).Error; err != nil {
		return nil, translate("list all expenses", err)
	}
	return expenses, nil
}

// ExpenseUpdate is a partial update. Nil fields are left unchanged. When
// Participants is non-nil the share rows are replaced and must add up to the
// (possibly new) amount.
type ExpenseUpdate struct {
	Title        *string
	Amount       *decimal.Decimal
	Currency     *string
	Category     *string
	Notes        *string
	Status       *models.ExpenseStatus
	SplitMode    *ledger.SplitMode
	Participants []models.ExpenseParticipant
}

// UpdateExpense applies u to the expense and returns the stored result.
func (s *Store) UpdateExpense(ctx context.Context, id uuid.UUID, u ExpenseUpdate) (*models.Expense, error) {
	const op = "update expense"

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Expense
		if err := preloadParticipants(tx).First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledger.NotFound(op, "expense %s not found", id)
			}
			return err
		}

		updates := map[string]any{}
		if u.Title != nil {
			updates["title"] = *u.Title
		}
		if u.Currency != nil {
			updates["currency"] = *u.Currency
		}
		if u.Category != nil {
			updates["category"] = *u.Category
		}
		if u.Notes != nil {
			updates["notes"] = *u.Notes
		}
		if u.Status != nil {
			updates["status"] = *u.Status
		}
		if u.SplitMode != nil {
			updates["split_mode"] = *u.SplitMode
		}

		amount := current.Amount
		if u.Amount != nil {
			if !u.Amount.IsPositive() {
				return ledger.Validation(op, "amount must be greater than zero")
			}
			amount = *u.Amount
			updates["amount"] = amount
		}
		if u.Participants == nil && !amount.Equal(current.Amount) {
			return ledger.Validation(op, "changing the amount requires new shares")
		}

		if len(updates) > 0 {
			if err := tx.Model(&models.Expense{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return err
			}
		}

		if u.Participants != nil {
			if err := checkShares(op, amount, u.Participants); err != nil {
				return err
			}
			bindParticipants(id, u.Participants)
			if err := tx.Where("expense_id = ?", id).Delete(&models.ExpenseParticipant{}).Error; err != nil {
				return err
			}
			if err := tx.Create(&u.Participants).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, translate(op, err)
	}
	return s.GetExpense(ctx, id)
}

// SetExpenseStatus changes only the status column.
func (s *Store) SetExpenseStatus(ctx context.Context, id uuid.UUID, status models.ExpenseStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Expense{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return translate("set expense status", res.Error)
	}
	if res.RowsAffected == 0 {
		return ledger.NotFound("set expense status", "expense %s not found", id)
	}
	return nil
}

// DeleteExpense removes an expense and all of its participant rows.
func (s *Store) DeleteExpense(ctx context.Context, id uuid.UUID) error {
	const op = "delete expense"
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("expense_id = ?", id).Delete(&models.ExpenseParticipant{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Expense{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ledger.NotFound(op, "expense %s not found", id)
		}
		return nil
	})
	return translate(op, err)
}
