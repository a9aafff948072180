package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AndrewCorlett/errolian-club-sub000/database"
	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
	"github.com/AndrewCorlett/errolian-club-sub000/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedUsers(t *testing.T, s *Store, names ...string) []models.User {
	t.Helper()
	users := make([]models.User, 0, len(names))
	for _, name := range names {
		u := models.User{Name: name, Email: name + "@example.com", PasswordHash: "x", Active: true, Currency: "GBP"}
		require.NoError(t, s.CreateUser(context.Background(), &u))
		users = append(users, u)
	}
	return users
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func shares(users []models.User, amounts ...string) []models.ExpenseParticipant {
	parts := make([]models.ExpenseParticipant, len(amounts))
	for i, a := range amounts {
		parts[i] = models.ExpenseParticipant{UserID: users[i].ID, ShareAmount: dec(a)}
	}
	return parts
}

func shareTotal(e *models.Expense) decimal.Decimal {
	amounts := make([]decimal.Decimal, 0, len(e.Participants))
	for _, p := range e.Participants {
		amounts = append(amounts, p.ShareAmount)
	}
	return ledger.Sum(amounts...)
}

func newExpense(payer uuid.UUID, amount string) *models.Expense {
	return &models.Expense{
		Title:     "Dinner",
		Amount:    dec(amount),
		Currency:  "GBP",
		PaidBy:    payer,
		Status:    models.ExpensePending,
		SplitMode: ledger.SplitEqual,
		CreatedBy: payer,
	}
}

func TestCreateAndGetExpense(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t))
	users := seedUsers(t, s, "alice", "bob", "carol")

	e := newExpense(users[0].ID, "10.00")
	require.NoError(t, s.CreateExpense(ctx, e, shares(users, "3.34", "3.33", "3.33")))

	got, err := s.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dinner", got.Title)
	assert.True(t, dec("10.00").Equal(got.Amount))
	require.Len(t, got.Participants, 3)
	for i, p := range got.Participants {
		assert.Equal(t, users[i].ID, p.UserID, "participants keep allocation order")
		assert.False(t, p.IsPaid)
	}
	assert.True(t, dec("10.00").Equal(shareTotal(got)))
}

func TestCreateExpenseRejectsMismatchedShares(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := New(db)
	users := seedUsers(t, s, "alice", "bob")

	err := s.CreateExpense(ctx, newExpense(users[0].ID, "10.00"), shares(users, "5.00", "4.00"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrValidation))
	assert.Contains(t, err.Error(), "shares do not sum to total")

	err = s.CreateExpense(ctx, newExpense(users[0].ID, "10.00"), shares(users, "5.00", "4.99"))
	assert.ErrorIs(t, err, ledger.ErrValidation, "stored shares must add up exactly")

	var count int64
	require.NoError(t, db.Model(&models.Expense{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateExpenseCompensatesWithoutTransactions(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := New(db, WithoutTransactions())
	users := seedUsers(t, s, "alice", "bob")

	err := db.Callback().Create().Before("gorm:create").Register("test:fail_participants", func(tx *gorm.DB) {
		if tx.Statement.Table == "expense_participants" {
			_ = tx.AddError(errors.New("disk full"))
		}
	})
	require.NoError(t, err)

	e := newExpense(users[0].ID, "20.00")
	err = s.CreateExpense(ctx, e, shares(users, "10.00", "10.00"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrStorage))
	assert.True(t, ledger.IsRetryable(err))
	assert.Contains(t, err.Error(), "disk full")

	_, err = s.GetExpense(ctx, e.ID)
	assert.True(t, errors.Is(err, ledger.ErrNotFound), "header must be removed after a failed participant insert")
}

func TestCreateExpenseReportsFailedCompensation(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := New(db, WithoutTransactions())
	users := seedUsers(t, s, "alice", "bob")

	err := db.Callback().Create().Before("gorm:create").Register("test:fail_participants", func(tx *gorm.DB) {
		if tx.Statement.Table == "expense_participants" {
			_ = tx.AddError(errors.New("disk full"))
		}
	})
	require.NoError(t, err)
	err = db.Callback().Delete().Before("gorm:delete").Register("test:fail_cleanup", func(tx *gorm.DB) {
		if tx.Statement.Table == "expense_participants" {
			_ = tx.AddError(errors.New("lock timeout"))
		}
	})
	require.NoError(t, err)

	e := newExpense(users[0].ID, "20.00")
	err = s.CreateExpense(ctx, e, shares(users, "10.00", "10.00"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrStorage)
	assert.True(t, ledger.IsRetryable(err))
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "lock timeout")
	assert.Contains(t, err.Error(), "compensating delete of participants")

	_, err = s.GetExpense(ctx, e.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound, "the header delete still runs after the participant delete fails")
}

func TestCreateExpenseTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := New(db)
	users := seedUsers(t, s, "alice", "bob")

	err := db.Callback().Create().Before("gorm:create").Register("test:fail_participants", func(tx *gorm.DB) {
		if tx.Statement.Table == "expense_participants" {
			_ = tx.AddError(errors.New("connection reset"))
		}
	})
	require.NoError(t, err)

	e := newExpense(users[0].ID, "20.00")
	err = s.CreateExpense(ctx, e, shares(users, "10.00", "10.00"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrStorage))

	var count int64
	require.NoError(t, db.Model(&models.Expense{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListExpensesByParticipant(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t))
	users := seedUsers(t, s, "alice", "bob", "carol")
	alice, bob, carol := users[0], users[1], users[2]

	// alice pays, bob shares
	require.NoError(t, s.CreateExpense(ctx, newExpense(alice.ID, "10.00"), shares([]models.User{alice, bob}, "5.00", "5.00")))
	// carol pays, alice shares
	require.NoError(t, s.CreateExpense(ctx, newExpense(carol.ID, "6.00"), shares([]models.User{carol, alice}, "3.00", "3.00")))
	// carol pays, bob shares
	require.NoError(t, s.CreateExpense(ctx, newExpense(carol.ID, "4.00"), shares([]models.User{carol, bob}, "2.00", "2.00")))

	all, err := s.ListAllExpenses(ctx, ExpenseFilter{UserID: &alice.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	page, total, err := s.ListExpenses(ctx, ExpenseFilter{UserID: &bob.ID, Page: Page{Page: 1, Limit: 1}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, page, 1)
	assert.Len(t, page[0].Participants, 2)
}

func TestListExpensesByEvent(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t))
	users := seedUsers(t, s, "alice", "bob")

	ev := &models.Event{Title: "Skye", CreatedBy: users[0].ID}
	require.NoError(t, s.CreateEvent(ctx, ev, []uuid.UUID{users[0].ID, users[1].ID}))

	inEvent := newExpense(users[0].ID, "8.00")
	inEvent.EventID = &ev.ID
	require.NoError(t, s.CreateExpense(ctx, inEvent, shares(users, "4.00", "4.00")))
	require.NoError(t, s.CreateExpense(ctx, newExpense(users[0].ID, "2.00"), shares(users, "1.00", "1.00")))

	got, err := s.ListAllExpenses(ctx, ExpenseFilter{EventID: &ev.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inEvent.ID, got[0].ID)
}

func TestUpdateExpense(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t))
	users := seedUsers(t, s, "alice", "bob")
	e := newExpense(users[0].ID, "10.00")
	require.NoError(t, s.CreateExpense(ctx, e, shares(users, "5.00", "5.00")))

	t.Run("metadata only", func(t *testing.T) {
		title := "Fuel"
		got, err := s.UpdateExpense(ctx, e.ID, ExpenseUpdate{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "Fuel", got.Title)
		assert.Len(t, got.Participants, 2)
	})

	t.Run("amount without shares", func(t *testing.T) {
		amount := dec("12.00")
		_, err := s.UpdateExpense(ctx, e.ID, ExpenseUpdate{Amount: &amount})
		assert.True(t, errors.Is(err, ledger.ErrValidation))
	})

	t.Run("amount with new shares", func(t *testing.T) {
		amount := dec("12.00")
		got, err := s.UpdateExpense(ctx, e.ID, ExpenseUpdate{Amount: &amount, Participants: shares(users, "6.00", "6.00")})
		require.NoError(t, err)
		assert.True(t, amount.Equal(got.Amount))
		assert.True(t, amount.Equal(shareTotal(got)))
	})

	t.Run("missing expense", func(t *testing.T) {
		title := "x"
		_, err := s.UpdateExpense(ctx, uuid.New(), ExpenseUpdate{Title: &title})
		assert.True(t, errors.Is(err, ledger.ErrNotFound))
	})
}

func TestDeleteExpenseCascades(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	s := New(db)
	users := seedUsers(t, s, "alice", "bob")
	e := newExpense(users[0].ID, "10.00")
	require.NoError(t, s.CreateExpense(ctx, e, shares(users, "5.00", "5.00")))

	require.NoError(t, s.DeleteExpense(ctx, e.ID))

	var count int64
	require.NoError(t, db.Model(&models.ExpenseParticipant{}).Where("expense_id = ?", e.ID).Count(&count).Error)
	assert.Zero(t, count)

	err := s.DeleteExpense(ctx, e.ID)
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

// Once the only debtor pays, the expense no longer contributes to balances.
func TestMarkParticipantPaidOnce(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t))
	users := seedUsers(t, s, "alice", "bob")
	alice, bob := users[0], users[1]
	e := newExpense(alice.ID, "30.00")
	require.NoError(t, s.CreateExpense(ctx, e, shares(users, "15.00", "15.00")))

	now := time.Now().UTC()
	require.NoError(t, s.MarkParticipantPaid(ctx, e.ID, bob.ID, now))

	got, err := s.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	p := got.Participant(bob.ID)
	require.NotNil(t, p)
	assert.True(t, p.IsPaid)
	require.NotNil(t, p.PaidAt)
	assert.False(t, got.OutstandingShares())

	report := ledger.ComputeBalances([]ledger.ExpenseEntry{got.LedgerEntry()}, ledger.Scope{})
	assert.Empty(t, report.Balances)

	err = s.MarkParticipantPaid(ctx, e.ID, bob.ID, now)
	assert.True(t, errors.Is(err, ledger.ErrInvalidState))
	assert.True(t, errors.Is(err, ledger.ErrConflict))

	err = s.MarkParticipantPaid(ctx, e.ID, uuid.New(), now)
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

func TestSettlements(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t))
	users := seedUsers(t, s, "alice", "bob", "carol")
	alice, bob, carol := users[0], users[1], users[2]

	st := &models.Settlement{FromUserID: bob.ID, ToUserID: alice.ID, Amount: dec("5.00"), Currency: "GBP", CreatedBy: bob.ID}
	require.NoError(t, s.CreateSettlement(ctx, st))
	other := &models.Settlement{FromUserID: carol.ID, ToUserID: bob.ID, Amount: dec("2.50"), Currency: "GBP", CreatedBy: carol.ID}
	require.NoError(t, s.CreateSettlement(ctx, other))

	err := s.CreateSettlement(ctx, &models.Settlement{FromUserID: bob.ID, ToUserID: bob.ID, Amount: dec("1"), Currency: "GBP"})
	assert.True(t, errors.Is(err, ledger.ErrValidation))

	mine, total, err := s.ListSettlements(ctx, SettlementFilter{UserID: &alice.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, mine, 1)
	assert.Equal(t, st.ID, mine[0].ID)

	settled, err := s.MarkSettled(ctx, st.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, settled.IsSettled)
	require.NotNil(t, settled.SettledAt)

	_, err = s.MarkSettled(ctx, st.ID, time.Now())
	assert.True(t, errors.Is(err, ledger.ErrInvalidState))

	_, err = s.MarkSettled(ctx, uuid.New(), time.Now())
	assert.True(t, errors.Is(err, ledger.ErrNotFound))

	open := false
	pending, _, err := s.ListSettlements(ctx, SettlementFilter{UserID: &bob.ID, Settled: &open})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, other.ID, pending[0].ID)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t))
	users := seedUsers(t, s, "alice")

	dup := models.User{Name: "Alice", Email: "ALICE@example.com", PasswordHash: "x", Active: true}
	err := s.CreateUser(ctx, &dup)
	assert.True(t, errors.Is(err, ledger.ErrConflict))

	got, err := s.GetUserByEmail(ctx, " Alice@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, users[0].ID, got.ID)
	assert.Equal(t, ledger.RoleMember, got.Role)

	name := "Alice Smith"
	updated, err := s.UpdateUser(ctx, got.ID, UserUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", updated.Name)

	byID, err := s.GetUsers(ctx, []uuid.UUID{got.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, byID, 1)
}

func TestEventsAndActivity(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t))
	users := seedUsers(t, s, "alice", "bob", "carol")
	alice, bob, carol := users[0], users[1], users[2]

	ev := &models.Event{Title: "Ben Nevis", CreatedBy: alice.ID}
	require.NoError(t, s.CreateEvent(ctx, ev, []uuid.UUID{alice.ID, bob.ID}))
	assert.Len(t, ev.Participants, 2)

	ev, err := s.AddEventParticipants(ctx, ev.ID, []uuid.UUID{bob.ID, carol.ID})
	require.NoError(t, err)
	assert.Len(t, ev.Participants, 3)
	assert.True(t, ev.HasParticipant(carol.ID))

	events, err := s.ListEventsForUser(ctx, carol.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)

	_, err = s.AddEventParticipants(ctx, uuid.New(), []uuid.UUID{carol.ID})
	assert.True(t, errors.Is(err, ledger.ErrNotFound))

	require.NoError(t, s.RecordActivity(ctx, &models.Activity{EventID: &ev.ID, UserID: alice.ID, Type: models.ActivityEventCreated, ReferenceID: ev.ID, Description: "created"}))
	require.NoError(t, s.RecordActivity(ctx, &models.Activity{UserID: bob.ID, Type: models.ActivitySettlementCreated, ReferenceID: uuid.New(), Description: "paid"}))

	feed, err := s.ListActivities(ctx, ActivityFilter{UserID: &carol.ID})
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "Ben Nevis", feed[0].EventTitle)

	feed, err = s.ListActivities(ctx, ActivityFilter{UserID: &bob.ID})
	require.NoError(t, err)
	assert.Len(t, feed, 2)
}
