package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AndrewCorlett/errolian-club-sub000/database"
	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
	"github.com/AndrewCorlett/errolian-club-sub000/metrics"
	"github.com/AndrewCorlett/errolian-club-sub000/models"
	"github.com/AndrewCorlett/errolian-club-sub000/store"
)

type notification struct {
	kind string
	to   uuid.UUID
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) add(kind string, to uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{kind: kind, to: to})
}

func (n *recordingNotifier) ExpenseAdded(_ *models.Expense, _ models.User, debtors []models.User) {
	for _, d := range debtors {
		n.add("expense_added", d.ID)
	}
}

func (n *recordingNotifier) SharePaid(_ *models.Expense, payer, _ models.User) {
	n.add("share_paid", payer.ID)
}

func (n *recordingNotifier) SettlementRecorded(_ *models.Settlement, _, to models.User) {
	n.add("settlement", to.ID)
}

func (n *recordingNotifier) MemberJoined(_ *models.Event, _, member models.User) {
	n.add("member_joined", member.ID)
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.kind == kind {
			c++
		}
	}
	return c
}

// memGuard is an in-process DuplicateGuard.
type memGuard struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  time.Time
}

func newMemGuard() *memGuard {
	return &memGuard{keys: map[string]time.Time{}, now: time.Now()}
}

func (g *memGuard) Claim(_ context.Context, key string, window time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if exp, ok := g.keys[key]; ok && g.now.Before(exp) {
		return false, nil
	}
	g.keys[key] = g.now.Add(window)
	return true, nil
}

func (g *memGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

func (g *memGuard) advance(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = g.now.Add(d)
}

type fixture struct {
	db          *gorm.DB
	store       *store.Store
	notifier    *recordingNotifier
	guard       *memGuard
	metrics     *metrics.Metrics
	activity    *ActivityService
	users       *UserService
	events      *EventService
	expenses    *ExpenseService
	balances    *BalanceService
	settlements *SettlementService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	f := &fixture{
		db:       db,
		store:    store.New(db),
		notifier: &recordingNotifier{},
		guard:    newMemGuard(),
		metrics:  metrics.New(),
	}
	f.activity = NewActivityService(f.store)
	f.users = NewUserService(f.store, "GBP")
	f.events = NewEventService(f.store, f.activity, f.notifier)
	f.expenses = NewExpenseService(f.store, f.activity, f.notifier, f.metrics, "GBP")
	f.balances = NewBalanceService(f.store, f.metrics, "GBP")
	f.settlements = NewSettlementService(f.store, f.activity, f.notifier, f.metrics, f.guard, time.Minute, "GBP")
	return f
}

func (f *fixture) member(t *testing.T, name string) ledger.Actor {
	t.Helper()
	u, err := f.users.Register(context.Background(), name, name+"@errolian.club", "secret-"+name)
	require.NoError(t, err)
	return u.Actor()
}

func (f *fixture) admin(t *testing.T, name string) ledger.Actor {
	t.Helper()
	a := f.member(t, name)
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", a.UserID).Update("role", ledger.RoleAdmin).Error)
	a.Role = ledger.RoleAdmin
	return a
}

func (f *fixture) equalExpense(t *testing.T, payer ledger.Actor, amount string, participants ...ledger.Actor) *models.Expense {
	t.Helper()
	ids := make([]uuid.UUID, len(participants))
	for i, p := range participants {
		ids[i] = p.UserID
	}
	e, err := f.expenses.CreateExpense(context.Background(), payer, CreateExpenseInput{
		Title:        "Expense",
		Amount:       decimal.RequireFromString(amount),
		Participants: ids,
	})
	require.NoError(t, err)
	return e
}

func shareTotal(e *models.Expense) decimal.Decimal {
	amounts := make([]decimal.Decimal, 0, len(e.Participants))
	for _, p := range e.Participants {
		amounts = append(amounts, p.ShareAmount)
	}
	return ledger.Sum(amounts...)
}

func (f *fixture) balance(t *testing.T, a ledger.Actor) *models.BalanceSummary {
	t.Helper()
	b, err := f.balances.GetBalances(context.Background(), a.UserID, nil)
	require.NoError(t, err)
	return b
}
