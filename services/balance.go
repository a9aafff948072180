package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
	"github.com/AndrewCorlett/errolian-club-sub000/metrics"
	"github.com/AndrewCorlett/errolian-club-sub000/models"
	"github.com/AndrewCorlett/errolian-club-sub000/store"
)

// BalanceService runs the balance engine over stored expenses and layers
// settled settlements on top of its output.
type BalanceService struct {
	store    *store.Store
	metrics  *metrics.Metrics
	currency string
}

func NewBalanceService(st *store.Store, m *metrics.Metrics, defaultCurrency string) *BalanceService {
	return &BalanceService{store: st, metrics: m, currency: defaultCurrency}
}

func (s *BalanceService) report(ctx context.Context, filter store.ExpenseFilter, scope ledger.Scope) (ledger.Report, []models.Expense, error) {
	start := time.Now()
	defer func() { s.metrics.BalanceDuration.Observe(time.Since(start).Seconds()) }()

	expenses, err := s.store.ListAllExpenses(ctx, filter)
	if err != nil {
		return ledger.Report{}, nil, err
	}
	entries := make([]ledger.ExpenseEntry, len(expenses))
	for i := range expenses {
		entries[i] = expenses[i].LedgerEntry()
	}
	return ledger.ComputeBalances(entries, scope), expenses, nil
}

// GetBalances returns what userID is owed and owes, globally or within one
// event. Owed, Owing and Net are the engine's numbers; SettledIn,
// SettledOut and AdjustedNet account for settlements marked settled.
func (s *BalanceService) GetBalances(ctx context.Context, userID uuid.UUID, eventID *uuid.UUID) (*models.BalanceSummary, error) {
	scope := ledger.Scope{EventID: eventID}
	if eventID != nil {
		if _, err := s.store.GetEvent(ctx, *eventID); err != nil {
			return nil, err
		}
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	report, _, err := s.report(ctx, store.ExpenseFilter{UserID: &userID, EventID: eventID}, scope)
	if err != nil {
		return nil, err
	}
	mine := report.ForUser(userID)
	owedToUser, owedByUser := report.DebtsOf(userID)

	settlements, err := s.store.ListAllSettlements(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	settledIn, settledOut := decimal.Zero, decimal.Zero
	for _, st := range settlements {
		if !st.IsSettled {
			continue
		}
		if st.ToUserID == userID {
			settledIn = settledIn.Add(st.Amount)
		} else {
			settledOut = settledOut.Add(st.Amount)
		}
	}

	currency := user.Currency
	if currency == "" {
		currency = s.currency
	}
	names, err := s.names(ctx, append(debtParties(owedToUser), debtParties(owedByUser)...))
	if err != nil {
		return nil, err
	}

	return &models.BalanceSummary{
		UserID:      userID,
		EventID:     eventID,
		Currency:    currency,
		Owed:        mine.OwedTo.StringFixed(2),
		Owing:       mine.OwedBy.StringFixed(2),
		Net:         mine.Net.StringFixed(2),
		SettledIn:   settledIn.StringFixed(2),
		SettledOut:  settledOut.StringFixed(2),
		AdjustedNet: mine.Net.Add(settledOut).Sub(settledIn).StringFixed(2),
		OwedToYou:   toBalances(owedToUser, names, currency),
		YouOwe:      toBalances(owedByUser, names, currency),
	}, nil
}

// EventBalances returns every attendee's position in one event together
// with pairwise debts and a minimal set of suggested payments.
func (s *BalanceService) EventBalances(ctx context.Context, actor ledger.Actor, eventID uuid.UUID) (*models.EventBalanceSummary, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !actor.Privileged() && !event.HasParticipant(actor.UserID) {
		return nil, ledger.Forbidden("event balances", "you are not attending this event")
	}

	report, expenses, err := s.report(ctx, store.ExpenseFilter{EventID: &eventID}, ledger.EventScope(eventID))
	if err != nil {
		return nil, err
	}

	totalSpent := decimal.Zero
	for _, e := range expenses {
		totalSpent = totalSpent.Add(e.Amount)
	}
	positions := report.Positions()
	ids := event.ParticipantIDs()
	for _, b := range positions {
		ids = append(ids, b.UserID)
	}
	names, err := s.names(ctx, ids)
	if err != nil {
		return nil, err
	}

	members := make([]models.MemberBalance, 0, len(positions))
	for _, b := range positions {
		members = append(members, models.MemberBalance{
			UserID: b.UserID,
			Name:   names[b.UserID],
			OwedTo: b.OwedTo.StringFixed(2),
			OwedBy: b.OwedBy.StringFixed(2),
			Net:    b.Net.StringFixed(2),
		})
	}

	return &models.EventBalanceSummary{
		EventID:     event.ID,
		EventTitle:  event.Title,
		Currency:    s.currency,
		Members:     members,
		Debts:       toBalances(report.Debts, names, s.currency),
		Suggestions: toBalances(ledger.SimplifyDebts(report.Balances), names, s.currency),
		TotalSpent:  totalSpent.StringFixed(2),
		TotalOwed:   report.TotalOwedTo.StringFixed(2),
	}, nil
}

// Suggestions proposes the fewest payments that clear outstanding balances.
// Without an event the whole club ledger is simplified and only payments
// involving userID are returned.
func (s *BalanceService) Suggestions(ctx context.Context, userID uuid.UUID, eventID *uuid.UUID) ([]models.Balance, error) {
	if eventID != nil {
		if _, err := s.store.GetEvent(ctx, *eventID); err != nil {
			return nil, err
		}
	}
	report, _, err := s.report(ctx, store.ExpenseFilter{EventID: eventID}, ledger.Scope{EventID: eventID})
	if err != nil {
		return nil, err
	}

	var mine []ledger.Debt
	for _, d := range ledger.SimplifyDebts(report.Balances) {
		if eventID != nil || d.From == userID || d.To == userID {
			mine = append(mine, d)
		}
	}
	names, err := s.names(ctx, debtParties(mine))
	if err != nil {
		return nil, err
	}
	return toBalances(mine, names, s.currency), nil
}

func (s *BalanceService) names(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	users, err := s.store.GetUsers(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(users))
	for id, u := range users {
		names[id] = u.Name
	}
	return names, nil
}

func debtParties(debts []ledger.Debt) []uuid.UUID {
	ids := make([]uuid.UUID, 0, 2*len(debts))
	for _, d := range debts {
		ids = append(ids, d.From, d.To)
	}
	return ids
}

func toBalances(debts []ledger.Debt, names map[uuid.UUID]string, currency string) []models.Balance {
	out := make([]models.Balance, 0, len(debts))
	for _, d := range debts {
		out = append(out, models.Balance{
			From:     d.From,
			FromName: names[d.From],
			To:       d.To,
			ToName:   names[d.To],
			Amount:   d.Amount.StringFixed(2),
			Currency: currency,
		})
	}
	return out
}
