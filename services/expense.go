package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
	"github.com/AndrewCorlett/errolian-club-sub000/metrics"
	"github.com/AndrewCorlett/errolian-club-sub000/models"
	"github.com/AndrewCorlett/errolian-club-sub000/store"
)

// ExpenseService records expenses, splits them among participants and
// tracks which shares have been paid.
type ExpenseService struct {
	store    *store.Store
	activity *ActivityService
	notifier Notifier
	metrics  *metrics.Metrics
	currency string
	now      func() time.Time
}

func NewExpenseService(st *store.Store, activity *ActivityService, notifier Notifier, m *metrics.Metrics, defaultCurrency string) *ExpenseService {
	return &ExpenseService{
		store:    st,
		activity: activity,
		notifier: notifier,
		metrics:  m,
		currency: defaultCurrency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SplitValue is a per-participant amount, percentage or weight depending on
// the split mode.
type SplitValue struct {
	UserID uuid.UUID
	Value  decimal.Decimal
}

type CreateExpenseInput struct {
	Title     string
	Amount    decimal.Decimal
	Currency  string
	Category  string
	Notes     string
	PaidBy    uuid.UUID // defaults to the actor
	EventID   *uuid.UUID
	Status    models.ExpenseStatus
	SplitMode ledger.SplitMode
	// Participants is used for equal splits. When empty and the expense
	// belongs to an event, everyone attending the event shares it.
	Participants []uuid.UUID
	// Splits is required for every other mode.
	Splits []SplitValue
}

func (s *ExpenseService) CreateExpense(ctx context.Context, actor ledger.Actor, in CreateExpenseInput) (*models.Expense, error) {
	expense, err := s.createExpense(ctx, actor, in)
	if err != nil {
		s.metrics.ExpenseFailures.WithLabelValues(ledger.KindOf(err).String()).Inc()
		return nil, err
	}
	s.metrics.ExpensesCreated.WithLabelValues(string(expense.SplitMode)).Inc()
	return expense, nil
}

func (s *ExpenseService) createExpense(ctx context.Context, actor ledger.Actor, in CreateExpenseInput) (*models.Expense, error) {
	const op = "create expense"
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ledger.Validation(op, "title is required")
	}
	mode := in.SplitMode
	if mode == "" {
		mode = ledger.SplitEqual
	}
	status := in.Status
	if status == "" {
		status = models.ExpensePending
	}
	payer := in.PaidBy
	if payer == uuid.Nil {
		payer = actor.UserID
	}

	var event *models.Event
	if in.EventID != nil {
		var err error
		if event, err = s.store.GetEvent(ctx, *in.EventID); err != nil {
			return nil, err
		}
		if !actor.Privileged() && !event.HasParticipant(actor.UserID) {
			return nil, ledger.Forbidden(op, "you are not attending this event")
		}
	}

	participants, values := in.Participants, []decimal.Decimal(nil)
	if mode == ledger.SplitEqual {
		if len(participants) == 0 && event != nil {
			participants = event.ParticipantIDs()
		}
	} else {
		participants, values = unzipSplits(in.Splits)
	}

	shares, err := ledger.Allocate(ledger.Allocation{
		Total:        in.Amount,
		Participants: participants,
		Mode:         mode,
		Values:       values,
		ResidualTo:   payer,
	})
	if err != nil {
		return nil, err
	}

	users, err := requireUsers(ctx, s.store, op, uniqueIDs(append([]uuid.UUID{payer}, participants...)))
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.currency
	}
	expense := &models.Expense{
		Title:     title,
		Amount:    in.Amount,
		Currency:  currency,
		Category:  in.Category,
		PaidBy:    payer,
		EventID:   in.EventID,
		Status:    status,
		SplitMode: mode,
		Notes:     in.Notes,
		CreatedBy: actor.UserID,
	}
	if err := s.store.CreateExpense(ctx, expense, participantRows(shares)); err != nil {
		return nil, err
	}

	payerUser := users[payer]
	s.activity.record(ctx, models.Activity{
		EventID:     expense.EventID,
		UserID:      actor.UserID,
		Type:        models.ActivityExpenseAdded,
		ReferenceID: expense.ID,
		Description: fmt.Sprintf("%s added \"%s\" (%s %s)", payerUser.Name, expense.Title, expense.Currency, expense.Amount.StringFixed(2)),
	})

	debtors := make([]models.User, 0, len(shares))
	for _, sh := range shares {
		if sh.UserID != payer {
			debtors = append(debtors, users[sh.UserID])
		}
	}
	s.notifier.ExpenseAdded(expense, payerUser, debtors)
	return expense, nil
}

// Get returns an expense the actor may see: their own, one they share, one
// in an event they attend, or any expense for an admin.
func (s *ExpenseService) Get(ctx context.Context, actor ledger.Actor, id uuid.UUID) (*models.Expense, error) {
	expense, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkVisible(ctx, actor, expense); err != nil {
		return nil, err
	}
	return expense, nil
}

func (s *ExpenseService) checkVisible(ctx context.Context, actor ledger.Actor, e *models.Expense) error {
	if actor.Privileged() || actor.UserID == e.PaidBy || actor.UserID == e.CreatedBy || e.Participant(actor.UserID) != nil {
		return nil
	}
	if e.EventID != nil {
		event, err := s.store.GetEvent(ctx, *e.EventID)
		if err != nil {
			return err
		}
		if event.HasParticipant(actor.UserID) {
			return nil
		}
	}
	return ledger.Forbidden("get expense", "you are not part of this expense")
}

// List returns one page of expenses. With an event id it lists the event's
// expenses; otherwise the actor's own.
func (s *ExpenseService) List(ctx context.Context, actor ledger.Actor, eventID *uuid.UUID, page store.Page) ([]models.Expense, int64, error) {
	filter := store.ExpenseFilter{Page: page}
	if eventID != nil {
		event, err := s.store.GetEvent(ctx, *eventID)
		if err != nil {
			return nil, 0, err
		}
		if !actor.Privileged() && !event.HasParticipant(actor.UserID) {
			return nil, 0, ledger.Forbidden("list expenses", "you are not attending this event")
		}
		filter.EventID = eventID
	} else {
		filter.UserID = &actor.UserID
	}
	return s.store.ListExpenses(ctx, filter)
}

// UpdateExpenseInput is a partial update. Supplying Amount, SplitMode,
// Participants or Splits re-splits the expense.
type UpdateExpenseInput struct {
	Title        *string
	Amount       *decimal.Decimal
	Currency     *string
	Category     *string
	Notes        *string
	Status       *models.ExpenseStatus
	SplitMode    *ledger.SplitMode
	Participants []uuid.UUID
	Splits       []SplitValue
}

func (in UpdateExpenseInput) resplits() bool {
	return in.Amount != nil || in.SplitMode != nil || in.Participants != nil || in.Splits != nil
}

func (s *ExpenseService) Update(ctx context.Context, actor ledger.Actor, id uuid.UUID, in UpdateExpenseInput) (*models.Expense, error) {
	const op = "update expense"
	expense, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanModify(expense.PaidBy) {
		return nil, ledger.Forbidden(op, "only the payer can edit this expense")
	}

	upd := store.ExpenseUpdate{
		Currency: in.Currency,
		Category: in.Category,
		Notes:    in.Notes,
		Status:   in.Status,
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, ledger.Validation(op, "title must not be empty")
		}
		upd.Title = &title
	}
	if in.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*in.Currency))
		if len(currency) != 3 {
			return nil, ledger.Validation(op, "currency must be a 3-letter code")
		}
		upd.Currency = &currency
	}

	if in.resplits() {
		if expense.AnyPaid() {
			return nil, ledger.Conflict(op, "shares have already been paid, record a new expense instead")
		}
		parts, mode, amount, err := s.resplit(ctx, expense, in)
		if err != nil {
			return nil, err
		}
		upd.Amount = &amount
		upd.SplitMode = &mode
		upd.Participants = parts
	}

	updated, err := s.store.UpdateExpense(ctx, id, upd)
	if err != nil {
		return nil, err
	}

	s.activity.record(ctx, models.Activity{
		EventID:     updated.EventID,
		UserID:      actor.UserID,
		Type:        models.ActivityExpenseUpdated,
		ReferenceID: updated.ID,
		Description: fmt.Sprintf("\"%s\" was updated", updated.Title),
	})
	return updated, nil
}

func (s *ExpenseService) resplit(ctx context.Context, e *models.Expense, in UpdateExpenseInput) ([]models.ExpenseParticipant, ledger.SplitMode, decimal.Decimal, error) {
	const op = "update expense"
	amount := e.Amount
	if in.Amount != nil {
		amount = *in.Amount
	}
	mode := e.SplitMode
	if in.SplitMode != nil {
		mode = *in.SplitMode
	}

	var participants []uuid.UUID
	var values []decimal.Decimal
	switch {
	case mode == ledger.SplitEqual && in.Participants != nil:
		participants = in.Participants
	case mode == ledger.SplitEqual:
		for _, p := range e.Participants {
			participants = append(participants, p.UserID)
		}
	case in.Splits != nil:
		participants, values = unzipSplits(in.Splits)
	default:
		return nil, "", decimal.Zero, ledger.Validation(op, "splits are required to re-split a %s expense", mode)
	}

	if _, err := requireUsers(ctx, s.store, op, uniqueIDs(participants)); err != nil {
		return nil, "", decimal.Zero, err
	}
	shares, err := ledger.Allocate(ledger.Allocation{
		Total:        amount,
		Participants: participants,
		Mode:         mode,
		Values:       values,
		ResidualTo:   e.PaidBy,
	})
	if err != nil {
		return nil, "", decimal.Zero, err
	}
	return participantRows(shares), mode, amount, nil
}

// Delete removes an expense and its shares.
func (s *ExpenseService) Delete(ctx context.Context, actor ledger.Actor, id uuid.UUID) error {
	expense, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanModify(expense.PaidBy) {
		return ledger.Forbidden("delete expense", "only the payer can delete this expense")
	}
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.activity.record(ctx, models.Activity{
		EventID:     expense.EventID,
		UserID:      actor.UserID,
		Type:        models.ActivityExpenseDeleted,
		ReferenceID: expense.ID,
		Description: fmt.Sprintf("\"%s\" (%s %s) was deleted", expense.Title, expense.Currency, expense.Amount.StringFixed(2)),
	})
	return nil
}

// MarkParticipantPaid records that userID has paid their share. The payer,
// the participant and admins may do this, once. When no non-payer share is
// left outstanding the expense becomes settled.
func (s *ExpenseService) MarkParticipantPaid(ctx context.Context, actor ledger.Actor, expenseID, userID uuid.UUID) (*models.Expense, error) {
	const op = "mark share paid"
	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if expense.Participant(userID) == nil {
		return nil, ledger.NotFound(op, "user %s has no share in this expense", userID)
	}
	if !actor.Privileged() && actor.UserID != expense.PaidBy && actor.UserID != userID {
		return nil, ledger.Forbidden(op, "only the payer or the participant can mark this share paid")
	}

	if err := s.store.MarkParticipantPaid(ctx, expenseID, userID, s.now()); err != nil {
		return nil, err
	}
	s.metrics.SharesPaid.Inc()

	expense, err = s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if !expense.OutstandingShares() && expense.Status != models.ExpenseSettled {
		if err := s.store.SetExpenseStatus(ctx, expenseID, models.ExpenseSettled); err != nil {
			return nil, err
		}
		expense.Status = models.ExpenseSettled
	}

	users, err := s.store.GetUsers(ctx, []uuid.UUID{expense.PaidBy, userID})
	if err != nil {
		return nil, err
	}
	debtor := users[userID]
	s.activity.record(ctx, models.Activity{
		EventID:     expense.EventID,
		UserID:      actor.UserID,
		Type:        models.ActivitySharePaid,
		ReferenceID: expense.ID,
		Description: fmt.Sprintf("%s paid their share of \"%s\"", debtor.Name, expense.Title),
	})
	if userID != expense.PaidBy {
		s.notifier.SharePaid(expense, users[expense.PaidBy], debtor)
	}
	return expense, nil
}

func unzipSplits(splits []SplitValue) ([]uuid.UUID, []decimal.Decimal) {
	ids := make([]uuid.UUID, len(splits))
	values := make([]decimal.Decimal, len(splits))
	for i, sp := range splits {
		ids[i] = sp.UserID
		values[i] = sp.Value
	}
	return ids, values
}

func participantRows(shares []ledger.Share) []models.ExpenseParticipant {
	rows := make([]models.ExpenseParticipant, len(shares))
	for i, sh := range shares {
		rows[i] = models.ExpenseParticipant{UserID: sh.UserID, ShareAmount: sh.Amount}
	}
	return rows
}
