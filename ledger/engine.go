package ledger

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExpenseEntry is the slice of an expense the balance engine reads.
type ExpenseEntry struct {
	ID           uuid.UUID
	PaidBy       uuid.UUID
	EventID      *uuid.UUID
	Participants []ParticipantEntry
}

// ParticipantEntry is one participant row of an expense.
type ParticipantEntry struct {
	UserID uuid.UUID
	Share  decimal.Decimal
	Paid   bool
}

// Scope restricts a balance computation. The zero Scope is global.
type Scope struct {
	EventID *uuid.UUID
}

// EventScope limits a computation to expenses attached to one event.
func EventScope(eventID uuid.UUID) Scope {
	return Scope{EventID: &eventID}
}

func (s Scope) includes(e ExpenseEntry) bool {
	if s.EventID == nil {
		return true
	}
	return e.EventID != nil && *e.EventID == *s.EventID
}

// UserBalance is one user's position. Net is positive when others owe the user.
type UserBalance struct {
	UserID uuid.UUID
	OwedTo decimal.Decimal
	OwedBy decimal.Decimal
	Net    decimal.Decimal
}

// Debt is an amount From owes To.
type Debt struct {
	From   uuid.UUID
	To     uuid.UUID
	Amount decimal.Decimal
}

// Report is the output of one balance computation.
type Report struct {
	Scope Scope
	// Balances lists users whose net is at least one cent.
	Balances []UserBalance
	// Debts holds pairwise debts netted per pair of users.
	Debts []Debt
	// Totals cover every user, including those omitted from Balances.
	TotalOwedTo decimal.Decimal
	TotalOwedBy decimal.Decimal

	// positions holds every user with any owed_to or owed_by, whatever
	// their net.
	positions map[uuid.UUID]UserBalance
}

type pair struct {
	from, to uuid.UUID
}

// ComputeBalances derives per-user balances from the unpaid, non-payer shares
// of every expense in scope. It never mutates its input, and identical input
// yields identical output.
func ComputeBalances(expenses []ExpenseEntry, scope Scope) Report {
	owedTo := make(map[uuid.UUID]decimal.Decimal)
	owedBy := make(map[uuid.UUID]decimal.Decimal)
	debts := make(map[pair]decimal.Decimal)

	for _, e := range expenses {
		if !scope.includes(e) {
			continue
		}
		payer := e.PaidBy
		for _, p := range e.Participants {
			if p.UserID == payer || p.Paid {
				continue
			}
			owedBy[p.UserID] = owedBy[p.UserID].Add(p.Share)
			owedTo[payer] = owedTo[payer].Add(p.Share)
			k := pair{from: p.UserID, to: payer}
			debts[k] = debts[k].Add(p.Share)
		}
	}

	report := Report{
		Scope:       scope,
		TotalOwedTo: decimal.Zero,
		TotalOwedBy: decimal.Zero,
		positions:   make(map[uuid.UUID]UserBalance),
	}

	users := make(map[uuid.UUID]struct{}, len(owedTo)+len(owedBy))
	for id, amount := range owedTo {
		users[id] = struct{}{}
		report.TotalOwedTo = report.TotalOwedTo.Add(amount)
	}
	for id, amount := range owedBy {
		users[id] = struct{}{}
		report.TotalOwedBy = report.TotalOwedBy.Add(amount)
	}

	for id := range users {
		to, by := owedTo[id], owedBy[id]
		b := UserBalance{
			UserID: id,
			OwedTo: to,
			OwedBy: by,
			Net:    to.Sub(by),
		}
		report.positions[id] = b
		if IsMaterial(b.Net) {
			report.Balances = append(report.Balances, b)
		}
	}
	sort.Slice(report.Balances, func(i, j int) bool {
		return lessID(report.Balances[i].UserID, report.Balances[j].UserID)
	})

	for k, amount := range debts {
		// Net each pair once, from the lexically smaller side.
		if !lessID(k.from, k.to) {
			if _, mirrored := debts[pair{from: k.to, to: k.from}]; mirrored {
				continue
			}
		}
		net := amount.Sub(debts[pair{from: k.to, to: k.from}])
		switch {
		case !IsMaterial(net):
			continue
		case net.IsPositive():
			report.Debts = append(report.Debts, Debt{From: k.from, To: k.to, Amount: net})
		default:
			report.Debts = append(report.Debts, Debt{From: k.to, To: k.from, Amount: net.Neg()})
		}
	}
	sortDebts(report.Debts)

	return report
}

// ForUser returns the user's owed_to and owed_by as computed, including when
// they net to zero. Users with no unpaid shares get a zero balance.
func (r Report) ForUser(userID uuid.UUID) UserBalance {
	if b, ok := r.positions[userID]; ok {
		return b
	}
	return UserBalance{UserID: userID, OwedTo: decimal.Zero, OwedBy: decimal.Zero, Net: decimal.Zero}
}

// Positions returns every user with an unpaid share on either side, in id
// order.
func (r Report) Positions() []UserBalance {
	out := make([]UserBalance, 0, len(r.positions))
	for _, b := range r.positions {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessID(out[i].UserID, out[j].UserID)
	})
	return out
}

// DebtsOf splits the report's pairwise debts into those owed to the user and
// those the user owes.
func (r Report) DebtsOf(userID uuid.UUID) (owedToUser, owedByUser []Debt) {
	for _, d := range r.Debts {
		switch userID {
		case d.To:
			owedToUser = append(owedToUser, d)
		case d.From:
			owedByUser = append(owedByUser, d)
		}
	}
	return owedToUser, owedByUser
}

// SimplifyDebts turns net balances into a short list of payments by greedily
// matching the largest debtor with the largest creditor.
func SimplifyDebts(balances []UserBalance) []Debt {
	type position struct {
		id     uuid.UUID
		amount decimal.Decimal
	}

	var creditors, debtors []position
	for _, b := range balances {
		switch {
		case !IsMaterial(b.Net):
		case b.Net.IsPositive():
			creditors = append(creditors, position{b.UserID, b.Net})
		default:
			debtors = append(debtors, position{b.UserID, b.Net.Neg()})
		}
	}
	byAmount := func(ps []position) func(i, j int) bool {
		return func(i, j int) bool {
			if c := ps[i].amount.Cmp(ps[j].amount); c != 0 {
				return c > 0
			}
			return lessID(ps[i].id, ps[j].id)
		}
	}
	sort.Slice(creditors, byAmount(creditors))
	sort.Slice(debtors, byAmount(debtors))

	var out []Debt
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := decimal.Min(debtors[i].amount, creditors[j].amount)
		if IsMaterial(amount) {
			out = append(out, Debt{From: debtors[i].id, To: creditors[j].id, Amount: amount})
		}
		debtors[i].amount = debtors[i].amount.Sub(amount)
		creditors[j].amount = creditors[j].amount.Sub(amount)
		if !IsMaterial(debtors[i].amount) {
			i++
		}
		if !IsMaterial(creditors[j].amount) {
			j++
		}
	}
	return out
}

func lessID(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func sortDebts(ds []Debt) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].From != ds[j].From {
			return lessID(ds[i].From, ds[j].From)
		}
		return lessID(ds[i].To, ds[j].To)
	})
}
