package ledger

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SplitMode selects how an expense total is divided among participants.
type SplitMode string

const (
	SplitEqual      SplitMode = "equal"
	SplitCustom     SplitMode = "custom"
	SplitPercentage SplitMode = "percentage"
	SplitWeighted   SplitMode = "weighted"
)

const opAllocate = "allocate shares"

var hundred = decimal.NewFromInt(100)

// ParseSplitMode accepts the canonical names plus the "exact" and "shares"
// aliases used by older clients. Empty means equal.
func ParseSplitMode(s string) (SplitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "equal":
		return SplitEqual, nil
	case "custom", "exact":
		return SplitCustom, nil
	case "percentage", "percent":
		return SplitPercentage, nil
	case "weighted", "shares":
		return SplitWeighted, nil
	default:
		return "", Validation(opAllocate, "invalid split mode %q", s)
	}
}

// Share is one participant's portion of an expense.
type Share struct {
	UserID uuid.UUID
	Amount decimal.Decimal
}

// Allocation describes a split to compute.
type Allocation struct {
	Total        decimal.Decimal
	Participants []uuid.UUID
	Mode         SplitMode
	// Values holds one entry per participant: amounts for custom, percents for
	// percentage, weights for weighted. Ignored for equal.
	Values []decimal.Decimal
	// ResidualTo receives any rounding residue. When it is not a participant
	// the first participant receives it instead.
	ResidualTo uuid.UUID
}

// Allocate splits a total among participants so the shares add up to the
// total exactly. The result keeps the participant order.
func Allocate(a Allocation) ([]Share, error) {
	if !a.Total.IsPositive() {
		return nil, Validation(opAllocate, "amount must be greater than zero")
	}
	if !HasAtMostTwoDecimals(a.Total) {
		return nil, Validation(opAllocate, "amount must have at most two decimal places")
	}
	n := len(a.Participants)
	if n == 0 {
		return nil, Validation(opAllocate, "at least one participant is required")
	}
	seen := make(map[uuid.UUID]bool, n)
	for _, id := range a.Participants {
		if id == uuid.Nil {
			return nil, Validation(opAllocate, "participant id is required")
		}
		if seen[id] {
			return nil, Validation(opAllocate, "duplicate participant %s", id)
		}
		seen[id] = true
	}

	mode := a.Mode
	if mode == "" {
		mode = SplitEqual
	}
	if mode != SplitEqual {
		if len(a.Values) != n {
			return nil, Validation(opAllocate, "%s split needs one value per participant, got %d for %d", mode, len(a.Values), n)
		}
		for _, v := range a.Values {
			if v.IsNegative() {
				return nil, Validation(opAllocate, "split values must not be negative")
			}
		}
	}

	amounts := make([]decimal.Decimal, n)
	switch mode {
	case SplitEqual:
		per := a.Total.DivRound(decimal.NewFromInt(int64(n)), 2)
		for i := range amounts {
			amounts[i] = per
		}

	case SplitCustom:
		if !WithinTolerance(Sum(a.Values...), a.Total) {
			return nil, Validation(opAllocate, "shares do not sum to total")
		}
		for i, v := range a.Values {
			amounts[i] = RoundToTwo(v)
		}

	case SplitPercentage:
		if !WithinTolerance(Sum(a.Values...), hundred) {
			return nil, Validation(opAllocate, "percentages must add up to 100, got %s", Sum(a.Values...).StringFixed(2))
		}
		for i, p := range a.Values {
			amounts[i] = a.Total.Mul(p).DivRound(hundred, 2)
		}

	case SplitWeighted:
		weight := Sum(a.Values...)
		if !weight.IsPositive() {
			return nil, Validation(opAllocate, "total weight must be greater than zero")
		}
		for i, w := range a.Values {
			amounts[i] = a.Total.Mul(w).DivRound(weight, 2)
		}

	default:
		return nil, Validation(opAllocate, "invalid split mode %q", mode)
	}

	idx := residualIndex(a.Participants, a.ResidualTo)
	residual := a.Total.Sub(Sum(amounts...))
	amounts[idx] = amounts[idx].Add(residual)
	if amounts[idx].IsNegative() {
		return nil, Validation(opAllocate, "amount %s is too small to split among %d participants", a.Total.StringFixed(2), n)
	}

	shares := make([]Share, n)
	for i, id := range a.Participants {
		shares[i] = Share{UserID: id, Amount: amounts[i]}
	}
	return shares, nil
}

func residualIndex(participants []uuid.UUID, to uuid.UUID) int {
	for i, id := range participants {
		if id == to {
			return i
		}
	}
	return 0
}
