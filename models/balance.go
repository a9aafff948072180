package models

import "github.com/google/uuid"

// Balance represents an amount one user owes another
type Balance struct {
	From     uuid.UUID `json:"from"`
	FromName string    `json:"from_name"`
	To       uuid.UUID `json:"to"`
	ToName   string    `json:"to_name"`
	Amount   string    `json:"amount"`
	Currency string    `json:"currency"`
}

// MemberBalance is one member's position in an event or across all events
type MemberBalance struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	OwedTo string    `json:"owed_to"` // others owe this member
	OwedBy string    `json:"owed_by"` // this member owes others
	Net    string    `json:"net"`     // positive = others owe them
}

// BalanceSummary is returned for GET /api/balances. Owed, Owing and Net come
// straight from the balance engine; the settled_* fields layer recorded
// settlements on top without changing them.
type BalanceSummary struct {
	UserID      uuid.UUID  `json:"user_id"`
	EventID     *uuid.UUID `json:"event_id,omitempty"`
	Currency    string     `json:"currency"`
	Owed        string     `json:"owed"`  // total others owe you
	Owing       string     `json:"owing"` // total you owe others
	Net         string     `json:"net"`
	SettledIn   string     `json:"settled_in"`  // settled payments you received
	SettledOut  string     `json:"settled_out"` // settled payments you made
	AdjustedNet string     `json:"adjusted_net"`
	OwedToYou   []Balance  `json:"owed_to_you"`
	YouOwe      []Balance  `json:"you_owe"`
}

// EventBalanceSummary is returned for GET /api/events/:id/balances
type EventBalanceSummary struct {
	EventID     uuid.UUID       `json:"event_id"`
	EventTitle  string          `json:"event_title"`
	Currency    string          `json:"currency"`
	Members     []MemberBalance `json:"members"`
	Debts       []Balance       `json:"debts"`
	Suggestions []Balance       `json:"suggestions"`
	TotalSpent  string          `json:"total_spent"`
	TotalOwed   string          `json:"total_owed"`
}
