// Package store persists the club ledger with gorm. Every method returns
// *ledger.Error values so callers can tell validation, missing records,
// conflicts and storage failures apart.
package store

import (
	"context"
	"errors"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
)

// postgres unique_violation
const pqUniqueViolation = "23505"

// Store is the single authoritative ledger store.
type Store struct {
	db     *gorm.DB
	atomic bool
}

type Option func(*Store)

// WithoutTransactions makes CreateExpense write the header and the
// participant rows as two statements, deleting the header if the second
// write fails. Use it when the database sits behind a pooler that cannot
// hold a transaction open across statements.
func WithoutTransactions() Option {
	return func(s *Store) {
		s.atomic = false
	}
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, atomic: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks that the connection pool can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return translate("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return translate("ping", err)
	}
	return nil
}

// Page describes an offset page. Zero values mean the first page of 20.
type Page struct {
	Page  int
	Limit int
}

func (p Page) normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > 100 {
		p.Limit = 20
	}
	return p
}

func (p Page) apply(db *gorm.DB) *gorm.DB {
	p = p.normalize()
	return db.Offset((p.Page - 1) * p.Limit).Limit(p.Limit)
}

func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if ledger.KindOf(err) != 0 {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.NotFound(op, "record not found")
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ledger.Conflict(op, "record already exists")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ledger.Conflict(op, "record already exists (%s)", pqErr.Constraint)
	}
	return ledger.Storage(op, err)
}
