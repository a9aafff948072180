package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
	"github.com/AndrewCorlett/errolian-club-sub000/models"
	"github.com/AndrewCorlett/errolian-club-sub000/store"
)

// UserService handles registration, login and profile changes.
type UserService struct {
	store    *store.Store
	currency string
}

func NewUserService(st *store.Store, defaultCurrency string) *UserService {
	return &UserService{store: st, currency: defaultCurrency}
}

func (s *UserService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	const op = "register"
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ledger.Validation(op, "name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ledger.Validation(op, "invalid email address")
	}
	if len(password) < 6 {
		return nil, ledger.Validation(op, "password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, ledger.Storage(op, err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         ledger.RoleMember,
		Active:       true,
		Currency:     s.currency,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate returns the user for a correct email and password. Unknown
// emails and wrong passwords fail the same way.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	const op = "login"
	invalid := ledger.Unauthenticated(op, "invalid email or password")

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, invalid
	}
	if !user.Active {
		return nil, ledger.Forbidden(op, "account is disabled")
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *UserService) UpdateProfile(ctx context.Context, actor ledger.Actor, name, currency *string) (*models.User, error) {
	const op = "update profile"
	if name != nil && strings.TrimSpace(*name) == "" {
		return nil, ledger.Validation(op, "name must not be empty")
	}
	if currency != nil && len(*currency) != 3 {
		return nil, ledger.Validation(op, "currency must be a 3-letter code")
	}
	return s.store.UpdateUser(ctx, actor.UserID, store.UserUpdate{Name: name, Currency: currency})
}

func (s *UserService) UpdateFCMToken(ctx context.Context, actor ledger.Actor, token string) error {
	_, err := s.store.UpdateUser(ctx, actor.UserID, store.UserUpdate{FCMToken: &token})
	return err
}

// Names maps user ids to display names for responses. Unknown ids are
// skipped.
func (s *UserService) Names(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]string, error) {
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(users))
	for id, u := range users {
		names[id] = u.Name
	}
	return names, nil
}
