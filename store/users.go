package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AndrewCorlett/errolian-club-sub000/ledger"
	"github.com/AndrewCorlett/errolian-club-sub000/models"
)

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	err := s.db.WithContext(ctx).Create(u).Error
	if err != nil && ledger.KindOf(translate("create user", err)) == ledger.KindConflict {
		return ledger.Conflict("create user", "email %s is already registered", u.Email)
	}
	return translate("create user", err)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.NotFound("get user", "user %s not found", id)
	}
	if err != nil {
		return nil, translate("get user", err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.NotFound("get user", "no user with email %s", email)
	}
	if err != nil {
		return nil, translate("get user", err)
	}
	return &u, nil
}

// GetUsers loads the given users keyed by id. Unknown ids are absent from
// the result.
func (s *Store) GetUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	out := make(map[uuid.UUID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, translate("get users", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// UserUpdate is a partial profile update.
type UserUpdate struct {
	Name     *string
	Currency *string
	FCMToken *string
}

func (s *Store) UpdateUser(ctx context.Context, id uuid.UUID, u UserUpdate) (*models.User, error) {
	updates := map[string]any{}
	if u.Name != nil {
		updates["name"] = *u.Name
	}
	if u.Currency != nil {
		updates["currency"] = strings.ToUpper(*u.Currency)
	}
	if u.FCMToken != nil {
		updates["fcm_token"] = *u.FCMToken
	}
	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, translate("update user", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ledger.NotFound("update user", "user %s not found", id)
		}
	}
	return s.GetUser(ctx, id)
}
