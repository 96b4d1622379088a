package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/padraicbc/votesettle/models"
)

// ErrUserNotFound is returned by UserByUsername.
var ErrUserNotFound = errors.New("user not found")

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := new(models.User)
	err := s.db.NewSelect().Model(user).Where("username = ?", username).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db.UserByUsername: %w", err)
	}
	return user, nil
}

// UpsertUser creates the user or replaces its password and admin flag.
func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	_, err := s.db.NewInsert().Model(user).
		On("CONFLICT (username) DO UPDATE").
		Set("password = EXCLUDED.password").
		Set("is_admin = EXCLUDED.is_admin").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("db.UpsertUser: %w", err)
	}
	return nil
}
