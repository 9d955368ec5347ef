package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"huddle/internal/domain"
)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

const userColumns = `id, email, hashed_password, is_active, signed_out_at, created_at`

func scanUser(s scanner) (*domain.User, error) {
	u := &domain.User{}
	if err := s.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.IsActive, &u.SignedOutAt, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User, p *domain.Profile) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = utc(u.CreatedAt)
	p.UserID = u.ID
	p.CreatedAt = u.CreatedAt
	p.UpdatedAt = u.CreatedAt
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.db.exec(ctx, tx, `
			INSERT INTO users (id, email, hashed_password, is_active, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, u.ID, u.Email, u.HashedPassword, u.IsActive, u.CreatedAt); err != nil {
			return mapErr(err, "insert user")
		}
		if _, err := r.db.exec(ctx, tx, `
			INSERT INTO profiles (user_id, display_name, username, first_name, last_name, avatar_url, bio, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.UserID, p.DisplayName, p.Username, p.FirstName, p.LastName, p.AvatarURL, p.Bio, p.CreatedAt, p.UpdatedAt); err != nil {
			return mapErr(err, "insert profile")
		}
		return nil
	})
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (r *UserRepo) getBy(ctx context.Context, column, value string) (*domain.User, error) {
	row := r.db.queryRow(ctx, r.db, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by %s: %w", column, err)
	}
	return u, nil
}

func (r *UserRepo) SetSignedOut(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.exec(ctx, r.db, `UPDATE users SET signed_out_at = ? WHERE id = ?`, utc(at), id); err != nil {
		return fmt.Errorf("set signed out: %w", err)
	}
	return nil
}
