package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"huddle/internal/domain"
)

type ProfileRepo struct {
	db *DB
}

func NewProfileRepo(db *DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

var _ domain.ProfileRepository = (*ProfileRepo)(nil)

const profileColumns = `user_id, display_name, username, first_name, last_name, avatar_url, bio, created_at, updated_at`

func scanProfile(s scanner) (*domain.Profile, error) {
	p := &domain.Profile{}
	err := s.Scan(&p.UserID, &p.DisplayName, &p.Username, &p.FirstName, &p.LastName,
		&p.AvatarURL, &p.Bio, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProfileRepo) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	row := r.db.queryRow(ctx, r.db, `SELECT `+profileColumns+` FROM profiles WHERE user_id = ?`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *ProfileRepo) ListByIDs(ctx context.Context, userIDs []string) ([]*domain.Profile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.query(ctx, r.db,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id IN (`+placeholders(len(userIDs))+`)`,
		stringArgs(userIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var res []*domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r *ProfileRepo) Update(ctx context.Context, p *domain.Profile) error {
	p.UpdatedAt = utc(p.UpdatedAt)
	res, err := r.db.exec(ctx, r.db, `
		UPDATE profiles
		SET display_name = ?, username = ?, first_name = ?, last_name = ?, avatar_url = ?, bio = ?, updated_at = ?
		WHERE user_id = ?
	`, p.DisplayName, p.Username, p.FirstName, p.LastName, p.AvatarURL, p.Bio, p.UpdatedAt, p.UserID)
	if err != nil {
		return mapErr(err, "update profile")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
