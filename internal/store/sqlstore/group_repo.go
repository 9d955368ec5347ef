package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"huddle/internal/domain"
)

type GroupRepo struct {
	db *DB
}

func NewGroupRepo(db *DB) *GroupRepo {
	return &GroupRepo{db: db}
}

var _ domain.GroupRepository = (*GroupRepo)(nil)

const groupColumns = `g.id, g.name, g.description, g.image_url, g.invite_code, g.created_by, g.created_at, g.updated_at,
	(SELECT COUNT(*) FROM group_members c WHERE c.group_id = g.id)`

func scanGroup(s scanner, extra ...any) (*domain.Group, error) {
	g := &domain.Group{}
	dest := []any{&g.ID, &g.Name, &g.Description, &g.ImageURL, &g.InviteCode, &g.CreatedBy,
		&g.CreatedAt, &g.UpdatedAt, &g.MemberCount}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *GroupRepo) Create(ctx context.Context, g *domain.Group) error {
	g.CreatedAt = utc(g.CreatedAt)
	g.UpdatedAt = g.CreatedAt
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.db.exec(ctx, tx, `
			INSERT INTO groups (id, name, description, image_url, invite_code, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, g.ID, g.Name, g.Description, g.ImageURL, g.InviteCode, g.CreatedBy, g.CreatedAt, g.UpdatedAt); err != nil {
			return mapErr(err, "insert group")
		}
		if _, err := r.db.exec(ctx, tx, `
			INSERT INTO group_members (id, group_id, user_id, role, joined_at)
			VALUES (?, ?, ?, ?, ?)
		`, uuid.NewString(), g.ID, g.CreatedBy, string(domain.RoleAdmin), g.CreatedAt); err != nil {
			return mapErr(err, "insert creator membership")
		}
		g.MemberCount = 1
		g.UserRole = domain.RoleAdmin
		return nil
	})
}

func (r *GroupRepo) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	return r.getBy(ctx, "g.id = ?", id)
}

func (r *GroupRepo) GetByInviteCode(ctx context.Context, code string) (*domain.Group, error) {
	return r.getBy(ctx, "g.invite_code = ?", code)
}

func (r *GroupRepo) getBy(ctx context.Context, where string, arg any) (*domain.Group, error) {
	row := r.db.queryRow(ctx, r.db, `SELECT `+groupColumns+` FROM groups g WHERE `+where, arg)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (r *GroupRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Group, error) {
	rows, err := r.db.query(ctx, r.db, `
		SELECT `+groupColumns+`, m.role
		FROM groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = ?
		ORDER BY g.created_at DESC, g.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var res []*domain.Group
	for rows.Next() {
		var role domain.Role
		g, err := scanGroup(rows, &role)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g.UserRole = role
		res = append(res, g)
	}
	return res, rows.Err()
}

func (r *GroupRepo) IDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.query(ctx, r.db, `SELECT group_id FROM group_members WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list group ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *GroupRepo) Update(ctx context.Context, g *domain.Group) error {
	g.UpdatedAt = utc(g.UpdatedAt)
	res, err := r.db.exec(ctx, r.db, `
		UPDATE groups SET name = ?, description = ?, image_url = ?, updated_at = ? WHERE id = ?
	`, g.Name, g.Description, g.ImageURL, g.UpdatedAt, g.ID)
	if err != nil {
		return mapErr(err, "update group")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
