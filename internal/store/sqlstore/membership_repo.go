package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"huddle/internal/domain"
)

type MembershipRepo struct {
	db *DB
}

func NewMembershipRepo(db *DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

var _ domain.MembershipRepository = (*MembershipRepo)(nil)

func (r *MembershipRepo) Add(ctx context.Context, m *domain.Membership) (bool, error) {
	m.JoinedAt = utc(m.JoinedAt)
	res, err := r.db.exec(ctx, r.db, `
		INSERT INTO group_members (id, group_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`, m.ID, m.GroupID, m.UserID, string(m.Role), m.JoinedAt)
	if err != nil {
		return false, mapErr(err, "insert membership")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *MembershipRepo) Get(ctx context.Context, groupID, userID string) (*domain.Membership, error) {
	m := &domain.Membership{}
	err := r.db.queryRow(ctx, r.db, `
		SELECT id, group_id, user_id, role, joined_at FROM group_members WHERE group_id = ? AND user_id = ?
	`, groupID, userID).Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

// ListForGroup returns memberships with profiles, admins first.
func (r *MembershipRepo) ListForGroup(ctx context.Context, groupID string) ([]*domain.Membership, error) {
	rows, err := r.db.query(ctx, r.db, `
		SELECT m.id, m.group_id, m.user_id, m.role, m.joined_at,
			p.user_id, p.display_name, p.username, p.first_name, p.last_name, p.avatar_url, p.bio, p.created_at, p.updated_at
		FROM group_members m
		JOIN profiles p ON p.user_id = m.user_id
		WHERE m.group_id = ?
		ORDER BY CASE m.role WHEN 'admin' THEN 0 ELSE 1 END, m.joined_at ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var res []*domain.Membership
	for rows.Next() {
		m := &domain.Membership{Profile: &domain.Profile{}}
		p := m.Profile
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.JoinedAt,
			&p.UserID, &p.DisplayName, &p.Username, &p.FirstName, &p.LastName, &p.AvatarURL, &p.Bio,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MembershipRepo) SetRole(ctx context.Context, groupID, userID string, role domain.Role) error {
	res, err := r.db.exec(ctx, r.db, `UPDATE group_members SET role = ? WHERE group_id = ? AND user_id = ?`,
		string(role), groupID, userID)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MembershipRepo) Remove(ctx context.Context, groupID, userID string) error {
	res, err := r.db.exec(ctx, r.db, `DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
