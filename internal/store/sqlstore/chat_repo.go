package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"huddle/internal/domain"
)

type ChatRepo struct {
	db *DB
}

func NewChatRepo(db *DB) *ChatRepo {
	return &ChatRepo{db: db}
}

var _ domain.ChatRepository = (*ChatRepo)(nil)

const chatSelect = `
	SELECT c.id, c.type, c.name, c.group_id, c.created_by, c.created_at, c.updated_at,
		g.name, lm.content, lm.created_at
	FROM chats c
	LEFT JOIN groups g ON g.id = c.group_id
	LEFT JOIN messages lm ON lm.id = (
		SELECT m.id FROM messages m WHERE m.chat_id = c.id ORDER BY m.created_at DESC, m.id DESC LIMIT 1
	)
`

func scanChat(s scanner) (*domain.Chat, error) {
	c := &domain.Chat{}
	err := s.Scan(&c.ID, &c.Type, &c.Name, &c.GroupID, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
		&c.GroupName, &c.LastMessage, &c.LastMessageAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// directKey identifies a direct chat by its sorted member set.
func directKey(memberIDs []string) string {
	ids := append([]string(nil), memberIDs...)
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

func (r *ChatRepo) EnsureGroupChat(ctx context.Context, c *domain.Chat) (*domain.Chat, bool, error) {
	if c.GroupID == nil {
		return nil, false, fmt.Errorf("group chat without group: %w", domain.ErrInvalidInput)
	}
	c.Type = domain.ChatGroup
	created, err := r.insertIfAbsent(ctx, r.db, c, nil)
	if err != nil {
		return nil, false, err
	}
	stored, err := r.getOne(ctx, `c.type = 'group' AND c.group_id = ?`, *c.GroupID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("group chat vanished after insert: %w", domain.ErrInternal)
	}
	return stored, created, nil
}

func (r *ChatRepo) EnsureDirectChat(ctx context.Context, c *domain.Chat, memberIDs []string) (*domain.Chat, bool, error) {
	if len(memberIDs) < 2 {
		return nil, false, fmt.Errorf("direct chat needs two members: %w", domain.ErrInvalidInput)
	}
	c.Type = domain.ChatDirect
	c.GroupID = nil
	key := directKey(memberIDs)

	var created bool
	err := r.db.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = r.insertIfAbsent(ctx, tx, c, &key)
		if err != nil || !created {
			return err
		}
		for _, uid := range memberIDs {
			if _, err := r.db.exec(ctx, tx, `INSERT INTO chat_members (chat_id, user_id) VALUES (?, ?)`, c.ID, uid); err != nil {
				return mapErr(err, "insert chat member")
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	stored, err := r.getOne(ctx, `c.direct_key = ?`, key)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("direct chat vanished after insert: %w", domain.ErrInternal)
	}
	stored.MemberIDs, err = r.MemberIDs(ctx, stored.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (r *ChatRepo) insertIfAbsent(ctx context.Context, q runner, c *domain.Chat, key *string) (bool, error) {
	c.CreatedAt = utc(c.CreatedAt)
	c.UpdatedAt = c.CreatedAt
	res, err := r.db.exec(ctx, q, `
		INSERT INTO chats (id, type, name, group_id, direct_key, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, c.ID, string(c.Type), c.Name, c.GroupID, key, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return false, mapErr(err, "insert chat")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *ChatRepo) GetByID(ctx context.Context, id string) (*domain.Chat, error) {
	c, err := r.getOne(ctx, `c.id = ?`, id)
	if err != nil || c == nil {
		return c, err
	}
	if c.Type == domain.ChatDirect {
		if c.MemberIDs, err = r.MemberIDs(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (r *ChatRepo) getOne(ctx context.Context, where string, arg any) (*domain.Chat, error) {
	c, err := scanChat(r.db.queryRow(ctx, r.db, chatSelect+` WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return c, nil
}

// ListForUser returns the group chats of the user's groups and the direct
// chats the user takes part in, most recently active first.
func (r *ChatRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Chat, error) {
	rows, err := r.db.query(ctx, r.db, chatSelect+`
		WHERE (c.type = 'group' AND c.group_id IN (SELECT group_id FROM group_members WHERE user_id = ?))
			OR (c.type = 'direct' AND c.id IN (SELECT chat_id FROM chat_members WHERE user_id = ?))
		ORDER BY c.updated_at DESC, c.id DESC
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	res := []*domain.Chat{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		res = append(res, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	for _, c := range res {
		if c.Type != domain.ChatDirect {
			continue
		}
		if c.MemberIDs, err = r.MemberIDs(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r *ChatRepo) MemberIDs(ctx context.Context, chatID string) ([]string, error) {
	rows, err := r.db.query(ctx, r.db, `SELECT user_id FROM chat_members WHERE chat_id = ? ORDER BY user_id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list chat members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chat member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ChatRepo) Touch(ctx context.Context, chatID string, at time.Time) error {
	if _, err := r.db.exec(ctx, r.db, `UPDATE chats SET updated_at = ? WHERE id = ?`, utc(at), chatID); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return nil
}
