package sqlstore

import (
	"context"
	"fmt"

	"huddle/internal/domain"
)

type MessageRepo struct {
	db *DB
}

func NewMessageRepo(db *DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	m.CreatedAt = utc(m.CreatedAt)
	_, err := r.db.exec(ctx, r.db, `
		INSERT INTO messages (id, chat_id, user_id, content, message_type, file_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ChatID, m.UserID, m.Content, string(m.MessageType), m.FileURL, m.CreatedAt)
	return mapErr(err, "insert message")
}

func (r *MessageRepo) ListPage(ctx context.Context, chatID string, before *domain.MessageCursor, limit int) ([]*domain.Message, error) {
	query := `
		SELECT id, chat_id, user_id, content, message_type, file_url, created_at
		FROM messages
		WHERE chat_id = ?
	`
	args := []any{chatID}
	if before != nil {
		at := utc(before.CreatedAt)
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, at, at, before.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.query(ctx, r.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	res := []*domain.Message{}
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(&m.ID, &m.ChatID, &m.UserID, &m.Content, &m.MessageType, &m.FileURL, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// PruneOld keeps only the newest keepLimit messages of a chat.
func (r *MessageRepo) PruneOld(ctx context.Context, chatID string, keepLimit int) error {
	if keepLimit <= 0 {
		return nil
	}
	_, err := r.db.exec(ctx, r.db, `
		DELETE FROM messages
		WHERE chat_id = ? AND id NOT IN (
			SELECT id FROM messages WHERE chat_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
		)
	`, chatID, chatID, keepLimit)
	if err != nil {
		return fmt.Errorf("delete old messages: %w", err)
	}
	return nil
}
