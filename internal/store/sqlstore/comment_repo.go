package sqlstore

import (
	"context"
	"fmt"

	"huddle/internal/domain"
)

type CommentRepo struct {
	db *DB
}

func NewCommentRepo(db *DB) *CommentRepo {
	return &CommentRepo{db: db}
}

var _ domain.CommentRepository = (*CommentRepo)(nil)

func (r *CommentRepo) Create(ctx context.Context, c *domain.Comment) error {
	c.CreatedAt = utc(c.CreatedAt)
	c.UpdatedAt = c.CreatedAt
	_, err := r.db.exec(ctx, r.db, `
		INSERT INTO proposal_comments (id, proposal_id, user_id, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.ProposalID, c.UserID, c.Content, c.CreatedAt, c.UpdatedAt)
	return mapErr(err, "insert comment")
}

func (r *CommentRepo) ListForProposal(ctx context.Context, proposalID string) ([]*domain.Comment, error) {
	rows, err := r.db.query(ctx, r.db, `
		SELECT id, proposal_id, user_id, content, created_at, updated_at
		FROM proposal_comments WHERE proposal_id = ?
		ORDER BY created_at ASC, id ASC
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	res := []*domain.Comment{}
	for rows.Next() {
		c := &domain.Comment{}
		if err := rows.Scan(&c.ID, &c.ProposalID, &c.UserID, &c.Content, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
