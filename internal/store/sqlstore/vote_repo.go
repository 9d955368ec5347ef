package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"huddle/internal/domain"
)

type VoteRepo struct {
	db *DB
}

func NewVoteRepo(db *DB) *VoteRepo {
	return &VoteRepo{db: db}
}

var _ domain.VoteRepository = (*VoteRepo)(nil)

// Upsert locks the proposal row while it is still open for voting and then
// writes the vote keyed by (proposal_id, user_id).
func (r *VoteRepo) Upsert(ctx context.Context, v *domain.Vote) error {
	v.UpdatedAt = utc(v.UpdatedAt)
	if v.CreatedAt.IsZero() {
		v.CreatedAt = v.UpdatedAt
	}
	return r.db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := r.db.exec(ctx, tx, `
			UPDATE proposals SET status = status
			WHERE id = ? AND status = 'active' AND (expires_at IS NULL OR expires_at > ?)
		`, v.ProposalID, v.UpdatedAt)
		if err != nil {
			return fmt.Errorf("lock proposal: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return proposalGone(ctx, r.db, tx, v.ProposalID)
		}

		if _, err := r.db.exec(ctx, tx, `
			INSERT INTO votes (proposal_id, user_id, vote_type, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (proposal_id, user_id)
			DO UPDATE SET vote_type = excluded.vote_type, updated_at = excluded.updated_at
		`, v.ProposalID, v.UserID, string(v.VoteType), utc(v.CreatedAt), v.UpdatedAt); err != nil {
			return mapErr(err, "upsert vote")
		}
		return r.db.queryRow(ctx, tx, `
			SELECT created_at FROM votes WHERE proposal_id = ? AND user_id = ?
		`, v.ProposalID, v.UserID).Scan(&v.CreatedAt)
	})
}

func (r *VoteRepo) ListForProposal(ctx context.Context, proposalID string) ([]domain.Vote, error) {
	rows, err := r.db.query(ctx, r.db, `
		SELECT proposal_id, user_id, vote_type, created_at, updated_at
		FROM votes WHERE proposal_id = ? ORDER BY created_at ASC
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	res := []domain.Vote{}
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.ProposalID, &v.UserID, &v.VoteType, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
