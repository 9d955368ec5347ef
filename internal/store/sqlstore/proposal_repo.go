package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"huddle/internal/domain"
)

type ProposalRepo struct {
	db *DB
}

func NewProposalRepo(db *DB) *ProposalRepo {
	return &ProposalRepo{db: db}
}

var _ domain.ProposalRepository = (*ProposalRepo)(nil)

const proposalSelect = `
	SELECT p.id, p.title, p.description, p.image_url, p.location, p.group_id, p.created_by,
		p.expires_at, p.event_date, p.status, p.created_at, p.updated_at, g.name
	FROM proposals p
	JOIN groups g ON g.id = p.group_id
`

func scanProposal(s scanner) (*domain.Proposal, error) {
	p := &domain.Proposal{Votes: []domain.Vote{}}
	err := s.Scan(&p.ID, &p.Title, &p.Description, &p.ImageURL, &p.Location, &p.GroupID, &p.CreatedBy,
		&p.ExpiresAt, &p.EventDate, &p.Status, &p.CreatedAt, &p.UpdatedAt, &p.GroupName)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProposalRepo) Create(ctx context.Context, p *domain.Proposal) error {
	p.CreatedAt = utc(p.CreatedAt)
	p.UpdatedAt = p.CreatedAt
	if p.Status == "" {
		p.Status = domain.ProposalActive
	}
	_, err := r.db.exec(ctx, r.db, `
		INSERT INTO proposals (id, title, description, image_url, location, group_id, created_by,
			expires_at, event_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Title, p.Description, p.ImageURL, p.Location, p.GroupID, p.CreatedBy,
		utcPtr(p.ExpiresAt), utcPtr(p.EventDate), string(p.Status), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return mapErr(err, "insert proposal")
	}
	if p.Votes == nil {
		p.Votes = []domain.Vote{}
	}
	return nil
}

func (r *ProposalRepo) GetByID(ctx context.Context, id string) (*domain.Proposal, error) {
	p, err := scanProposal(r.db.queryRow(ctx, r.db, proposalSelect+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	if err := r.attachVotes(ctx, []*domain.Proposal{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// ListForGroups returns proposals of the given groups, newest first.
func (r *ProposalRepo) ListForGroups(ctx context.Context, groupIDs []string) ([]*domain.Proposal, error) {
	if len(groupIDs) == 0 {
		return []*domain.Proposal{}, nil
	}
	rows, err := r.db.query(ctx, r.db,
		proposalSelect+` WHERE p.group_id IN (`+placeholders(len(groupIDs))+`) ORDER BY p.created_at DESC, p.id DESC`,
		stringArgs(groupIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	res := []*domain.Proposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		res = append(res, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	if err := r.attachVotes(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *ProposalRepo) attachVotes(ctx context.Context, ps []*domain.Proposal) error {
	if len(ps) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Proposal, len(ps))
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}
	rows, err := r.db.query(ctx, r.db, `
		SELECT proposal_id, user_id, vote_type, created_at, updated_at
		FROM votes WHERE proposal_id IN (`+placeholders(len(ids))+`)
		ORDER BY created_at ASC
	`, stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.ProposalID, &v.UserID, &v.VoteType, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return fmt.Errorf("scan vote: %w", err)
		}
		if p := byID[v.ProposalID]; p != nil {
			p.Votes = append(p.Votes, v)
		}
	}
	return rows.Err()
}

func (r *ProposalRepo) Update(ctx context.Context, p *domain.Proposal) error {
	p.UpdatedAt = utc(p.UpdatedAt)
	res, err := r.db.exec(ctx, r.db, `
		UPDATE proposals
		SET title = ?, description = ?, image_url = ?, location = ?, expires_at = ?, event_date = ?, updated_at = ?
		WHERE id = ?
	`, p.Title, p.Description, p.ImageURL, p.Location, utcPtr(p.ExpiresAt), utcPtr(p.EventDate), p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ProposalRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, r.db, `DELETE FROM proposals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete proposal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ProposalRepo) SetStatus(ctx context.Context, id string, status domain.ProposalStatus, at time.Time) error {
	res, err := r.db.exec(ctx, r.db, `
		UPDATE proposals SET status = ?, updated_at = ? WHERE id = ? AND status = 'active'
	`, string(status), utc(at), id)
	if err != nil {
		return fmt.Errorf("set proposal status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	return proposalGone(ctx, r.db, r.db, id)
}

// proposalGone explains why a guarded write on proposal id matched nothing.
func proposalGone(ctx context.Context, db *DB, q runner, id string) error {
	var one int
	err := db.queryRow(ctx, q, `SELECT 1 FROM proposals WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check proposal: %w", err)
	}
	return domain.ErrProposalClosed
}
