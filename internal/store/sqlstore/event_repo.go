package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"huddle/internal/domain"
)

type EventRepo struct {
	db *DB
}

func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

var _ domain.EventRepository = (*EventRepo)(nil)

const eventSelect = `
	SELECT e.id, e.title, e.description, e.location, COALESCE(e.image_url, p.image_url), e.group_id, e.created_by,
		e.proposal_id, e.start_date, e.end_date, e.created_at, e.updated_at, g.name, g.image_url
	FROM events e
	JOIN groups g ON g.id = e.group_id
	LEFT JOIN proposals p ON p.id = e.proposal_id
`

func scanEvent(s scanner) (*domain.Event, error) {
	e := &domain.Event{Attendees: []domain.Attendance{}}
	err := s.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.ImageURL, &e.GroupID, &e.CreatedBy,
		&e.ProposalID, &e.StartDate, &e.EndDate, &e.CreatedAt, &e.UpdatedAt, &e.GroupName, &e.GroupImageURL)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *EventRepo) Create(ctx context.Context, e *domain.Event) error {
	e.CreatedAt = utc(e.CreatedAt)
	e.UpdatedAt = e.CreatedAt
	e.StartDate = utc(e.StartDate)
	_, err := r.db.exec(ctx, r.db, `
		INSERT INTO events (id, title, description, location, image_url, group_id, created_by, proposal_id,
			start_date, end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Title, e.Description, e.Location, e.ImageURL, e.GroupID, e.CreatedBy, e.ProposalID,
		e.StartDate, utcPtr(e.EndDate), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return mapErr(err, "insert event")
	}
	if e.Attendees == nil {
		e.Attendees = []domain.Attendance{}
	}
	return nil
}

func (r *EventRepo) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	return r.getOne(ctx, `e.id = ?`, id)
}

func (r *EventRepo) GetByProposalID(ctx context.Context, proposalID string) (*domain.Event, error) {
	return r.getOne(ctx, `e.proposal_id = ?`, proposalID)
}

func (r *EventRepo) getOne(ctx context.Context, where string, arg any) (*domain.Event, error) {
	e, err := scanEvent(r.db.queryRow(ctx, r.db, eventSelect+` WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if err := r.attachAttendees(ctx, []*domain.Event{e}); err != nil {
		return nil, err
	}
	return e, nil
}

// ListForGroups returns events of the given groups by ascending start date.
func (r *EventRepo) ListForGroups(ctx context.Context, groupIDs []string) ([]*domain.Event, error) {
	if len(groupIDs) == 0 {
		return []*domain.Event{}, nil
	}
	rows, err := r.db.query(ctx, r.db,
		eventSelect+` WHERE e.group_id IN (`+placeholders(len(groupIDs))+`) ORDER BY e.start_date ASC, e.id ASC`,
		stringArgs(groupIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	res := []*domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		res = append(res, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if err := r.attachAttendees(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *EventRepo) attachAttendees(ctx context.Context, es []*domain.Event) error {
	if len(es) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Event, len(es))
	ids := make([]string, 0, len(es))
	for _, e := range es {
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}
	rows, err := r.db.query(ctx, r.db, `
		SELECT event_id, user_id, status, updated_at
		FROM event_attendees WHERE event_id IN (`+placeholders(len(ids))+`)
		ORDER BY updated_at ASC
	`, stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.Attendance
		if err := rows.Scan(&a.EventID, &a.UserID, &a.Status, &a.UpdatedAt); err != nil {
			return fmt.Errorf("scan attendee: %w", err)
		}
		if e := byID[a.EventID]; e != nil {
			e.Attendees = append(e.Attendees, a)
		}
	}
	return rows.Err()
}
