package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"huddle/internal/api"
	"huddle/internal/changefeed"
	"huddle/internal/domain"
)

// EventService manages calendar events and attendance.
type EventService struct {
	events     domain.EventRepository
	attendance domain.AttendanceRepository
	proposals  domain.ProposalRepository
	groups     domain.GroupRepository
	members    domain.MembershipRepository
	feed       changefeed.Publisher
}

func NewEventService(
	events domain.EventRepository,
	attendance domain.AttendanceRepository,
	proposals domain.ProposalRepository,
	groups domain.GroupRepository,
	members domain.MembershipRepository,
	feed changefeed.Publisher,
) *EventService {
	return &EventService{
		events:     events,
		attendance: attendance,
		proposals:  proposals,
		groups:     groups,
		members:    members,
		feed:       feed,
	}
}

func eventColumns(e *domain.Event) map[string]string {
	cols := map[string]string{"id": e.ID, "group_id": e.GroupID}
	if e.ProposalID != nil {
		cols["proposal_id"] = *e.ProposalID
	}
	return cols
}

// List returns events with attendees by ascending start date. With an
// empty groupID it covers every group the caller belongs to.
func (s *EventService) List(ctx context.Context, userID, groupID string) ([]*domain.Event, error) {
	groupIDs, err := scopeGroups(ctx, s.groups, s.members, userID, groupID)
	if err != nil {
		return nil, err
	}
	return s.events.ListForGroups(ctx, groupIDs)
}

func (s *EventService) Get(ctx context.Context, userID, eventID string) (*domain.Event, error) {
	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, domain.ErrNotFound
	}
	if _, err := requireMember(ctx, s.members, e.GroupID, userID); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *EventService) Create(ctx context.Context, userID string, in api.CreateEventRequest) (*domain.Event, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title must not be blank")
	}
	if in.StartDate.IsZero() {
		return nil, invalid("start_date is required")
	}
	if in.EndDate != nil && in.EndDate.Before(in.StartDate) {
		return nil, invalid("end_date must not be before start_date")
	}
	if _, err := requireMember(ctx, s.members, in.GroupID, userID); err != nil {
		return nil, err
	}
	e := &domain.Event{
		ID:          uuid.NewString(),
		Title:       title,
		Description: trimOrNil(in.Description),
		Location:    trimOrNil(in.Location),
		ImageURL:    trimOrNil(in.ImageURL),
		GroupID:     in.GroupID,
		CreatedBy:   userID,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		CreatedAt:   time.Now(),
	}
	return s.store(ctx, e)
}

// CreateFromProposal turns a passed proposal into an event dated at the
// proposal's event date. Calling it again returns the existing event.
func (s *EventService) CreateFromProposal(ctx context.Context, userID, proposalID string) (*domain.Event, error) {
	p, err := s.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	if _, err := requireMember(ctx, s.members, p.GroupID, userID); err != nil {
		return nil, err
	}
	if existing, err := s.events.GetByProposalID(ctx, p.ID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}
	if p.Status != domain.ProposalPassed {
		return nil, invalid("only passed proposals become events")
	}
	if p.EventDate == nil {
		return nil, invalid("proposal has no event date")
	}

	e := &domain.Event{
		ID:          uuid.NewString(),
		Title:       p.Title,
		Description: p.Description,
		Location:    p.Location,
		GroupID:     p.GroupID,
		CreatedBy:   userID,
		ProposalID:  &p.ID,
		StartDate:   *p.EventDate,
		CreatedAt:   time.Now(),
	}
	created, err := s.store(ctx, e)
	if errors.Is(err, domain.ErrConflict) {
		existing, gerr := s.events.GetByProposalID(ctx, p.ID)
		if gerr != nil {
			return nil, gerr
		}
		if existing != nil {
			return existing, nil
		}
	}
	return created, err
}

func (s *EventService) store(ctx context.Context, e *domain.Event) (*domain.Event, error) {
	if err := s.events.Create(ctx, e); err != nil {
		return nil, err
	}
	stored, err := s.events.GetByID(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("event vanished after insert: %w", domain.ErrInternal)
	}
	s.feed.Publish(changefeed.NewChange(changefeed.TableEvents, changefeed.Insert, stored, eventColumns(stored)))
	return stored, nil
}

// SetAttendance records the caller's answer for an event, replacing any
// earlier answer.
func (s *EventService) SetAttendance(ctx context.Context, userID, eventID string, status domain.AttendanceStatus) (*domain.Attendance, error) {
	if !status.Valid() {
		return nil, invalid("status must be attending, not_attending or pending")
	}
	e, err := s.Get(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	op := changefeed.Insert
	for _, a := range e.Attendees {
		if a.UserID == userID {
			op = changefeed.Update
			break
		}
	}
	a := &domain.Attendance{EventID: e.ID, UserID: userID, Status: status, UpdatedAt: time.Now()}
	if err := s.attendance.Upsert(ctx, a); err != nil {
		return nil, err
	}
	s.feed.Publish(changefeed.NewChange(changefeed.TableAttendees, op, a,
		map[string]string{"event_id": e.ID, "group_id": e.GroupID, "user_id": userID}))
	return a, nil
}
