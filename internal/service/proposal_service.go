package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"huddle/internal/api"
	"huddle/internal/changefeed"
	"huddle/internal/domain"
)

// ProposalService manages proposals, votes and proposal comments.
type ProposalService struct {
	proposals domain.ProposalRepository
	votes     domain.VoteRepository
	comments  domain.CommentRepository
	groups    domain.GroupRepository
	members   domain.MembershipRepository
	feed      changefeed.Publisher
}

func NewProposalService(
	proposals domain.ProposalRepository,
	votes domain.VoteRepository,
	comments domain.CommentRepository,
	groups domain.GroupRepository,
	members domain.MembershipRepository,
	feed changefeed.Publisher,
) *ProposalService {
	return &ProposalService{
		proposals: proposals,
		votes:     votes,
		comments:  comments,
		groups:    groups,
		members:   members,
		feed:      feed,
	}
}

func proposalColumns(p *domain.Proposal) map[string]string {
	return map[string]string{"id": p.ID, "group_id": p.GroupID}
}

// List returns proposals with their votes, newest first. With an empty
// groupID it covers every group the caller belongs to.
func (s *ProposalService) List(ctx context.Context, userID, groupID string) ([]*domain.Proposal, error) {
	groupIDs, err := scopeGroups(ctx, s.groups, s.members, userID, groupID)
	if err != nil {
		return nil, err
	}
	return s.proposals.ListForGroups(ctx, groupIDs)
}

// scopeGroups resolves the groups a listing covers for userID.
func scopeGroups(ctx context.Context, groups domain.GroupRepository, members domain.MembershipRepository, userID, groupID string) ([]string, error) {
	if groupID != "" {
		if _, err := requireMember(ctx, members, groupID, userID); err != nil {
			return nil, err
		}
		return []string{groupID}, nil
	}
	ids, err := groups.IDsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	return ids, nil
}

// Get returns a proposal of one of the caller's groups.
func (s *ProposalService) Get(ctx context.Context, userID, proposalID string) (*domain.Proposal, error) {
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
	return p, nil
}

func (s *ProposalService) Create(ctx context.Context, userID string, in api.CreateProposalRequest) (*domain.Proposal, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title must not be blank")
	}
	if _, err := requireMember(ctx, s.members, in.GroupID, userID); err != nil {
		return nil, err
	}

	p := &domain.Proposal{
		ID:          uuid.NewString(),
		Title:       title,
		Description: trimOrNil(in.Description),
		ImageURL:    trimOrNil(in.ImageURL),
		Location:    trimOrNil(in.Location),
		GroupID:     in.GroupID,
		CreatedBy:   userID,
		ExpiresAt:   in.ExpiresAt,
		EventDate:   in.EventDate,
		Status:      domain.ProposalActive,
		CreatedAt:   time.Now(),
	}
	if err := s.proposals.Create(ctx, p); err != nil {
		return nil, err
	}
	created, err := s.proposals.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if created != nil {
		p = created
	}
	s.feed.Publish(changefeed.NewChange(changefeed.TableProposals, changefeed.Insert, p, proposalColumns(p)))
	return p, nil
}

// Update edits an active proposal. Only its creator may edit it.
func (s *ProposalService) Update(ctx context.Context, userID, proposalID string, in api.UpdateProposalRequest) (*domain.Proposal, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, userID, proposalID)
	if err != nil {
		return nil, err
	}
	if p.CreatedBy != userID {
		return nil, fmt.Errorf("only the creator may edit a proposal: %w", domain.ErrForbidden)
	}
	if p.Status != domain.ProposalActive {
		return nil, domain.ErrProposalClosed
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, invalid("title must not be blank")
		}
		p.Title = title
	}
	if in.Description != nil {
		p.Description = trimOrNil(in.Description)
	}
	if in.ImageURL != nil {
		p.ImageURL = trimOrNil(in.ImageURL)
	}
	if in.Location != nil {
		p.Location = trimOrNil(in.Location)
	}
	if in.ExpiresAt != nil {
		p.ExpiresAt = in.ExpiresAt
	}
	if in.EventDate != nil {
		p.EventDate = in.EventDate
	}
	p.UpdatedAt = time.Now()
	if err := s.proposals.Update(ctx, p); err != nil {
		return nil, err
	}
	s.feed.Publish(changefeed.NewChange(changefeed.TableProposals, changefeed.Update, p, proposalColumns(p)))
	return p, nil
}

// Delete removes a proposal. Allowed for its creator and group admins.
func (s *ProposalService) Delete(ctx context.Context, userID, proposalID string) error {
	p, err := s.Get(ctx, userID, proposalID)
	if err != nil {
		return err
	}
	if err := s.requireCreatorOrAdmin(ctx, p, userID); err != nil {
		return err
	}
	if err := s.proposals.Delete(ctx, p.ID); err != nil {
		return err
	}
	s.feed.Publish(changefeed.NewChange(changefeed.TableProposals, changefeed.Delete,
		map[string]string{"id": p.ID, "group_id": p.GroupID}, proposalColumns(p)))
	return nil
}

// SetStatus closes voting with a terminal outcome. Allowed for the
// creator and group admins, and only while the proposal is active.
func (s *ProposalService) SetStatus(ctx context.Context, userID, proposalID string, status domain.ProposalStatus) (*domain.Proposal, error) {
	if !status.Terminal() {
		return nil, invalid("status must be closed, passed or failed")
	}
	p, err := s.Get(ctx, userID, proposalID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCreatorOrAdmin(ctx, p, userID); err != nil {
		return nil, err
	}
	if err := s.proposals.SetStatus(ctx, p.ID, status, time.Now()); err != nil {
		return nil, err
	}
	updated, err := s.proposals.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, domain.ErrNotFound
	}
	s.feed.Publish(changefeed.NewChange(changefeed.TableProposals, changefeed.Update, updated, proposalColumns(updated)))
	return updated, nil
}

func (s *ProposalService) requireCreatorOrAdmin(ctx context.Context, p *domain.Proposal, userID string) error {
	if p.CreatedBy == userID {
		return nil
	}
	_, err := requireAdmin(ctx, s.members, p.GroupID, userID)
	return err
}

// CastVote records the caller's vote, replacing any earlier vote of the
// caller on the same proposal. Votes on proposals that are no longer
// active or past their deadline are rejected with ErrProposalClosed.
func (s *ProposalService) CastVote(ctx context.Context, userID, proposalID string, voteType domain.VoteType) (*domain.Vote, error) {
	if !voteType.Valid() {
		return nil, invalid("vote_type must be yes, no or abstain")
	}
	p, err := s.Get(ctx, userID, proposalID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if !p.AcceptsVotes(now) {
		return nil, domain.ErrProposalClosed
	}

	op := changefeed.Insert
	for _, v := range p.Votes {
		if v.UserID == userID {
			op = changefeed.Update
			break
		}
	}
	v := &domain.Vote{ProposalID: p.ID, UserID: userID, VoteType: voteType, UpdatedAt: now}
	if err := s.votes.Upsert(ctx, v); err != nil {
		return nil, err
	}
	s.feed.Publish(changefeed.NewChange(changefeed.TableVotes, op, v,
		map[string]string{"proposal_id": p.ID, "group_id": p.GroupID, "user_id": userID}))
	return v, nil
}

func (s *ProposalService) ListComments(ctx context.Context, userID, proposalID string) ([]*domain.Comment, error) {
	p, err := s.Get(ctx, userID, proposalID)
	if err != nil {
		return nil, err
	}
	return s.comments.ListForProposal(ctx, p.ID)
}

func (s *ProposalService) AddComment(ctx context.Context, userID, proposalID string, in api.CommentRequest) (*domain.Comment, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, invalid("comment must not be blank")
	}
	p, err := s.Get(ctx, userID, proposalID)
	if err != nil {
		return nil, err
	}
	c := &domain.Comment{
		ID:         uuid.NewString(),
		ProposalID: p.ID,
		UserID:     userID,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, err
	}
	s.feed.Publish(changefeed.NewChange(changefeed.TableComments, changefeed.Insert, c,
		map[string]string{"id": c.ID, "proposal_id": p.ID, "group_id": p.GroupID}))
	return c, nil
}
