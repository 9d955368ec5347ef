package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"huddle/internal/api"
	"huddle/internal/changefeed"
	"huddle/internal/domain"
)

const (
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	inviteCodeLength   = 6
	inviteCodeAttempts = 5
)

// GroupService manages groups and their memberships.
type GroupService struct {
	groups  domain.GroupRepository
	members domain.MembershipRepository
	feed    changefeed.Publisher
}

func NewGroupService(groups domain.GroupRepository, members domain.MembershipRepository, feed changefeed.Publisher) *GroupService {
	return &GroupService{groups: groups, members: members, feed: feed}
}

// NormalizeInviteCode trims and upper-cases a user supplied code.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func newInviteCode() (string, error) {
	b := make([]byte, inviteCodeLength)
	alphabetLen := big.NewInt(int64(len(inviteCodeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		b[i] = inviteCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}

func (s *GroupService) ListForUser(ctx context.Context, userID string) ([]*domain.Group, error) {
	groups, err := s.groups.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []*domain.Group{}
	}
	return groups, nil
}

// Get returns a group the caller belongs to, annotated with the caller's role.
func (s *GroupService) Get(ctx context.Context, userID, groupID string) (*domain.Group, error) {
	m, err := requireMember(ctx, s.members, groupID, userID)
	if err != nil {
		return nil, err
	}
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, domain.ErrNotFound
	}
	g.UserRole = m.Role
	return g, nil
}

// Create stores a new group with a fresh invite code. The creator becomes
// its first admin.
func (s *GroupService) Create(ctx context.Context, userID string, in api.CreateGroupRequest) (*domain.Group, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name must not be blank")
	}

	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := newInviteCode()
		if err != nil {
			return nil, fmt.Errorf("generate invite code: %w", err)
		}
		g := &domain.Group{
			ID:          uuid.NewString(),
			Name:        name,
			Description: trimOrNil(in.Description),
			ImageURL:    trimOrNil(in.ImageURL),
			InviteCode:  code,
			CreatedBy:   userID,
			CreatedAt:   time.Now(),
		}
		err = s.groups.Create(ctx, g)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.feed.Publish(changefeed.NewChange(changefeed.TableGroups, changefeed.Insert, g,
			map[string]string{"id": g.ID, "group_id": g.ID}))
		return g, nil
	}
	return nil, fmt.Errorf("could not allocate a unique invite code: %w", domain.ErrConflict)
}

// JoinByInviteCode adds the caller to the group with the given code.
// Joining a group the caller already belongs to changes nothing and
// returns the group.
func (s *GroupService) JoinByInviteCode(ctx context.Context, userID, code string) (*domain.Group, error) {
	code = NormalizeInviteCode(code)
	if code == "" {
		return nil, invalid("invite code is required")
	}
	g, err := s.groups.GetByInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("no group with that invite code: %w", domain.ErrNotFound)
	}

	m := &domain.Membership{
		ID:       uuid.NewString(),
		GroupID:  g.ID,
		UserID:   userID,
		Role:     domain.RoleMember,
		JoinedAt: time.Now(),
	}
	created, err := s.members.Add(ctx, m)
	if err != nil {
		return nil, err
	}
	if created {
		s.feed.Publish(changefeed.NewChange(changefeed.TableMembers, changefeed.Insert, m,
			map[string]string{"id": m.ID, "group_id": g.ID, "user_id": userID}))
	}
	return s.Get(ctx, userID, g.ID)
}

// Leave removes the caller's own membership.
func (s *GroupService) Leave(ctx context.Context, userID, groupID string) error {
	return s.removeMembership(ctx, groupID, userID)
}

func (s *GroupService) removeMembership(ctx context.Context, groupID, userID string) error {
	if err := s.members.Remove(ctx, groupID, userID); err != nil {
		return err
	}
	s.feed.Publish(changefeed.NewChange(changefeed.TableMembers, changefeed.Delete,
		map[string]string{"group_id": groupID, "user_id": userID},
		map[string]string{"group_id": groupID, "user_id": userID}))
	return nil
}

// Update changes group details. Admins only.
func (s *GroupService) Update(ctx context.Context, userID, groupID string, in api.UpdateGroupRequest) (*domain.Group, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	g, err := s.Get(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if g.UserRole != domain.RoleAdmin {
		return nil, fmt.Errorf("group admin required: %w", domain.ErrForbidden)
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, invalid("name must not be blank")
		}
		g.Name = name
	}
	if in.Description != nil {
		g.Description = trimOrNil(in.Description)
	}
	if in.ImageURL != nil {
		g.ImageURL = trimOrNil(in.ImageURL)
	}
	g.UpdatedAt = time.Now()
	if err := s.groups.Update(ctx, g); err != nil {
		return nil, err
	}
	s.feed.Publish(changefeed.NewChange(changefeed.TableGroups, changefeed.Update, g,
		map[string]string{"id": g.ID, "group_id": g.ID}))
	return g, nil
}

func (s *GroupService) ListMembers(ctx context.Context, userID, groupID string) ([]*domain.Membership, error) {
	if _, err := requireMember(ctx, s.members, groupID, userID); err != nil {
		return nil, err
	}
	list, err := s.members.ListForGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*domain.Membership{}
	}
	return list, nil
}

// RemoveMember removes another member. Admins only; use Leave for self.
func (s *GroupService) RemoveMember(ctx context.Context, userID, groupID, memberID string) error {
	if memberID == userID {
		return invalid("use leave to remove yourself")
	}
	if _, err := requireAdmin(ctx, s.members, groupID, userID); err != nil {
		return err
	}
	return s.removeMembership(ctx, groupID, memberID)
}

// PromoteMember makes memberID an admin. Admins only.
func (s *GroupService) PromoteMember(ctx context.Context, userID, groupID, memberID string) error {
	if _, err := requireAdmin(ctx, s.members, groupID, userID); err != nil {
		return err
	}
	if err := s.members.SetRole(ctx, groupID, memberID, domain.RoleAdmin); err != nil {
		return err
	}
	s.feed.Publish(changefeed.NewChange(changefeed.TableMembers, changefeed.Update,
		map[string]string{"group_id": groupID, "user_id": memberID, "role": string(domain.RoleAdmin)},
		map[string]string{"group_id": groupID, "user_id": memberID}))
	return nil
}
