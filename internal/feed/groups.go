package feed

import (
	"context"
	"strings"
	"sync"

	"huddle/internal/api"
	"huddle/internal/domain"
)

// Groups is the caller's group list. Every mutation refetches it.
type Groups struct {
	gw      GroupGateway
	session *domain.Session
	opts    Options
	seq     sequencer

	mu     sync.RWMutex
	groups []domain.Group
}

func NewGroups(gw GroupGateway, session *domain.Session, opts Options) *Groups {
	return &Groups{gw: gw, session: session, opts: opts}
}

// Refresh refetches the list. On error the previous list is kept.
func (f *Groups) Refresh(ctx context.Context) {
	applied, err := refetch(ctx, &f.mu, &f.seq, f.gw.ListGroups, func(list []*domain.Group) {
		f.groups = make([]domain.Group, 0, len(list))
		for _, g := range list {
			f.groups = append(f.groups, *g)
		}
	})
	if err != nil {
		f.opts.logger().Printf("feed: list groups: %v", err)
		return
	}
	if applied {
		f.opts.notify()
	}
}

// List returns a copy of the groups with member count and the caller's
// role.
func (f *Groups) List() []domain.Group {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]domain.Group(nil), f.groups...)
}

func (f *Groups) Create(ctx context.Context, name string, description, imageURL *string) (*domain.Group, error) {
	if err := requireSession(f.session); err != nil {
		return nil, err
	}
	g, err := f.gw.CreateGroup(ctx, api.CreateGroupRequest{Name: name, Description: description, ImageURL: imageURL})
	if err != nil {
		return nil, err
	}
	f.Refresh(ctx)
	return g, nil
}

// JoinByInviteCode joins the group with the given code. Joining a group
// the caller already belongs to succeeds without changes.
func (f *Groups) JoinByInviteCode(ctx context.Context, code string) (*domain.Group, error) {
	if err := requireSession(f.session); err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrInvalidInput
	}
	g, err := f.gw.JoinGroup(ctx, code)
	if err != nil {
		return nil, err
	}
	f.Refresh(ctx)
	return g, nil
}

func (f *Groups) Leave(ctx context.Context, groupID string) error {
	if err := requireSession(f.session); err != nil {
		return err
	}
	if err := f.gw.LeaveGroup(ctx, groupID); err != nil {
		return err
	}
	f.Refresh(ctx)
	return nil
}
