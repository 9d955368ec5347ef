package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"huddle/internal/api"
	"huddle/internal/changefeed"
	"huddle/internal/domain"
	"huddle/internal/service"
)

type MockGroupRepo struct {
	mock.Mock
}

func (m *MockGroupRepo) Create(ctx context.Context, g *domain.Group) error {
	args := m.Called(ctx, g)
	return args.Error(0)
}

func (m *MockGroupRepo) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Group), args.Error(1)
}

func (m *MockGroupRepo) GetByInviteCode(ctx context.Context, code string) (*domain.Group, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Group), args.Error(1)
}

func (m *MockGroupRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Group, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Group), args.Error(1)
}

func (m *MockGroupRepo) IDsForUser(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockGroupRepo) Update(ctx context.Context, g *domain.Group) error {
	args := m.Called(ctx, g)
	return args.Error(0)
}

type MockMembershipRepo struct {
	mock.Mock
}

func (m *MockMembershipRepo) Add(ctx context.Context, mem *domain.Membership) (bool, error) {
	args := m.Called(ctx, mem)
	return args.Bool(0), args.Error(1)
}

func (m *MockMembershipRepo) Get(ctx context.Context, groupID, userID string) (*domain.Membership, error) {
	args := m.Called(ctx, groupID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Membership), args.Error(1)
}

func (m *MockMembershipRepo) ListForGroup(ctx context.Context, groupID string) ([]*domain.Membership, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Membership), args.Error(1)
}

func (m *MockMembershipRepo) SetRole(ctx context.Context, groupID, userID string, role domain.Role) error {
	args := m.Called(ctx, groupID, userID, role)
	return args.Error(0)
}

func (m *MockMembershipRepo) Remove(ctx context.Context, groupID, userID string) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

// recorder keeps every published change.
type recorder struct {
	mu      sync.Mutex
	changes []changefeed.Change
}

func (r *recorder) Publish(c changefeed.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) tables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.Table)
	}
	return out
}

func TestJoinByInviteCode(t *testing.T) {
	group := &domain.Group{ID: "g1", Name: "Hikers", InviteCode: "AB12CD", CreatedAt: time.Now()}

	t.Run("NormalizesCodeAndPublishesOnce", func(t *testing.T) {
		groups := new(MockGroupRepo)
		members := new(MockMembershipRepo)
		feed := &recorder{}
		svc := service.NewGroupService(groups, members, feed)

		groups.On("GetByInviteCode", mock.Anything, "AB12CD").Return(group, nil)
		groups.On("GetByID", mock.Anything, "g1").Return(group, nil)
		members.On("Add", mock.Anything, mock.Anything).Return(true, nil).Once()
		members.On("Add", mock.Anything, mock.Anything).Return(false, nil).Once()
		members.On("Get", mock.Anything, "g1", "u2").Return(&domain.Membership{GroupID: "g1", UserID: "u2", Role: domain.RoleMember}, nil)

		first, err := svc.JoinByInviteCode(context.Background(), "u2", "  ab12cd ")
		require.NoError(t, err)
		assert.Equal(t, "g1", first.ID)
		assert.Equal(t, domain.RoleMember, first.UserRole)

		second, err := svc.JoinByInviteCode(context.Background(), "u2", "AB12CD")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		assert.Equal(t, []string{changefeed.TableMembers}, feed.tables())
		members.AssertExpectations(t)
	})

	t.Run("UnknownCode", func(t *testing.T) {
		groups := new(MockGroupRepo)
		svc := service.NewGroupService(groups, new(MockMembershipRepo), changefeed.Discard)
		groups.On("GetByInviteCode", mock.Anything, "ZZZZZZ").Return(nil, nil)

		_, err := svc.JoinByInviteCode(context.Background(), "u2", "zzzzzz")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("BlankCode", func(t *testing.T) {
		svc := service.NewGroupService(new(MockGroupRepo), new(MockMembershipRepo), changefeed.Discard)
		_, err := svc.JoinByInviteCode(context.Background(), "u2", "   ")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestGroupCreateRetriesInviteCode(t *testing.T) {
	groups := new(MockGroupRepo)
	svc := service.NewGroupService(groups, new(MockMembershipRepo), changefeed.Discard)

	groups.On("Create", mock.Anything, mock.Anything).Return(domain.ErrConflict).Twice()
	groups.On("Create", mock.Anything, mock.MatchedBy(func(g *domain.Group) bool {
		return len(g.InviteCode) == 6 && g.InviteCode == service.NormalizeInviteCode(g.InviteCode)
	})).Return(nil).Once()

	g, err := svc.Create(context.Background(), "u1", api.CreateGroupRequest{Name: "  Hikers  "})
	require.NoError(t, err)
	assert.Equal(t, "Hikers", g.Name)
	groups.AssertNumberOfCalls(t, "Create", 3)
}

func TestGroupAdminChecks(t *testing.T) {
	members := new(MockMembershipRepo)
	svc := service.NewGroupService(new(MockGroupRepo), members, changefeed.Discard)
	members.On("Get", mock.Anything, "g1", "plain").Return(&domain.Membership{Role: domain.RoleMember}, nil)
	members.On("Get", mock.Anything, "g1", "stranger").Return(nil, nil)

	t.Run("MemberCannotRemove", func(t *testing.T) {
		err := svc.RemoveMember(context.Background(), "plain", "g1", "other")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("StrangerCannotList", func(t *testing.T) {
		_, err := svc.ListMembers(context.Background(), "stranger", "g1")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("RemoveSelfRejected", func(t *testing.T) {
		err := svc.RemoveMember(context.Background(), "plain", "g1", "plain")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}
