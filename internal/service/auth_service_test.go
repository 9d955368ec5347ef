package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"huddle/internal/api"
	"huddle/internal/domain"
	"huddle/internal/security"
	"huddle/internal/service"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User, p *domain.Profile) error {
	args := m.Called(ctx, u, p)
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) SetSignedOut(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

type MockProfileRepo struct {
	mock.Mock
}

func (m *MockProfileRepo) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

func (m *MockProfileRepo) ListByIDs(ctx context.Context, ids []string) ([]*domain.Profile, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Profile), args.Error(1)
}

func (m *MockProfileRepo) Update(ctx context.Context, p *domain.Profile) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func newAuthService(users *MockUserRepo, profiles *MockProfileRepo) (*service.AuthService, *security.TokenService) {
	tokens := security.NewTokenService("secret", time.Hour)
	hasher := security.NewPasswordHasher(bcrypt.MinCost)
	return service.NewAuthService(users, profiles, tokens, hasher), tokens
}

func TestRegister(t *testing.T) {
	users := new(MockUserRepo)
	svc, _ := newAuthService(users, new(MockProfileRepo))

	t.Run("Success", func(t *testing.T) {
		name := "Ana"
		users.On("GetByEmail", mock.Anything, "ana@example.com").Return(nil, nil).Once()
		users.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
			return u.Email == "ana@example.com" && u.IsActive && u.HashedPassword != "Password1!"
		}), mock.MatchedBy(func(p *domain.Profile) bool {
			return p.DisplayName != nil && *p.DisplayName == "Ana"
		})).Return(nil).Once()

		user, profile, err := svc.Register(context.Background(), api.RegisterRequest{
			Email:       "Ana@Example.com",
			Password:    "Password1!",
			DisplayName: &name,
		})
		require.NoError(t, err)
		assert.Equal(t, "ana@example.com", user.Email)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "Ana", *profile.DisplayName)
	})

	t.Run("EmailTaken", func(t *testing.T) {
		users.On("GetByEmail", mock.Anything, "taken@example.com").Return(&domain.User{ID: "u1"}, nil).Once()

		user, _, err := svc.Register(context.Background(), api.RegisterRequest{
			Email:    "taken@example.com",
			Password: "Password1!",
		})
		assert.Nil(t, user)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("ShortPassword", func(t *testing.T) {
		_, _, err := svc.Register(context.Background(), api.RegisterRequest{
			Email:    "short@example.com",
			Password: "abc",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestLoginAndAuthenticate(t *testing.T) {
	users := new(MockUserRepo)
	profiles := new(MockProfileRepo)
	svc, tokens := newAuthService(users, profiles)

	hashed, err := security.NewPasswordHasher(bcrypt.MinCost).Hash("Password1!")
	require.NoError(t, err)
	user := &domain.User{ID: "u1", Email: "ana@example.com", HashedPassword: hashed, IsActive: true}
	users.On("GetByEmail", mock.Anything, "ana@example.com").Return(user, nil)
	users.On("GetByEmail", mock.Anything, "nobody@example.com").Return(nil, nil)
	profiles.On("Get", mock.Anything, "u1").Return(&domain.Profile{UserID: "u1"}, nil)

	t.Run("Success", func(t *testing.T) {
		resp, err := svc.Login(context.Background(), api.LoginRequest{Email: "ana@example.com", Password: "Password1!"})
		require.NoError(t, err)
		assert.Equal(t, "bearer", resp.TokenType)
		assert.Equal(t, "u1", resp.User.ID)

		claims, err := tokens.Verify(resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.UserID)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := svc.Login(context.Background(), api.LoginRequest{Email: "ana@example.com", Password: "wrong-password"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		_, err := svc.Login(context.Background(), api.LoginRequest{Email: "nobody@example.com", Password: "Password1!"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("AuthenticateGarbage", func(t *testing.T) {
		_, err := svc.Authenticate(context.Background(), "not-a-token")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("TokenBeforeSignOutRejected", func(t *testing.T) {
		token, err := tokens.IssueWithTTL("u2", time.Hour)
		require.NoError(t, err)
		signedOut := time.Now().Add(2 * time.Second)
		users.On("GetByID", mock.Anything, "u2").Return(&domain.User{ID: "u2", IsActive: true, SignedOutAt: &signedOut}, nil).Once()

		_, err = svc.Authenticate(context.Background(), token)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("AuthenticateSuccess", func(t *testing.T) {
		token, err := tokens.Issue("u1")
		require.NoError(t, err)
		users.On("GetByID", mock.Anything, "u1").Return(user, nil).Once()

		got, err := svc.Authenticate(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)
	})
}
