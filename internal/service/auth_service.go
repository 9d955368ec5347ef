package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"huddle/internal/api"
	"huddle/internal/domain"
	"huddle/internal/security"
)

// AuthService handles registration, login, logout and token checks.
type AuthService struct {
	users    domain.UserRepository
	profiles domain.ProfileRepository
	tokens   *security.TokenService
	hash     *security.PasswordHasher
}

func NewAuthService(users domain.UserRepository, profiles domain.ProfileRepository, tokens *security.TokenService, hash *security.PasswordHasher) *AuthService {
	return &AuthService{
		users:    users,
		profiles: profiles,
		tokens:   tokens,
		hash:     hash,
	}
}

// Register creates an account together with its profile.
func (s *AuthService) Register(ctx context.Context, in api.RegisterRequest) (*domain.User, *domain.Profile, error) {
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if existing, err := s.users.GetByEmail(ctx, email); err != nil {
		return nil, nil, fmt.Errorf("check email: %w", err)
	} else if existing != nil {
		return nil, nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}

	hashed, err := s.hash.Hash(in.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:             uuid.NewString(),
		Email:          email,
		HashedPassword: hashed,
		IsActive:       true,
		CreatedAt:      time.Now(),
	}
	profile := &domain.Profile{
		Username:    trimOrNil(in.Username),
		DisplayName: trimOrNil(in.DisplayName),
		FirstName:   trimOrNil(in.FirstName),
		LastName:    trimOrNil(in.LastName),
	}
	if err := s.users.Create(ctx, user, profile); err != nil {
		return nil, nil, err
	}
	return user, profile, nil
}

func (s *AuthService) Login(ctx context.Context, in api.LoginRequest) (*api.TokenResponse, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || s.hash.Verify(in.Password, user.HashedPassword) != nil {
		return nil, fmt.Errorf("incorrect email or password: %w", domain.ErrUnauthorized)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("user account is inactive: %w", domain.ErrUnauthorized)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}
	profile, err := s.profiles.Get(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &api.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
		Profile:     profile,
	}, nil
}

// Logout invalidates every token issued to the user before now.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.users.SetSignedOut(ctx, userID, time.Now())
}

// Authenticate resolves an access token to an active user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", domain.ErrUnauthorized)
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, fmt.Errorf("user not found: %w", domain.ErrUnauthorized)
	}
	if user.SignedOutAt != nil && claims.IssuedAt.Before(*user.SignedOutAt) {
		return nil, fmt.Errorf("session ended: %w", domain.ErrUnauthorized)
	}
	return user, nil
}
