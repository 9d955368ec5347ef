package service

import (
	"context"
	"fmt"
	"time"

	"huddle/internal/api"
	"huddle/internal/changefeed"
	"huddle/internal/domain"
)

// MaxProfileBatch bounds GetMany.
const MaxProfileBatch = 100

type ProfileService struct {
	profiles domain.ProfileRepository
	feed     changefeed.Publisher
}

func NewProfileService(profiles domain.ProfileRepository, feed changefeed.Publisher) *ProfileService {
	return &ProfileService{profiles: profiles, feed: feed}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

// GetMany returns the profiles that exist among userIDs. Unknown ids are
// left out.
func (s *ProfileService) GetMany(ctx context.Context, userIDs []string) ([]*domain.Profile, error) {
	seen := make(map[string]struct{}, len(userIDs))
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) > MaxProfileBatch {
		return nil, invalid(fmt.Sprintf("at most %d ids per request", MaxProfileBatch))
	}
	res, err := s.profiles.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []*domain.Profile{}
	}
	return res, nil
}

// UpdateOwn applies the non-nil fields of in to the caller's profile.
func (s *ProfileService) UpdateOwn(ctx context.Context, userID string, in api.UpdateProfileRequest) (*domain.Profile, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.DisplayName != nil {
		p.DisplayName = trimOrNil(in.DisplayName)
	}
	if in.Username != nil {
		p.Username = trimOrNil(in.Username)
	}
	if in.FirstName != nil {
		p.FirstName = trimOrNil(in.FirstName)
	}
	if in.LastName != nil {
		p.LastName = trimOrNil(in.LastName)
	}
	if in.AvatarURL != nil {
		p.AvatarURL = trimOrNil(in.AvatarURL)
	}
	if in.Bio != nil {
		p.Bio = trimOrNil(in.Bio)
	}
	p.UpdatedAt = time.Now()
	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, err
	}
	s.feed.Publish(changefeed.NewChange(changefeed.TableProfiles, changefeed.Update, p,
		map[string]string{"id": p.UserID}))
	return p, nil
}
