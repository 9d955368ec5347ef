package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"huddle/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput checks struct tags and reports failures as ErrInvalidInput.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			if fe.Param() != "" {
				parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			} else {
				parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
			}
		}
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(parts, "; "))
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, msg)
}

// requireMember returns the caller's membership in groupID or ErrForbidden.
func requireMember(ctx context.Context, members domain.MembershipRepository, groupID, userID string) (*domain.Membership, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	m, err := members.Get(ctx, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("not a member of group: %w", domain.ErrForbidden)
	}
	return m, nil
}

func requireAdmin(ctx context.Context, members domain.MembershipRepository, groupID, userID string) (*domain.Membership, error) {
	m, err := requireMember(ctx, members, groupID, userID)
	if err != nil {
		return nil, err
	}
	if m.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("group admin required: %w", domain.ErrForbidden)
	}
	return m, nil
}

// trimOrNil trims s and maps blank strings to nil.
func trimOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
