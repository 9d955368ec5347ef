// Package api holds the request and response bodies of the HTTP API,
// shared by the server handlers, the services and the Go client.
package api

import (
	"errors"
	"time"

	"huddle/internal/domain"
)

type RegisterRequest struct {
	Email       string  `json:"email" validate:"required,email,max=254"`
	Password    string  `json:"password" validate:"required,min=8,max=72"`
	Username    *string `json:"username,omitempty" validate:"omitempty,min=2,max=50"`
	DisplayName *string `json:"display_name,omitempty" validate:"omitempty,max=100"`
	FirstName   *string `json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName    *string `json:"last_name,omitempty" validate:"omitempty,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	User        *domain.User    `json:"user"`
	Profile     *domain.Profile `json:"profile,omitempty"`
}

// MeResponse describes the current session.
type MeResponse struct {
	User    *domain.User    `json:"user"`
	Profile *domain.Profile `json:"profile"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty" validate:"omitempty,max=100"`
	Username    *string `json:"username,omitempty" validate:"omitempty,min=2,max=50"`
	FirstName   *string `json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName    *string `json:"last_name,omitempty" validate:"omitempty,max=100"`
	AvatarURL   *string `json:"avatar_url,omitempty" validate:"omitempty,uri"`
	Bio         *string `json:"bio,omitempty" validate:"omitempty,max=500"`
}

type CreateGroupRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	ImageURL    *string `json:"image_url,omitempty" validate:"omitempty,uri"`
}

type UpdateGroupRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	ImageURL    *string `json:"image_url,omitempty" validate:"omitempty,uri"`
}

type JoinGroupRequest struct {
	InviteCode string `json:"invite_code" validate:"required,max=32"`
}

type CreateProposalRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	GroupID     string     `json:"group_id" validate:"required"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=5000"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	EventDate   *time.Time `json:"event_date,omitempty"`
	ImageURL    *string    `json:"image_url,omitempty" validate:"omitempty,uri"`
	Location    *string    `json:"location,omitempty" validate:"omitempty,max=300"`
}

type UpdateProposalRequest struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=5000"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	EventDate   *time.Time `json:"event_date,omitempty"`
	ImageURL    *string    `json:"image_url,omitempty" validate:"omitempty,uri"`
	Location    *string    `json:"location,omitempty" validate:"omitempty,max=300"`
}

type SetStatusRequest struct {
	Status domain.ProposalStatus `json:"status" validate:"required,oneof=closed passed failed"`
}

type VoteRequest struct {
	VoteType domain.VoteType `json:"vote_type" validate:"required,oneof=yes no abstain"`
}

type CommentRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

type CreateEventRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	GroupID     string     `json:"group_id" validate:"required"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=5000"`
	Location    *string    `json:"location,omitempty" validate:"omitempty,max=300"`
	ImageURL    *string    `json:"image_url,omitempty" validate:"omitempty,uri"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

type AttendanceRequest struct {
	Status domain.AttendanceStatus `json:"status" validate:"required,oneof=attending not_attending pending"`
}

type DirectChatRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type SendMessageRequest struct {
	Content     string             `json:"content" validate:"max=5000"`
	MessageType domain.MessageType `json:"message_type,omitempty" validate:"omitempty,oneof=text image file"`
	FileURL     *string            `json:"file_url,omitempty" validate:"omitempty,uri"`
}

// MessagePage is one page of a chat, newest message first. NextCursor is
// the position of the oldest message in the page.
type MessagePage struct {
	Messages   []*domain.Message     `json:"messages"`
	HasMore    bool                  `json:"has_more"`
	NextCursor *domain.MessageCursor `json:"next_cursor,omitempty"`
}

type UploadResponse struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	URL    string `json:"url"`
}

// ErrorResponse is the body of every non-2xx JSON response. Code is one
// of the Code constants.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

const (
	CodeInvalidInput   = "invalid_input"
	CodeUnauthorized   = "unauthorized"
	CodeForbidden      = "forbidden"
	CodeNotFound       = "not_found"
	CodeConflict       = "conflict"
	CodeProposalClosed = "proposal_closed"
	CodeInternal       = "internal"
)

var codeErrors = map[string]error{
	CodeInvalidInput:   domain.ErrInvalidInput,
	CodeUnauthorized:   domain.ErrUnauthorized,
	CodeForbidden:      domain.ErrForbidden,
	CodeNotFound:       domain.ErrNotFound,
	CodeConflict:       domain.ErrConflict,
	CodeProposalClosed: domain.ErrProposalClosed,
	CodeInternal:       domain.ErrInternal,
}

// ErrorCode returns the code for err, matching the most specific sentinel.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrProposalClosed):
		return CodeProposalClosed
	case errors.Is(err, domain.ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, domain.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrConflict):
		return CodeConflict
	}
	return CodeInternal
}

// CodeError returns the sentinel for a code, or nil for unknown codes.
func CodeError(code string) error {
	return codeErrors[code]
}
