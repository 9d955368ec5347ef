package domain

import "time"

// Role is a member's role inside a group.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// ProposalStatus is the lifecycle state of a proposal. Active is the only
// non-terminal state.
type ProposalStatus string

const (
	ProposalActive ProposalStatus = "active"
	ProposalClosed ProposalStatus = "closed"
	ProposalPassed ProposalStatus = "passed"
	ProposalFailed ProposalStatus = "failed"
)

func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalActive, ProposalClosed, ProposalPassed, ProposalFailed:
		return true
	}
	return false
}

func (s ProposalStatus) Terminal() bool {
	return s.Valid() && s != ProposalActive
}

type VoteType string

const (
	VoteYes     VoteType = "yes"
	VoteNo      VoteType = "no"
	VoteAbstain VoteType = "abstain"
)

func (v VoteType) Valid() bool {
	return v == VoteYes || v == VoteNo || v == VoteAbstain
}

type AttendanceStatus string

const (
	Attending    AttendanceStatus = "attending"
	NotAttending AttendanceStatus = "not_attending"
	Pending      AttendanceStatus = "pending"
)

func (a AttendanceStatus) Valid() bool {
	return a == Attending || a == NotAttending || a == Pending
}

type ChatType string

const (
	ChatGroup  ChatType = "group"
	ChatDirect ChatType = "direct"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

func (m MessageType) Valid() bool {
	return m == MessageText || m == MessageImage || m == MessageFile
}

// User is an account. Profile data lives in Profile.
type User struct {
	ID             string     `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	HashedPassword string     `db:"hashed_password" json:"-"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	SignedOutAt    *time.Time `db:"signed_out_at" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Profile holds the public, display-oriented fields of a user.
type Profile struct {
	UserID      string    `db:"user_id" json:"id"`
	DisplayName *string   `db:"display_name" json:"display_name,omitempty"`
	Username    *string   `db:"username" json:"username,omitempty"`
	FirstName   *string   `db:"first_name" json:"first_name,omitempty"`
	LastName    *string   `db:"last_name" json:"last_name,omitempty"`
	AvatarURL   *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	Bio         *string   `db:"bio" json:"bio,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Group is a set of users planning together. InviteCode never changes
// after creation.
type Group struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	ImageURL    *string   `db:"image_url" json:"image_url,omitempty"`
	InviteCode  string    `db:"invite_code" json:"invite_code"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	// Annotations filled by list queries.
	MemberCount int  `json:"member_count"`
	UserRole    Role `json:"user_role,omitempty"`
}

// Membership links a user to a group. At most one row per (group, user).
type Membership struct {
	ID       string    `db:"id" json:"id"`
	GroupID  string    `db:"group_id" json:"group_id"`
	UserID   string    `db:"user_id" json:"user_id"`
	Role     Role      `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`

	Profile *Profile `json:"profile,omitempty"`
}

// Proposal is a suggested activity the group votes on.
type Proposal struct {
	ID          string         `db:"id" json:"id"`
	Title       string         `db:"title" json:"title"`
	Description *string        `db:"description" json:"description,omitempty"`
	ImageURL    *string        `db:"image_url" json:"image_url,omitempty"`
	Location    *string        `db:"location" json:"location,omitempty"`
	GroupID     string         `db:"group_id" json:"group_id"`
	CreatedBy   string         `db:"created_by" json:"created_by"`
	ExpiresAt   *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
	EventDate   *time.Time     `db:"event_date" json:"event_date,omitempty"`
	Status      ProposalStatus `db:"status" json:"status"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`

	GroupName string `json:"group_name,omitempty"`
	Votes     []Vote `json:"votes"`
}

// AcceptsVotes reports whether a vote cast at now may be recorded.
func (p *Proposal) AcceptsVotes(now time.Time) bool {
	if p.Status != ProposalActive {
		return false
	}
	return p.ExpiresAt == nil || now.Before(*p.ExpiresAt)
}

// Vote is keyed by (ProposalID, UserID); a new vote replaces the old one.
type Vote struct {
	ProposalID string    `db:"proposal_id" json:"proposal_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	VoteType   VoteType  `db:"vote_type" json:"vote_type"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

type Comment struct {
	ID         string    `db:"id" json:"id"`
	ProposalID string    `db:"proposal_id" json:"proposal_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Content    string    `db:"content" json:"content"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Event is a calendar commitment. ProposalID is set when the event was
// created from an accepted proposal.
type Event struct {
	ID          string     `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description *string    `db:"description" json:"description,omitempty"`
	Location    *string    `db:"location" json:"location,omitempty"`
	ImageURL    *string    `db:"image_url" json:"image_url,omitempty"`
	GroupID     string     `db:"group_id" json:"group_id"`
	CreatedBy   string     `db:"created_by" json:"created_by"`
	ProposalID  *string    `db:"proposal_id" json:"proposal_id,omitempty"`
	StartDate   time.Time  `db:"start_date" json:"start_date"`
	EndDate     *time.Time `db:"end_date" json:"end_date,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`

	GroupName     string       `json:"group_name,omitempty"`
	GroupImageURL *string      `json:"group_image_url,omitempty"`
	Attendees     []Attendance `json:"attendees"`
}

// Attendance is keyed by (EventID, UserID).
type Attendance struct {
	EventID   string           `db:"event_id" json:"event_id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// Chat is either the single group chat of a group or a direct chat
// between members listed in chat_members.
type Chat struct {
	ID        string    `db:"id" json:"id"`
	Type      ChatType  `db:"type" json:"type"`
	Name      *string   `db:"name" json:"name,omitempty"`
	GroupID   *string   `db:"group_id" json:"group_id,omitempty"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	GroupName     *string    `json:"group_name,omitempty"`
	LastMessage   *string    `json:"last_message,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int        `json:"unread_count"`
	MemberIDs     []string   `json:"member_ids,omitempty"`
}

// Message is ordered within a chat by (CreatedAt, ID).
type Message struct {
	ID          string      `db:"id" json:"id"`
	ChatID      string      `db:"chat_id" json:"chat_id"`
	UserID      string      `db:"user_id" json:"user_id"`
	Content     string      `db:"content" json:"content"` // encrypted at rest
	MessageType MessageType `db:"message_type" json:"message_type"`
	FileURL     *string     `db:"file_url" json:"file_url,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// Cursor returns the keyset position of m.
func (m *Message) Cursor() MessageCursor {
	return MessageCursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// MessageCursor is an exclusive pagination boundary.
type MessageCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

// After reports whether c sorts strictly after m.
func (c MessageCursor) After(m *Message) bool {
	if m.CreatedAt.Equal(c.CreatedAt) {
		return m.ID < c.ID
	}
	return m.CreatedAt.Before(c.CreatedAt)
}

// Session identifies the caller on the client side.
type Session struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
}

func (s *Session) Valid() bool {
	return s != nil && s.UserID != "" && s.AccessToken != ""
}
