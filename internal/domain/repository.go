package domain

import (
	"context"
	"time"
)

// Lookups return (nil, nil) when the row does not exist.

// UserRepository defines persistence operations for accounts.
type UserRepository interface {
	// Create stores the user and its profile atomically.
	Create(ctx context.Context, u *User, p *Profile) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	SetSignedOut(ctx context.Context, id string, at time.Time) error
}

type ProfileRepository interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	ListByIDs(ctx context.Context, userIDs []string) ([]*Profile, error)
	Update(ctx context.Context, p *Profile) error
}

// GroupRepository defines persistence operations for groups.
type GroupRepository interface {
	// Create stores the group and an admin membership for its creator.
	// A duplicate invite code yields ErrConflict.
	Create(ctx context.Context, g *Group) error
	GetByID(ctx context.Context, id string) (*Group, error)
	GetByInviteCode(ctx context.Context, code string) (*Group, error)
	ListForUser(ctx context.Context, userID string) ([]*Group, error)
	IDsForUser(ctx context.Context, userID string) ([]string, error)
	Update(ctx context.Context, g *Group) error
}

type MembershipRepository interface {
	// Add inserts the membership unless one exists for the pair and
	// reports whether a row was created.
	Add(ctx context.Context, m *Membership) (bool, error)
	Get(ctx context.Context, groupID, userID string) (*Membership, error)
	ListForGroup(ctx context.Context, groupID string) ([]*Membership, error)
	SetRole(ctx context.Context, groupID, userID string, role Role) error
	Remove(ctx context.Context, groupID, userID string) error
}

// ProposalRepository returns proposals with votes and group name embedded.
type ProposalRepository interface {
	Create(ctx context.Context, p *Proposal) error
	GetByID(ctx context.Context, id string) (*Proposal, error)
	ListForGroups(ctx context.Context, groupIDs []string) ([]*Proposal, error)
	Update(ctx context.Context, p *Proposal) error
	Delete(ctx context.Context, id string) error
	// SetStatus moves an active proposal to a terminal status. It returns
	// ErrProposalClosed when the proposal is no longer active.
	SetStatus(ctx context.Context, id string, status ProposalStatus, at time.Time) error
}

type VoteRepository interface {
	// Upsert records the vote keyed by (proposal, user). It returns
	// ErrProposalClosed, without writing, when the proposal does not
	// accept votes at v.UpdatedAt.
	Upsert(ctx context.Context, v *Vote) error
	ListForProposal(ctx context.Context, proposalID string) ([]Vote, error)
}

type CommentRepository interface {
	Create(ctx context.Context, c *Comment) error
	ListForProposal(ctx context.Context, proposalID string) ([]*Comment, error)
}

// EventRepository returns events with attendees and group data embedded.
// When an event has no image of its own, the originating proposal's image
// is used.
type EventRepository interface {
	// Create yields ErrConflict when an event already exists for the
	// same originating proposal.
	Create(ctx context.Context, e *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	GetByProposalID(ctx context.Context, proposalID string) (*Event, error)
	ListForGroups(ctx context.Context, groupIDs []string) ([]*Event, error)
}

type AttendanceRepository interface {
	Upsert(ctx context.Context, a *Attendance) error
	ListForEvent(ctx context.Context, eventID string) ([]Attendance, error)
}

// ChatRepository defines persistence operations for chats.
type ChatRepository interface {
	// EnsureGroupChat inserts c unless the group already has a chat and
	// returns the stored chat and whether it was created.
	EnsureGroupChat(ctx context.Context, c *Chat) (*Chat, bool, error)
	// EnsureDirectChat does the same for the direct chat between exactly
	// the given members.
	EnsureDirectChat(ctx context.Context, c *Chat, memberIDs []string) (*Chat, bool, error)
	GetByID(ctx context.Context, id string) (*Chat, error)
	ListForUser(ctx context.Context, userID string) ([]*Chat, error)
	MemberIDs(ctx context.Context, chatID string) ([]string, error)
	Touch(ctx context.Context, chatID string, at time.Time) error
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	// ListPage returns up to limit messages strictly older than before
	// (newest first). A nil cursor starts from the newest message.
	ListPage(ctx context.Context, chatID string, before *MessageCursor, limit int) ([]*Message, error)
	PruneOld(ctx context.Context, chatID string, keepLimit int) error
}
