package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"huddle/internal/changefeed"
	"huddle/internal/domain"
	"huddle/internal/security"
)

// ChatService manages group and direct chats.
type ChatService struct {
	chats     domain.ChatRepository
	groups    domain.GroupRepository
	members   domain.MembershipRepository
	users     domain.UserRepository
	encryptor *security.Encryptor
	feed      changefeed.Publisher
}

func NewChatService(
	chats domain.ChatRepository,
	groups domain.GroupRepository,
	members domain.MembershipRepository,
	users domain.UserRepository,
	encryptor *security.Encryptor,
	feed changefeed.Publisher,
) *ChatService {
	return &ChatService{
		chats:     chats,
		groups:    groups,
		members:   members,
		users:     users,
		encryptor: encryptor,
		feed:      feed,
	}
}

func chatChange(op changefeed.Op, c *domain.Chat) changefeed.Change {
	cols := map[string]string{"id": c.ID, "chat_id": c.ID}
	if c.GroupID != nil {
		cols["group_id"] = *c.GroupID
	}
	ch := changefeed.NewChange(changefeed.TableChats, op, c, cols)
	if c.Type == domain.ChatDirect {
		ch.Audience = c.MemberIDs
	}
	return ch
}

// ListForUser returns the caller's chats, most recently active first, with
// a plaintext preview of the last message.
func (s *ChatService) ListForUser(ctx context.Context, userID string) ([]*domain.Chat, error) {
	chats, err := s.chats.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, c := range chats {
		if c.LastMessage == nil {
			continue
		}
		plain, err := s.encryptor.Decrypt(*c.LastMessage)
		if err != nil {
			log.Printf("ChatService: decrypt preview for chat %s: %v", c.ID, err)
			c.LastMessage = nil
			continue
		}
		c.LastMessage = &plain
	}
	return chats, nil
}

// Get returns a chat the caller may read.
func (s *ChatService) Get(ctx context.Context, userID, chatID string) (*domain.Chat, error) {
	c, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrNotFound
	}
	if err := s.checkAccess(ctx, c, userID); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ChatService) checkAccess(ctx context.Context, c *domain.Chat, userID string) error {
	switch c.Type {
	case domain.ChatGroup:
		if c.GroupID == nil {
			return domain.ErrForbidden
		}
		_, err := requireMember(ctx, s.members, *c.GroupID, userID)
		return err
	case domain.ChatDirect:
		for _, id := range c.MemberIDs {
			if id == userID {
				return nil
			}
		}
	}
	return fmt.Errorf("not a chat member: %w", domain.ErrForbidden)
}

// EnsureGroupChat returns the group's chat, creating it named
// "<group name> Chat" on first use. Concurrent callers get the same chat.
func (s *ChatService) EnsureGroupChat(ctx context.Context, userID, groupID string) (*domain.Chat, error) {
	if _, err := requireMember(ctx, s.members, groupID, userID); err != nil {
		return nil, err
	}
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, domain.ErrNotFound
	}
	name := g.Name + " Chat"
	c, created, err := s.chats.EnsureGroupChat(ctx, &domain.Chat{
		ID:        uuid.NewString(),
		Type:      domain.ChatGroup,
		Name:      &name,
		GroupID:   &g.ID,
		CreatedBy: userID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.feed.Publish(chatChange(changefeed.Insert, c))
	}
	return c, nil
}

// OpenDirect returns the direct chat between the caller and otherID,
// creating it if needed. Both users must share a group.
func (s *ChatService) OpenDirect(ctx context.Context, userID, otherID string) (*domain.Chat, error) {
	if otherID == "" || otherID == userID {
		return nil, invalid("direct chats need another user")
	}
	other, err := s.users.GetByID(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if other == nil || !other.IsActive {
		return nil, domain.ErrNotFound
	}
	shared, err := s.shareGroup(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}
	if !shared {
		return nil, fmt.Errorf("users share no group: %w", domain.ErrForbidden)
	}
	c, created, err := s.chats.EnsureDirectChat(ctx, &domain.Chat{
		ID:        uuid.NewString(),
		Type:      domain.ChatDirect,
		CreatedBy: userID,
		CreatedAt: time.Now(),
	}, []string{userID, otherID})
	if err != nil {
		return nil, err
	}
	if created {
		s.feed.Publish(chatChange(changefeed.Insert, c))
	}
	return c, nil
}

func (s *ChatService) shareGroup(ctx context.Context, a, b string) (bool, error) {
	ids, err := s.groups.IDsForUser(ctx, a)
	if err != nil {
		return false, err
	}
	for _, gid := range ids {
		m, err := s.members.Get(ctx, gid, b)
		if err != nil {
			return false, err
		}
		if m != nil {
			return true, nil
		}
	}
	return false, nil
}
