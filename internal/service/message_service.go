package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"huddle/internal/api"
	"huddle/internal/changefeed"
	"huddle/internal/domain"
	"huddle/internal/security"
)

const (
	DefaultPageSize  = 30
	MaxPageSize      = 100
	MaxMessageLength = 5000
)

type MessageService struct {
	chats     *ChatService
	messages  domain.MessageRepository
	chatRepo  domain.ChatRepository
	encryptor *security.Encryptor
	feed      changefeed.Publisher

	MaxMessagesPerChat int
}

func NewMessageService(
	chats *ChatService,
	chatRepo domain.ChatRepository,
	messages domain.MessageRepository,
	encryptor *security.Encryptor,
	maxMessages int,
	feed changefeed.Publisher,
) *MessageService {
	return &MessageService{
		chats:              chats,
		chatRepo:           chatRepo,
		messages:           messages,
		encryptor:          encryptor,
		feed:               feed,
		MaxMessagesPerChat: maxMessages,
	}
}

// List returns one page of a chat, newest first, strictly older than
// before. A zero limit means DefaultPageSize.
func (s *MessageService) List(ctx context.Context, userID, chatID string, before *domain.MessageCursor, limit int) (*api.MessagePage, error) {
	if _, err := s.chats.Get(ctx, userID, chatID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	rows, err := s.messages.ListPage(ctx, chatID, before, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	page := &api.MessagePage{Messages: make([]*domain.Message, 0, limit)}
	if len(rows) > limit {
		page.HasMore = true
		rows = rows[:limit]
	}
	for _, m := range rows {
		s.decryptInPlace(m)
		page.Messages = append(page.Messages, m)
	}
	if n := len(page.Messages); n > 0 {
		cur := page.Messages[n-1].Cursor()
		page.NextCursor = &cur
	}
	return page, nil
}

func (s *MessageService) decryptInPlace(m *domain.Message) {
	plain, err := s.encryptor.Decrypt(m.Content)
	if err != nil {
		log.Printf("MessageService: decrypt message %s: %v", m.ID, err)
		m.Content = ""
		return
	}
	m.Content = plain
}

// Send stores a message from userID and returns it in plaintext.
func (s *MessageService) Send(ctx context.Context, userID, chatID string, in api.SendMessageRequest) (*domain.Message, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(in.Content)
	fileURL := trimOrNil(in.FileURL)
	if len([]rune(content)) > MaxMessageLength {
		return nil, invalid(fmt.Sprintf("message content exceeds %d characters", MaxMessageLength))
	}
	if content == "" && fileURL == nil {
		return nil, invalid("message content cannot be empty")
	}
	msgType := in.MessageType
	if msgType == "" {
		msgType = domain.MessageText
	}
	if msgType != domain.MessageText && fileURL == nil {
		return nil, invalid("file_url is required for image and file messages")
	}

	chat, err := s.chats.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	encrypted, err := s.encryptor.Encrypt(content)
	if err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}
	now := time.Now()
	msg := &domain.Message{
		ID:          uuid.NewString(),
		ChatID:      chat.ID,
		UserID:      userID,
		Content:     encrypted,
		MessageType: msgType,
		FileURL:     fileURL,
		CreatedAt:   now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.chatRepo.Touch(ctx, chat.ID, now); err != nil {
		log.Printf("MessageService: touch chat %s: %v", chat.ID, err)
	}
	if s.MaxMessagesPerChat > 0 {
		if err := s.messages.PruneOld(ctx, chat.ID, s.MaxMessagesPerChat); err != nil {
			log.Printf("MessageService: prune chat %s: %v", chat.ID, err)
		}
	}

	msg.Content = content
	cols := map[string]string{"id": msg.ID, "chat_id": chat.ID}
	if chat.GroupID != nil {
		cols["group_id"] = *chat.GroupID
	}
	ch := changefeed.NewChange(changefeed.TableMessages, changefeed.Insert, msg, cols)
	if chat.Type == domain.ChatDirect {
		ch.Audience = chat.MemberIDs
	}
	s.feed.Publish(ch)
	return msg, nil
}
