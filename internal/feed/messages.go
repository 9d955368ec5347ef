package feed

import (
	"context"
	"sort"
	"strings"
	"sync"

	"huddle/internal/api"
	"huddle/internal/changefeed"
	"huddle/internal/domain"
)

// DefaultPageSize is the number of messages fetched per page.
const DefaultPageSize = 30

// Messages is a window of one chat in ascending order. Load fetches the
// newest page, LoadOlder prepends the page before the oldest held
// message. Pages are bounded by an exclusive (created_at, id) cursor, so
// they never overlap even when timestamps collide.
type Messages struct {
	gw       MessageGateway
	sub      Subscriber
	session  *domain.Session
	chatID   string
	pageSize int
	opts     Options
	seq      sequencer
	subs     subscriptions

	mu       sync.RWMutex
	messages []domain.Message
	hasMore  bool
	ctx      context.Context
}

func NewMessages(gw MessageGateway, sub Subscriber, session *domain.Session, chatID string, pageSize int, opts Options) *Messages {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Messages{
		gw:       gw,
		sub:      sub,
		session:  session,
		chatID:   chatID,
		pageSize: pageSize,
		opts:     opts,
		ctx:      context.Background(),
	}
}

// Load replaces the window with the newest page. Messages merged while
// the page was in flight that sort after its oldest row are kept.
func (f *Messages) Load(ctx context.Context) {
	seq := f.seq.next()
	page, err := f.gw.ListMessages(ctx, f.chatID, nil, f.pageSize)
	if err != nil {
		f.opts.logger().Printf("feed: list messages of %s: %v", f.chatID, err)
		return
	}
	f.mu.Lock()
	if ok, _ := f.seq.accept(seq); !ok {
		f.mu.Unlock()
		return
	}
	fresh := ascending(page.Messages)
	var newer []*domain.Message
	for i := range f.messages {
		if len(fresh) == 0 || before(fresh[0], f.messages[i]) {
			newer = append(newer, &f.messages[i])
		}
	}
	f.messages = merge(fresh, newer)
	f.hasMore = page.HasMore
	f.mu.Unlock()
	f.opts.notify()
}

// LoadOlder prepends the page before the oldest held message. With no
// messages held it behaves like Load.
func (f *Messages) LoadOlder(ctx context.Context) {
	f.mu.RLock()
	if len(f.messages) == 0 {
		f.mu.RUnlock()
		f.Load(ctx)
		return
	}
	cursor := f.messages[0].Cursor()
	hasMore := f.hasMore
	f.mu.RUnlock()
	if !hasMore {
		return
	}

	page, err := f.gw.ListMessages(ctx, f.chatID, &cursor, f.pageSize)
	if err != nil {
		f.opts.logger().Printf("feed: list older messages of %s: %v", f.chatID, err)
		return
	}
	f.mu.Lock()
	if len(f.messages) == 0 || f.messages[0].ID != cursor.ID {
		// The window was replaced while the page was in flight.
		f.mu.Unlock()
		return
	}
	f.messages = merge(f.messages, page.Messages)
	f.hasMore = page.HasMore
	f.mu.Unlock()
	f.opts.notify()
}

func (f *Messages) Messages() []domain.Message {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]domain.Message(nil), f.messages...)
}

// HasMore reports whether older messages exist beyond the window.
func (f *Messages) HasMore() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.hasMore
}

// Send posts a message and merges the stored row into the window. Text
// messages need content, image and file messages need fileURL.
func (f *Messages) Send(ctx context.Context, content string, messageType domain.MessageType, fileURL *string) (*domain.Message, error) {
	if err := requireSession(f.session); err != nil {
		return nil, err
	}
	if messageType == "" {
		messageType = domain.MessageText
	}
	if strings.TrimSpace(content) == "" && fileURL == nil {
		return nil, domain.ErrInvalidInput
	}
	m, err := f.gw.SendMessage(ctx, f.chatID, api.SendMessageRequest{Content: content, MessageType: messageType, FileURL: fileURL})
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.messages = merge(f.messages, []*domain.Message{m})
	f.mu.Unlock()
	f.opts.notify()
	return m, nil
}

// Start subscribes to new messages of the chat until Stop or ctx is done.
func (f *Messages) Start(ctx context.Context) {
	if f.subs.active() {
		return
	}
	f.mu.Lock()
	f.ctx = ctx
	f.mu.Unlock()
	topic := changefeed.Topic{Table: changefeed.TableMessages, Filter: changefeed.Filter{Column: "chat_id", Value: f.chatID}}
	f.subs.add(f.sub.Subscribe(topic, f.handle))
	f.subs.watch(ctx)
}

func (f *Messages) Stop() {
	f.subs.stop()
}

func (f *Messages) handle(c changefeed.Change) {
	if c.Op == changefeed.Resync {
		f.mu.RLock()
		ctx := f.ctx
		f.mu.RUnlock()
		f.catchUp(ctx)
		return
	}
	if c.Op != changefeed.Insert {
		return
	}
	var m domain.Message
	if err := c.Decode(&m); err != nil || m.ID == "" || m.ChatID != f.chatID {
		return
	}
	f.mu.Lock()
	f.messages = merge(f.messages, []*domain.Message{&m})
	f.mu.Unlock()
	f.opts.notify()
}

// catchUp merges the newest page into the window without dropping older
// pages already loaded.
func (f *Messages) catchUp(ctx context.Context) {
	page, err := f.gw.ListMessages(ctx, f.chatID, nil, f.pageSize)
	if err != nil {
		f.opts.logger().Printf("feed: resync messages of %s: %v", f.chatID, err)
		return
	}
	f.mu.Lock()
	if len(f.messages) == 0 {
		f.hasMore = page.HasMore
	}
	f.messages = merge(f.messages, page.Messages)
	f.mu.Unlock()
	f.opts.notify()
}

func ascending(page []*domain.Message) []domain.Message {
	out := make([]domain.Message, len(page))
	for i, m := range page {
		out[len(page)-1-i] = *m
	}
	return out
}

// merge adds incoming to held by id and keeps (created_at, id) order.
func merge(held []domain.Message, incoming []*domain.Message) []domain.Message {
	seen := make(map[string]bool, len(held))
	for _, m := range held {
		seen[m.ID] = true
	}
	out := held
	for _, m := range incoming {
		if m == nil || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, *m)
	}
	sort.SliceStable(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}

// before orders messages by (created_at, id).
func before(a, b domain.Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
