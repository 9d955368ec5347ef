package feed

import (
	"context"
	"sort"
	"sync"

	"huddle/internal/changefeed"
	"huddle/internal/domain"
)

// Chats is the list of chats visible to the caller, most recently active
// first, each with a preview of its last message.
type Chats struct {
	gw      ChatGateway
	sub     Subscriber
	session *domain.Session
	opts    Options
	seq     sequencer
	subs    subscriptions

	mu    sync.RWMutex
	chats []*domain.Chat
	ctx   context.Context
}

func NewChats(gw ChatGateway, sub Subscriber, session *domain.Session, opts Options) *Chats {
	return &Chats{gw: gw, sub: sub, session: session, opts: opts, ctx: context.Background()}
}

func (f *Chats) Refresh(ctx context.Context) {
	applied, err := refetch(ctx, &f.mu, &f.seq, f.gw.ListChats, func(list []*domain.Chat) {
		f.chats = list
		sortChats(f.chats)
	})
	if err != nil {
		f.opts.logger().Printf("feed: list chats: %v", err)
		return
	}
	if applied {
		f.opts.notify()
	}
}

func sortChats(list []*domain.Chat) {
	active := func(c *domain.Chat) int64 {
		if c.LastMessageAt != nil {
			return c.LastMessageAt.UnixNano()
		}
		return c.UpdatedAt.UnixNano()
	}
	sort.SliceStable(list, func(i, j int) bool {
		return active(list[i]) > active(list[j])
	})
}

func (f *Chats) List() []domain.Chat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.Chat, 0, len(f.chats))
	for _, c := range f.chats {
		out = append(out, *c)
	}
	return out
}

// EnsureGroupChat returns the chat of a group, creating it when the group
// has none yet. Concurrent callers get the same chat.
func (f *Chats) EnsureGroupChat(ctx context.Context, groupID string) (*domain.Chat, error) {
	if err := requireSession(f.session); err != nil {
		return nil, err
	}
	c, err := f.gw.EnsureGroupChat(ctx, groupID)
	if err != nil {
		return nil, err
	}
	f.Refresh(ctx)
	return c, nil
}

// Start subscribes to new chats and to messages for the previews.
func (f *Chats) Start(ctx context.Context) {
	if f.subs.active() {
		return
	}
	f.mu.Lock()
	f.ctx = ctx
	f.mu.Unlock()
	f.subs.add(f.sub.Subscribe(changefeed.Topic{Table: changefeed.TableChats}, f.handle))
	f.subs.add(f.sub.Subscribe(changefeed.Topic{Table: changefeed.TableMessages}, f.handle))
	f.subs.watch(ctx)
}

func (f *Chats) Stop() {
	f.subs.stop()
}

func (f *Chats) handle(c changefeed.Change) {
	f.mu.Lock()
	ok := c.Op != changefeed.Resync && f.apply(c)
	if ok {
		f.seq.merged()
	}
	ctx := f.ctx
	f.mu.Unlock()

	if !ok {
		f.Refresh(ctx)
		return
	}
	f.opts.notify()
}

// apply runs with f.mu held.
func (f *Chats) apply(c changefeed.Change) bool {
	switch c.Table {
	case changefeed.TableChats:
		var chat domain.Chat
		if err := c.Decode(&chat); err != nil || chat.ID == "" {
			return false
		}
		for i, existing := range f.chats {
			if existing.ID == chat.ID {
				chat.LastMessage, chat.LastMessageAt = existing.LastMessage, existing.LastMessageAt
				f.chats[i] = &chat
				sortChats(f.chats)
				return true
			}
		}
		// Listing fills in the group name.
		return false
	case changefeed.TableMessages:
		var m domain.Message
		if err := c.Decode(&m); err != nil {
			return false
		}
		for _, chat := range f.chats {
			if chat.ID == m.ChatID {
				content, at := m.Content, m.CreatedAt
				chat.LastMessage, chat.LastMessageAt = &content, &at
				sortChats(f.chats)
				return true
			}
		}
		return false
	}
	return true
}
