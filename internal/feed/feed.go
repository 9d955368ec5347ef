// Package feed keeps client-side collections of groups, proposals, events,
// chats, messages and profiles in sync with the server.
//
// Each feed owns its collection and is safe for concurrent use. Reads
// never fail: a transport error is logged and the previous contents stay
// in place. Mutations return errors and fail with domain.ErrUnauthorized
// before any I/O when the session is missing. Feeds that call Start merge
// the row deltas of the changefeed into their collection by primary key
// and fall back to a full refetch on Resync or on rows they cannot place.
package feed

import (
	"context"
	"log"
	"sync"

	"huddle/internal/api"
	"huddle/internal/changefeed"
	"huddle/internal/domain"
)

// Subscriber is implemented by changefeed.Broker and client.Realtime.
type Subscriber interface {
	Subscribe(topic changefeed.Topic, fn func(changefeed.Change)) func()
}

type GroupGateway interface {
	ListGroups(ctx context.Context) ([]*domain.Group, error)
	CreateGroup(ctx context.Context, in api.CreateGroupRequest) (*domain.Group, error)
	JoinGroup(ctx context.Context, inviteCode string) (*domain.Group, error)
	LeaveGroup(ctx context.Context, groupID string) error
}

type ProposalGateway interface {
	ListProposals(ctx context.Context, groupID string) ([]*domain.Proposal, error)
	CreateProposal(ctx context.Context, in api.CreateProposalRequest) (*domain.Proposal, error)
	CastVote(ctx context.Context, proposalID string, voteType domain.VoteType) (*domain.Vote, error)
}

type EventGateway interface {
	ListEvents(ctx context.Context, groupID string) ([]*domain.Event, error)
	CreateEvent(ctx context.Context, in api.CreateEventRequest) (*domain.Event, error)
	CreateEventFromProposal(ctx context.Context, proposalID string) (*domain.Event, error)
	SetAttendance(ctx context.Context, eventID string, status domain.AttendanceStatus) (*domain.Attendance, error)
}

type ChatGateway interface {
	ListChats(ctx context.Context) ([]*domain.Chat, error)
	EnsureGroupChat(ctx context.Context, groupID string) (*domain.Chat, error)
}

type MessageGateway interface {
	ListMessages(ctx context.Context, chatID string, before *domain.MessageCursor, limit int) (*api.MessagePage, error)
	SendMessage(ctx context.Context, chatID string, in api.SendMessageRequest) (*domain.Message, error)
}

type ProfileGateway interface {
	GetProfiles(ctx context.Context, ids []string) ([]*domain.Profile, error)
}

// Options are shared by every feed.
type Options struct {
	Logger *log.Logger
	// OnChange is called after the collection changed. It must not call
	// back into the feed synchronously while holding its own locks.
	OnChange func()
}

func (o Options) logger() *log.Logger {
	if o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

func (o Options) notify() {
	if o.OnChange != nil {
		o.OnChange()
	}
}

func requireSession(s *domain.Session) error {
	if !s.Valid() {
		return domain.ErrUnauthorized
	}
	return nil
}

// maxRefetchAttempts bounds how often a refetch is repeated because
// deltas kept landing while it was in flight.
const maxRefetchAttempts = 3

// sequencer orders refetch responses against each other and against
// merged deltas. A response older than the last applied one is dropped.
// A response whose request was issued before a delta was merged may
// predate that delta, so it is dropped and the newest request refetches.
type sequencer struct {
	mu      sync.Mutex
	issued  uint64
	applied uint64
	delta   uint64
}

func (s *sequencer) next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// accept reports whether the response for seq may be applied and marks it
// as the latest applied one. retry is set when the response was dropped
// for a merged delta and no newer request is outstanding.
func (s *sequencer) accept(seq uint64) (ok, retry bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.applied {
		return false, false
	}
	if seq <= s.delta {
		return false, seq == s.issued
	}
	s.applied = seq
	return true, false
}

// merged records that a delta was applied. Callers hold the feed's lock so
// that a response cannot be accepted between the delta and this call.
func (s *sequencer) merged() {
	s.mu.Lock()
	s.delta = s.issued
	s.mu.Unlock()
}

// refetch fetches under s and hands an accepted result to apply, which
// runs with mu held. It reports whether a result was applied.
func refetch[T any](ctx context.Context, mu sync.Locker, s *sequencer, fetch func(context.Context) (T, error), apply func(T)) (bool, error) {
	for attempt := 0; attempt < maxRefetchAttempts; attempt++ {
		seq := s.next()
		v, err := fetch(ctx)
		if err != nil {
			return false, err
		}
		mu.Lock()
		ok, retry := s.accept(seq)
		if ok {
			apply(v)
		}
		mu.Unlock()
		if ok || !retry {
			return ok, nil
		}
	}
	return false, nil
}

// subscriptions collects the cancel funcs of a started feed.
type subscriptions struct {
	mu      sync.Mutex
	cancels []func()
	done    chan struct{}
}

func (s *subscriptions) add(cancel func()) {
	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()
}

// watch stops the subscriptions once ctx is done. The goroutine also ends
// when stop is called first.
func (s *subscriptions) watch(ctx context.Context) {
	s.mu.Lock()
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()
	go func() {
		select {
		case <-ctx.Done():
			s.stop()
		case <-done:
		}
	}()
}

func (s *subscriptions) stop() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (s *subscriptions) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cancels) > 0
}

func groupTopic(table, groupID string) changefeed.Topic {
	t := changefeed.Topic{Table: table}
	if groupID != "" {
		t.Filter = changefeed.Filter{Column: "group_id", Value: groupID}
	}
	return t
}
