package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"huddle/internal/api"
	"huddle/internal/changefeed"
	"huddle/internal/domain"
	"huddle/internal/security"
	"huddle/internal/service"
	"huddle/internal/store/sqlite"
	"huddle/internal/store/sqlstore"
)

type services struct {
	db        *sqlstore.DB
	feed      *recorder
	auth      *service.AuthService
	groups    *service.GroupService
	proposals *service.ProposalService
	events    *service.EventService
	chats     *service.ChatService
	messages  *service.MessageService
}

func newServices(t *testing.T) *services {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	enc, err := security.NewEncryptor([]byte("test-key"), nil)
	require.NoError(t, err)

	users := sqlstore.NewUserRepo(db)
	profiles := sqlstore.NewProfileRepo(db)
	groups := sqlstore.NewGroupRepo(db)
	members := sqlstore.NewMembershipRepo(db)
	proposals := sqlstore.NewProposalRepo(db)
	chatRepo := sqlstore.NewChatRepo(db)
	feed := &recorder{}

	s := &services{db: db, feed: feed}
	s.auth = service.NewAuthService(users, profiles, security.NewTokenService("secret", time.Hour), security.NewPasswordHasher(bcrypt.MinCost))
	s.groups = service.NewGroupService(groups, members, feed)
	s.proposals = service.NewProposalService(proposals, sqlstore.NewVoteRepo(db), sqlstore.NewCommentRepo(db), groups, members, feed)
	s.events = service.NewEventService(sqlstore.NewEventRepo(db), sqlstore.NewAttendanceRepo(db), proposals, groups, members, feed)
	s.chats = service.NewChatService(chatRepo, groups, members, users, enc, feed)
	s.messages = service.NewMessageService(s.chats, chatRepo, sqlstore.NewMessageRepo(db), enc, 0, feed)
	return s
}

func (s *services) register(t *testing.T, name string) *domain.User {
	t.Helper()
	u, _, err := s.auth.Register(context.Background(), api.RegisterRequest{
		Email:       name + "@example.com",
		Password:    "Password1!",
		DisplayName: &name,
	})
	require.NoError(t, err)
	return u
}

func TestProposalVoting(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	owner := s.register(t, "owner")
	friend := s.register(t, "friend")
	stranger := s.register(t, "stranger")

	g, err := s.groups.Create(ctx, owner.ID, api.CreateGroupRequest{Name: "Hikers"})
	require.NoError(t, err)
	_, err = s.groups.JoinByInviteCode(ctx, friend.ID, g.InviteCode)
	require.NoError(t, err)

	p, err := s.proposals.Create(ctx, owner.ID, api.CreateProposalRequest{Title: "Lake trip", GroupID: g.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalActive, p.Status)
	assert.Equal(t, "Hikers", p.GroupName)

	t.Run("LastVoteWins", func(t *testing.T) {
		_, err := s.proposals.CastVote(ctx, friend.ID, p.ID, domain.VoteYes)
		require.NoError(t, err)
		_, err = s.proposals.CastVote(ctx, friend.ID, p.ID, domain.VoteNo)
		require.NoError(t, err)

		got, err := s.proposals.Get(ctx, owner.ID, p.ID)
		require.NoError(t, err)
		require.Len(t, got.Votes, 1)
		assert.Equal(t, domain.VoteNo, got.Votes[0].VoteType)
	})

	t.Run("NonMemberForbidden", func(t *testing.T) {
		_, err := s.proposals.CastVote(ctx, stranger.ID, p.ID, domain.VoteYes)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("InvalidVoteType", func(t *testing.T) {
		_, err := s.proposals.CastVote(ctx, friend.ID, p.ID, domain.VoteType("maybe"))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("OnlyCreatorEdits", func(t *testing.T) {
		title := "Mountain trip"
		_, err := s.proposals.Update(ctx, friend.ID, p.ID, api.UpdateProposalRequest{Title: &title})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("ClosedRejectsVotes", func(t *testing.T) {
		_, err := s.proposals.SetStatus(ctx, friend.ID, p.ID, domain.ProposalPassed)
		assert.ErrorIs(t, err, domain.ErrForbidden)

		closed, err := s.proposals.SetStatus(ctx, owner.ID, p.ID, domain.ProposalClosed)
		require.NoError(t, err)
		assert.Equal(t, domain.ProposalClosed, closed.Status)

		_, err = s.proposals.CastVote(ctx, friend.ID, p.ID, domain.VoteYes)
		assert.ErrorIs(t, err, domain.ErrProposalClosed)
	})

	t.Run("ExpiredRejectsVotes", func(t *testing.T) {
		past := time.Now().Add(-time.Minute)
		expired, err := s.proposals.Create(ctx, owner.ID, api.CreateProposalRequest{Title: "Late", GroupID: g.ID, ExpiresAt: &past})
		require.NoError(t, err)
		_, err = s.proposals.CastVote(ctx, friend.ID, expired.ID, domain.VoteYes)
		assert.ErrorIs(t, err, domain.ErrProposalClosed)
	})

	t.Run("Comments", func(t *testing.T) {
		_, err := s.proposals.AddComment(ctx, friend.ID, p.ID, api.CommentRequest{Content: "  count me in "})
		require.NoError(t, err)
		_, err = s.proposals.AddComment(ctx, friend.ID, p.ID, api.CommentRequest{Content: "   "})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		list, err := s.proposals.ListComments(ctx, owner.ID, p.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "count me in", list[0].Content)
	})

	t.Run("ListScopedToMemberGroups", func(t *testing.T) {
		list, err := s.proposals.List(ctx, stranger.ID, "")
		require.NoError(t, err)
		assert.Empty(t, list)

		list, err = s.proposals.List(ctx, friend.ID, "")
		require.NoError(t, err)
		assert.Len(t, list, 2)

		_, err = s.proposals.List(ctx, stranger.ID, g.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	assert.Contains(t, s.feed.tables(), changefeed.TableVotes)
}

func TestEventFromProposal(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	owner := s.register(t, "owner")
	g, err := s.groups.Create(ctx, owner.ID, api.CreateGroupRequest{Name: "Hikers"})
	require.NoError(t, err)

	when := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)
	img := "https://img.example.com/lake.png"
	p, err := s.proposals.Create(ctx, owner.ID, api.CreateProposalRequest{
		Title: "Lake trip", GroupID: g.ID, EventDate: &when, ImageURL: &img,
	})
	require.NoError(t, err)

	t.Run("ActiveProposalRejected", func(t *testing.T) {
		_, err := s.events.CreateFromProposal(ctx, owner.ID, p.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	_, err = s.proposals.SetStatus(ctx, owner.ID, p.ID, domain.ProposalPassed)
	require.NoError(t, err)

	t.Run("CreatedOnce", func(t *testing.T) {
		e, err := s.events.CreateFromProposal(ctx, owner.ID, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Lake trip", e.Title)
		assert.True(t, when.Equal(e.StartDate))
		require.NotNil(t, e.ProposalID)
		assert.Equal(t, p.ID, *e.ProposalID)
		require.NotNil(t, e.ImageURL)
		assert.Equal(t, img, *e.ImageURL)

		again, err := s.events.CreateFromProposal(ctx, owner.ID, p.ID)
		require.NoError(t, err)
		assert.Equal(t, e.ID, again.ID)
	})

	t.Run("Attendance", func(t *testing.T) {
		list, err := s.events.List(ctx, owner.ID, g.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		ev := list[0]

		_, err = s.events.SetAttendance(ctx, owner.ID, ev.ID, domain.Attending)
		require.NoError(t, err)
		_, err = s.events.SetAttendance(ctx, owner.ID, ev.ID, domain.NotAttending)
		require.NoError(t, err)
		_, err = s.events.SetAttendance(ctx, owner.ID, ev.ID, domain.AttendanceStatus("maybe"))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		got, err := s.events.Get(ctx, owner.ID, ev.ID)
		require.NoError(t, err)
		require.Len(t, got.Attendees, 1)
		assert.Equal(t, domain.NotAttending, got.Attendees[0].Status)
	})

	t.Run("ManualEventDates", func(t *testing.T) {
		start := time.Now().Add(time.Hour)
		end := start.Add(-time.Minute)
		_, err := s.events.Create(ctx, owner.ID, api.CreateEventRequest{Title: "Dinner", GroupID: g.ID, StartDate: start, EndDate: &end})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = s.events.Create(ctx, owner.ID, api.CreateEventRequest{Title: "Dinner", GroupID: g.ID})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestChatsAndMessages(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	owner := s.register(t, "owner")
	friend := s.register(t, "friend")
	stranger := s.register(t, "stranger")

	g, err := s.groups.Create(ctx, owner.ID, api.CreateGroupRequest{Name: "Hikers"})
	require.NoError(t, err)
	_, err = s.groups.JoinByInviteCode(ctx, friend.ID, g.InviteCode)
	require.NoError(t, err)

	chat, err := s.chats.EnsureGroupChat(ctx, owner.ID, g.ID)
	require.NoError(t, err)
	require.NotNil(t, chat.Name)
	assert.Equal(t, "Hikers Chat", *chat.Name)

	t.Run("GroupChatIsShared", func(t *testing.T) {
		again, err := s.chats.EnsureGroupChat(ctx, friend.ID, g.ID)
		require.NoError(t, err)
		assert.Equal(t, chat.ID, again.ID)

		_, err = s.chats.EnsureGroupChat(ctx, stranger.ID, g.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("SendValidation", func(t *testing.T) {
		_, err := s.messages.Send(ctx, owner.ID, chat.ID, api.SendMessageRequest{Content: "   "})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = s.messages.Send(ctx, owner.ID, chat.ID, api.SendMessageRequest{MessageType: domain.MessageImage, Content: "look"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = s.messages.Send(ctx, stranger.ID, chat.ID, api.SendMessageRequest{Content: "hi"})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Paginates", func(t *testing.T) {
		for i := 0; i < 45; i++ {
			_, err := s.messages.Send(ctx, owner.ID, chat.ID, api.SendMessageRequest{Content: fmt.Sprintf("msg %02d", i)})
			require.NoError(t, err)
		}

		first, err := s.messages.List(ctx, friend.ID, chat.ID, nil, 0)
		require.NoError(t, err)
		require.Len(t, first.Messages, service.DefaultPageSize)
		assert.True(t, first.HasMore)
		assert.Equal(t, "msg 44", first.Messages[0].Content)
		require.NotNil(t, first.NextCursor)

		second, err := s.messages.List(ctx, friend.ID, chat.ID, first.NextCursor, 0)
		require.NoError(t, err)
		assert.Len(t, second.Messages, 15)
		assert.False(t, second.HasMore)
		assert.Equal(t, "msg 00", second.Messages[14].Content)

		seen := map[string]bool{}
		for _, m := range append(first.Messages, second.Messages...) {
			assert.False(t, seen[m.ID], "duplicate %s", m.ID)
			seen[m.ID] = true
		}
	})

	t.Run("ListShowsPlaintextPreview", func(t *testing.T) {
		list, err := s.chats.ListForUser(ctx, friend.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.NotNil(t, list[0].LastMessage)
		assert.Equal(t, "msg 44", *list[0].LastMessage)
	})

	t.Run("DirectChat", func(t *testing.T) {
		_, err := s.chats.OpenDirect(ctx, owner.ID, stranger.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		_, err = s.chats.OpenDirect(ctx, owner.ID, owner.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		dm, err := s.chats.OpenDirect(ctx, owner.ID, friend.ID)
		require.NoError(t, err)
		back, err := s.chats.OpenDirect(ctx, friend.ID, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, dm.ID, back.ID)
		assert.ElementsMatch(t, []string{owner.ID, friend.ID}, back.MemberIDs)

		_, err = s.messages.List(ctx, stranger.ID, dm.ID, nil, 0)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

type failingPrune struct {
	domain.MessageRepository
}

func (failingPrune) PruneOld(context.Context, string, int) error {
	return errors.New("disk I/O error")
}

func TestSendSurvivesPruneFailure(t *testing.T) {
	ctx := context.Background()
	s := newServices(t)
	owner := s.register(t, "owner")
	g, err := s.groups.Create(ctx, owner.ID, api.CreateGroupRequest{Name: "Hikers"})
	require.NoError(t, err)
	chat, err := s.chats.EnsureGroupChat(ctx, owner.ID, g.ID)
	require.NoError(t, err)

	enc, err := security.NewEncryptor([]byte("test-key"), nil)
	require.NoError(t, err)
	repo := sqlstore.NewMessageRepo(s.db)
	messages := service.NewMessageService(s.chats, sqlstore.NewChatRepo(s.db), failingPrune{repo}, enc, 10, s.feed)

	before := len(s.feed.tables())
	msg, err := messages.Send(ctx, owner.ID, chat.ID, api.SendMessageRequest{Content: "still here"})
	require.NoError(t, err)
	assert.Equal(t, "still here", msg.Content)

	stored, err := repo.ListPage(ctx, chat.ID, nil, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, msg.ID, stored[0].ID)
	tables := s.feed.tables()
	require.Len(t, tables, before+1)
	assert.Equal(t, changefeed.TableMessages, tables[before])
}
