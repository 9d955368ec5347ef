package sqlstore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/domain"
	"huddle/internal/store/sqlite"
	"huddle/internal/store/sqlstore"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlstore.DB {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func seedUser(t *testing.T, db *sqlstore.DB, name string) *domain.User {
	t.Helper()
	u := &domain.User{ID: uuid.NewString(), Email: name + "@example.com", HashedPassword: "x", IsActive: true, CreatedAt: base}
	require.NoError(t, sqlstore.NewUserRepo(db).Create(context.Background(), u, &domain.Profile{Username: strPtr(name)}))
	return u
}

func seedGroup(t *testing.T, db *sqlstore.DB, owner *domain.User, code string) *domain.Group {
	t.Helper()
	g := &domain.Group{ID: uuid.NewString(), Name: "Hikers " + code, InviteCode: code, CreatedBy: owner.ID, CreatedAt: base}
	require.NoError(t, sqlstore.NewGroupRepo(db).Create(context.Background(), g))
	return g
}

func seedProposal(t *testing.T, db *sqlstore.DB, g *domain.Group, by *domain.User) *domain.Proposal {
	t.Helper()
	p := &domain.Proposal{ID: uuid.NewString(), Title: "Lake trip", GroupID: g.ID, CreatedBy: by.ID, CreatedAt: base}
	require.NoError(t, sqlstore.NewProposalRepo(db).Create(context.Background(), p))
	return p
}

func TestGroupRepo(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	groups := sqlstore.NewGroupRepo(db)
	members := sqlstore.NewMembershipRepo(db)
	owner := seedUser(t, db, "owner")
	g := seedGroup(t, db, owner, "AB12CD")

	t.Run("CreatorIsAdmin", func(t *testing.T) {
		m, err := members.Get(ctx, g.ID, owner.ID)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, domain.RoleAdmin, m.Role)
	})

	t.Run("DuplicateInviteCode", func(t *testing.T) {
		dup := &domain.Group{ID: uuid.NewString(), Name: "Other", InviteCode: "AB12CD", CreatedBy: owner.ID, CreatedAt: base}
		err := groups.Create(ctx, dup)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("JoinTwiceKeepsOneRow", func(t *testing.T) {
		joiner := seedUser(t, db, "joiner")
		for i, want := range []bool{true, false} {
			created, err := members.Add(ctx, &domain.Membership{
				ID: uuid.NewString(), GroupID: g.ID, UserID: joiner.ID, Role: domain.RoleMember, JoinedAt: base,
			})
			require.NoError(t, err)
			assert.Equal(t, want, created, "attempt %d", i)
		}
		list, err := members.ListForGroup(ctx, g.ID)
		require.NoError(t, err)
		assert.Len(t, list, 2)
		assert.Equal(t, owner.ID, list[0].UserID)
		assert.Equal(t, "joiner", *list[1].Profile.Username)
	})

	t.Run("ListForUser", func(t *testing.T) {
		list, err := groups.ListForUser(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, 2, list[0].MemberCount)
		assert.Equal(t, domain.RoleAdmin, list[0].UserRole)
	})

	t.Run("LookupMissing", func(t *testing.T) {
		got, err := groups.GetByInviteCode(ctx, "ZZZZZZ")
		assert.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestVoteRepo(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	votes := sqlstore.NewVoteRepo(db)
	proposals := sqlstore.NewProposalRepo(db)
	u := seedUser(t, db, "voter")
	g := seedGroup(t, db, u, "VOTE01")

	t.Run("LastWriteWins", func(t *testing.T) {
		p := seedProposal(t, db, g, u)
		for i, vt := range []domain.VoteType{domain.VoteYes, domain.VoteNo, domain.VoteAbstain} {
			err := votes.Upsert(ctx, &domain.Vote{
				ProposalID: p.ID, UserID: u.ID, VoteType: vt, UpdatedAt: base.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}
		list, err := votes.ListForProposal(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, domain.VoteAbstain, list[0].VoteType)
		assert.True(t, list[0].CreatedAt.Equal(base))

		got, err := proposals.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, got.Votes, 1)
		assert.Equal(t, g.Name, got.GroupName)
	})

	t.Run("ClosedProposalRejectsVote", func(t *testing.T) {
		p := seedProposal(t, db, g, u)
		require.NoError(t, votes.Upsert(ctx, &domain.Vote{ProposalID: p.ID, UserID: u.ID, VoteType: domain.VoteYes, UpdatedAt: base}))
		require.NoError(t, proposals.SetStatus(ctx, p.ID, domain.ProposalPassed, base))

		err := votes.Upsert(ctx, &domain.Vote{ProposalID: p.ID, UserID: u.ID, VoteType: domain.VoteNo, UpdatedAt: base})
		assert.ErrorIs(t, err, domain.ErrProposalClosed)

		list, err := votes.ListForProposal(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, domain.VoteYes, list[0].VoteType)

		assert.ErrorIs(t, proposals.SetStatus(ctx, p.ID, domain.ProposalFailed, base), domain.ErrProposalClosed)
	})

	t.Run("ExpiredProposalRejectsVote", func(t *testing.T) {
		p := seedProposal(t, db, g, u)
		deadline := base.Add(time.Hour)
		p.ExpiresAt = &deadline
		p.UpdatedAt = base
		require.NoError(t, proposals.Update(ctx, p))

		err := votes.Upsert(ctx, &domain.Vote{ProposalID: p.ID, UserID: u.ID, VoteType: domain.VoteYes, UpdatedAt: base.Add(2 * time.Hour)})
		assert.ErrorIs(t, err, domain.ErrProposalClosed)
	})

	t.Run("UnknownProposal", func(t *testing.T) {
		err := votes.Upsert(ctx, &domain.Vote{ProposalID: "missing", UserID: u.ID, VoteType: domain.VoteYes, UpdatedAt: base})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestEventAndAttendance(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	events := sqlstore.NewEventRepo(db)
	attendance := sqlstore.NewAttendanceRepo(db)
	proposals := sqlstore.NewProposalRepo(db)
	u := seedUser(t, db, "planner")
	g := seedGroup(t, db, u, "EVNT01")

	p := seedProposal(t, db, g, u)
	p.ImageURL = strPtr("http://img/lake.png")
	p.UpdatedAt = base
	require.NoError(t, proposals.Update(ctx, p))

	e := &domain.Event{ID: uuid.NewString(), Title: p.Title, GroupID: g.ID, CreatedBy: u.ID, ProposalID: &p.ID, StartDate: base, CreatedAt: base}
	require.NoError(t, events.Create(ctx, e))

	t.Run("ImageFromOriginatingProposal", func(t *testing.T) {
		got, err := events.GetByProposalID(ctx, p.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.NotNil(t, got.ImageURL)
		assert.Equal(t, "http://img/lake.png", *got.ImageURL)
		assert.Equal(t, g.Name, got.GroupName)
	})

	t.Run("OneEventPerProposal", func(t *testing.T) {
		dup := &domain.Event{ID: uuid.NewString(), Title: "again", GroupID: g.ID, CreatedBy: u.ID, ProposalID: &p.ID, StartDate: base, CreatedAt: base}
		assert.ErrorIs(t, events.Create(ctx, dup), domain.ErrConflict)
	})

	t.Run("AttendanceUpsert", func(t *testing.T) {
		for _, s := range []domain.AttendanceStatus{domain.Attending, domain.NotAttending, domain.Attending} {
			require.NoError(t, attendance.Upsert(ctx, &domain.Attendance{EventID: e.ID, UserID: u.ID, Status: s, UpdatedAt: base}))
		}
		list, err := attendance.ListForEvent(ctx, e.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, domain.Attending, list[0].Status)

		all, err := events.ListForGroups(ctx, []string{g.ID})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Len(t, all[0].Attendees, 1)
	})
}

func TestChatRepo(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	chats := sqlstore.NewChatRepo(db)
	messages := sqlstore.NewMessageRepo(db)
	u := seedUser(t, db, "chatter")
	other := seedUser(t, db, "friend")
	g := seedGroup(t, db, u, "CHAT01")

	t.Run("EnsureGroupChatIsIdempotent", func(t *testing.T) {
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			ids     = map[string]struct{}{}
			created int
		)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c, ok, err := chats.EnsureGroupChat(ctx, &domain.Chat{
					ID: uuid.NewString(), Name: strPtr(g.Name + " Chat"), GroupID: &g.ID, CreatedBy: u.ID, CreatedAt: base,
				})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				ids[c.ID] = struct{}{}
				if ok {
					created++
				}
			}()
		}
		wg.Wait()
		assert.Len(t, ids, 1)
		assert.Equal(t, 1, created)
	})

	t.Run("EnsureDirectChat", func(t *testing.T) {
		first, created, err := chats.EnsureDirectChat(ctx, &domain.Chat{ID: uuid.NewString(), CreatedBy: u.ID, CreatedAt: base}, []string{u.ID, other.ID})
		require.NoError(t, err)
		assert.True(t, created)
		again, created, err := chats.EnsureDirectChat(ctx, &domain.Chat{ID: uuid.NewString(), CreatedBy: other.ID, CreatedAt: base}, []string{other.ID, u.ID})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
		assert.ElementsMatch(t, []string{u.ID, other.ID}, again.MemberIDs)
	})

	t.Run("ListForUserCarriesLastMessage", func(t *testing.T) {
		c, _, err := chats.EnsureGroupChat(ctx, &domain.Chat{ID: uuid.NewString(), GroupID: &g.ID, CreatedBy: u.ID, CreatedAt: base})
		require.NoError(t, err)
		for i, body := range []string{"first", "second"} {
			require.NoError(t, messages.Create(ctx, &domain.Message{
				ID: uuid.NewString(), ChatID: c.ID, UserID: u.ID, Content: body, MessageType: domain.MessageText,
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			}))
		}
		list, err := chats.ListForUser(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		var group *domain.Chat
		for _, ch := range list {
			if ch.Type == domain.ChatGroup {
				group = ch
			}
		}
		require.NotNil(t, group)
		require.NotNil(t, group.LastMessage)
		assert.Equal(t, "second", *group.LastMessage)
		assert.Equal(t, 0, group.UnreadCount)

		forOther, err := chats.ListForUser(ctx, other.ID)
		require.NoError(t, err)
		assert.Len(t, forOther, 1)
	})
}

func TestMessagePagination(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, n int, step time.Duration) (*sqlstore.MessageRepo, string) {
		db := newStore(t)
		u := seedUser(t, db, "writer")
		g := seedGroup(t, db, u, "PAGE01")
		c, _, err := sqlstore.NewChatRepo(db).EnsureGroupChat(ctx, &domain.Chat{ID: uuid.NewString(), GroupID: &g.ID, CreatedBy: u.ID, CreatedAt: base})
		require.NoError(t, err)
		messages := sqlstore.NewMessageRepo(db)
		for i := 0; i < n; i++ {
			require.NoError(t, messages.Create(ctx, &domain.Message{
				ID: fmt.Sprintf("m%03d", i), ChatID: c.ID, UserID: u.ID, Content: fmt.Sprintf("msg %d", i),
				MessageType: domain.MessageText, CreatedAt: base.Add(time.Duration(i) * step),
			}))
		}
		return messages, c.ID
	}

	walk := func(t *testing.T, messages *sqlstore.MessageRepo, chatID string) []string {
		var (
			seen   []string
			cursor *domain.MessageCursor
		)
		for {
			page, err := messages.ListPage(ctx, chatID, cursor, 30)
			require.NoError(t, err)
			for _, m := range page {
				seen = append([]string{m.ID}, seen...)
			}
			if len(page) < 30 {
				return seen
			}
			c := page[len(page)-1].Cursor()
			cursor = &c
		}
	}

	expected := func(n int) []string {
		var ids []string
		for i := 0; i < n; i++ {
			ids = append(ids, fmt.Sprintf("m%03d", i))
		}
		return ids
	}

	t.Run("FortyFiveMessages", func(t *testing.T) {
		messages, chatID := setup(t, 45, time.Second)
		first, err := messages.ListPage(ctx, chatID, nil, 30)
		require.NoError(t, err)
		require.Len(t, first, 30)
		assert.Equal(t, "m044", first[0].ID)
		assert.Equal(t, expected(45), walk(t, messages, chatID))
	})

	t.Run("SubMillisecondSpacing", func(t *testing.T) {
		messages, chatID := setup(t, 45, 7*time.Microsecond)
		assert.Equal(t, expected(45), walk(t, messages, chatID))
	})

	t.Run("IdenticalTimestamps", func(t *testing.T) {
		messages, chatID := setup(t, 45, 0)
		assert.Equal(t, expected(45), walk(t, messages, chatID))
	})

	t.Run("PruneOld", func(t *testing.T) {
		messages, chatID := setup(t, 10, time.Second)
		require.NoError(t, messages.PruneOld(ctx, chatID, 4))
		page, err := messages.ListPage(ctx, chatID, nil, 30)
		require.NoError(t, err)
		require.Len(t, page, 4)
		assert.Equal(t, "m009", page[0].ID)
		assert.Equal(t, "m006", page[3].ID)
	})
}
