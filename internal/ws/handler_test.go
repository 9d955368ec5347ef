package ws

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/changefeed"
	"huddle/internal/domain"
)

type fakeAuth map[string]string

func (f fakeAuth) Authenticate(_ context.Context, token string) (*domain.User, error) {
	if id, ok := f[token]; ok {
		return &domain.User{ID: id, IsActive: true}, nil
	}
	return nil, domain.ErrUnauthorized
}

type fakeAccess struct {
	groups map[string]bool
	chats  map[string]bool
}

func (f fakeAccess) IsGroupMember(_ context.Context, groupID, _ string) (bool, error) {
	return f.groups[groupID], nil
}

func (f fakeAccess) CanReadChat(_ context.Context, chatID, _ string) (bool, error) {
	return f.chats[chatID], nil
}

// revocableAccess lets a test drop a membership while a connection holds a
// cached answer for it.
type revocableAccess struct {
	mu     sync.Mutex
	groups map[string]bool
	calls  int
}

func (a *revocableAccess) IsGroupMember(_ context.Context, groupID, _ string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.groups[groupID], nil
}

func (a *revocableAccess) CanReadChat(context.Context, string, string) (bool, error) {
	return false, nil
}

func (a *revocableAccess) revoke(groupID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.groups, groupID)
}

func TestOriginPolicy(t *testing.T) {
	p := newOriginPolicy([]string{"http://localhost:3000", " "})

	cases := map[string]bool{
		"":                           true,
		"http://localhost:3000":      true,
		"HTTP://LOCALHOST:3000":      true,
		"http://localhost:3000/path": true,
		"http://evil.example":        false,
		"not a url":                  false,
	}
	for origin, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/realtime", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		assert.Equal(t, want, p.allow(r), origin)
	}

	r := httptest.NewRequest(http.MethodGet, "/realtime", nil)
	r.Header.Set("Origin", "http://anything.example")
	assert.True(t, newOriginPolicy([]string{"*"}).allow(r))
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name, header, value, want string
	}{
		{"Header", "Authorization", "Bearer abc", "abc"},
		{"HeaderCase", "Authorization", "bearer  abc ", "abc"},
		{"OtherScheme", "Authorization", "Basic abc", ""},
		{"Subprotocol", "Sec-WebSocket-Protocol", "bearer, xyz", "xyz"},
		{"SubprotocolWithoutToken", "Sec-WebSocket-Protocol", "bearer", ""},
		{"Missing", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/realtime", nil)
			if tc.header != "" {
				r.Header.Set(tc.header, tc.value)
			}
			assert.Equal(t, tc.want, bearerToken(r))
		})
	}
}

func dial(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime"
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func readFrame(t *testing.T, c *websocket.Conn) ServerFrame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f ServerFrame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func TestRealtime(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	broker := changefeed.NewBroker(16, logger)
	defer broker.Close()
	hub := NewHub()
	access := fakeAccess{groups: map[string]bool{"g1": true}, chats: map[string]bool{"c1": true}}

	mux := http.NewServeMux()
	mux.Handle("/realtime", MakeHandler(hub, broker, fakeAuth{"tok": "u1"}, access, nil, logger))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	t.Run("RejectsBadToken", func(t *testing.T) {
		_, resp, err := dial(t, srv, "nope")
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	conn, _, err := dial(t, srv, "tok")
	require.NoError(t, err)
	defer conn.Close()

	t.Run("ForbiddenGroupFilter", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(ClientFrame{
			Type: FrameSubscribe, ID: "s0", Table: changefeed.TableProposals,
			Filter: changefeed.Filter{Column: "group_id", Value: "g2"},
		}))
		f := readFrame(t, conn)
		assert.Equal(t, FrameError, f.Type)
		assert.Equal(t, "s0", f.ID)
	})

	t.Run("DeliversOnlyMemberGroups", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameSubscribe, ID: "s1", Table: changefeed.TableProposals}))
		f := readFrame(t, conn)
		require.Equal(t, FrameSubscribed, f.Type)

		broker.Publish(changefeed.NewChange(changefeed.TableProposals, changefeed.Insert, nil, map[string]string{"id": "p2", "group_id": "g2"}))
		broker.Publish(changefeed.NewChange(changefeed.TableProposals, changefeed.Insert, nil, map[string]string{"id": "p1", "group_id": "g1"}))

		f = readFrame(t, conn)
		require.Equal(t, FrameChange, f.Type)
		assert.Equal(t, "s1", f.ID)
		require.NotNil(t, f.Change)
		assert.Equal(t, "p1", f.Change.Columns["id"])
	})

	t.Run("AudienceRestricted", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(ClientFrame{
			Type: FrameSubscribe, ID: "s2", Table: changefeed.TableMessages,
			Filter: changefeed.Filter{Column: "chat_id", Value: "c1"},
		}))
		require.Equal(t, FrameSubscribed, readFrame(t, conn).Type)

		other := changefeed.NewChange(changefeed.TableMessages, changefeed.Insert, nil, map[string]string{"id": "m1", "chat_id": "c1"})
		other.Audience = []string{"u2", "u3"}
		broker.Publish(other)
		mine := changefeed.NewChange(changefeed.TableMessages, changefeed.Insert, nil, map[string]string{"id": "m2", "chat_id": "c1"})
		mine.Audience = []string{"u1", "u2"}
		broker.Publish(mine)

		f := readFrame(t, conn)
		require.Equal(t, FrameChange, f.Type)
		assert.Equal(t, "m2", f.Change.Columns["id"])
	})

	t.Run("PingPong", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(ClientFrame{Type: FramePing, ID: "p"}))
		assert.Equal(t, FramePong, readFrame(t, conn).Type)
	})

	t.Run("DisconnectUser", func(t *testing.T) {
		assert.Eventually(t, func() bool { return hub.Connections() == 1 }, time.Second, 10*time.Millisecond)
		assert.Equal(t, 1, hub.DisconnectUser("u1"))
		assert.Eventually(t, func() bool { return hub.Connections() == 0 }, time.Second, 10*time.Millisecond)
		assert.Eventually(t, func() bool { return broker.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
	})
}

func TestMembershipChangeDropsCachedAccess(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	broker := changefeed.NewBroker(16, logger)
	defer broker.Close()
	access := &revocableAccess{groups: map[string]bool{"g1": true, "g2": true}}

	c := newConn(nil, "u1", broker, access, logger)
	c.watchMembership()
	require.Equal(t, 1, broker.Subscribers())

	proposal := changefeed.NewChange(changefeed.TableProposals, changefeed.Update, nil,
		map[string]string{"id": "p1", "group_id": "g1"})
	require.True(t, c.deliverable(proposal))
	require.True(t, c.deliverable(proposal))
	assert.Equal(t, 1, access.calls, "second check served from cache")

	t.Run("LeaveRevokesBeforeTTL", func(t *testing.T) {
		access.revoke("g1")
		broker.Publish(changefeed.NewChange(changefeed.TableMembers, changefeed.Delete, nil,
			map[string]string{"group_id": "g1", "user_id": "u1"}))
		assert.Eventually(t, func() bool { return !c.deliverable(proposal) }, time.Second, 10*time.Millisecond)
	})

	t.Run("OtherUsersChangesKeepCache", func(t *testing.T) {
		other := changefeed.NewChange(changefeed.TableProposals, changefeed.Update, nil,
			map[string]string{"id": "p2", "group_id": "g2"})
		require.True(t, c.deliverable(other))
		access.mu.Lock()
		before := access.calls
		access.mu.Unlock()

		broker.Publish(changefeed.NewChange(changefeed.TableMembers, changefeed.Delete, nil,
			map[string]string{"group_id": "g2", "user_id": "u2"}))
		assert.Never(t, func() bool {
			c.cacheMu.Lock()
			defer c.cacheMu.Unlock()
			_, ok := c.groups["g2"]
			return !ok
		}, 100*time.Millisecond, 10*time.Millisecond)
		assert.True(t, c.deliverable(other))
		access.mu.Lock()
		assert.Equal(t, before, access.calls)
		access.mu.Unlock()
	})

	c.mu.Lock()
	c.membership()
	c.membership = nil
	c.mu.Unlock()
	assert.Equal(t, 0, broker.Subscribers())
}
