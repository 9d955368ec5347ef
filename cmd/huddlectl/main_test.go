package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"huddle/internal/changefeed"
	"huddle/internal/config"
	"huddle/internal/domain"
	"huddle/internal/httpserver"
	"huddle/internal/objectstore"
	"huddle/internal/security"
	"huddle/internal/store/sqlite"
	"huddle/internal/ws"
)

func newServer(t *testing.T) string {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{AppName: "Huddle API", MaxUploadBytes: 1 << 20}
	broker := changefeed.NewBroker(0, log.New(io.Discard, "", 0))
	t.Cleanup(broker.Close)
	objects, err := objectstore.New(t.TempDir(), "", cfg.MaxUploadBytes)
	require.NoError(t, err)
	enc, err := security.NewEncryptor([]byte("test-key"), nil)
	require.NoError(t, err)

	srv := httptest.NewServer(httpserver.NewRouter(cfg, db, ws.NewHub(), broker, broker, objects,
		security.NewTokenService("secret", time.Hour), security.NewPasswordHasher(bcrypt.MinCost), enc))
	t.Cleanup(srv.Close)
	return srv.URL
}

type cli struct {
	t      *testing.T
	server string
	config string
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append([]string{"--config", c.config, "--server", c.server}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) must(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "huddlectl %v", args)
	return out
}

func TestCLI(t *testing.T) {
	server := newServer(t)
	dir := t.TempDir()
	ana := &cli{t: t, server: server, config: filepath.Join(dir, "ana.yaml")}
	ben := &cli{t: t, server: server, config: filepath.Join(dir, "ben.yaml")}

	t.Run("NotLoggedIn", func(t *testing.T) {
		_, err := ana.run("groups", "list")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	ana.must("register", "--email", "ana@example.com", "--password", "Password1!", "--name", "Ana")
	ben.must("register", "--email", "ben@example.com", "--password", "Password1!", "--name", "Ben")
	assert.Contains(t, ana.must("whoami"), "Ana <ana@example.com>")

	out := ana.must("groups", "create", "Hikers")
	m := regexp.MustCompile(`\(([0-9a-f-]+)\), invite code (\S+)`).FindStringSubmatch(out)
	require.Len(t, m, 3, out)
	groupID, code := m[1], m[2]

	ben.must("groups", "join", code)
	ben.must("groups", "join", code)
	assert.Contains(t, ben.must("groups", "list"), "Hikers")

	idOf := regexp.MustCompile(`id (\S+)`)
	anaID := idOf.FindStringSubmatch(ana.must("whoami"))[1]
	benID := idOf.FindStringSubmatch(ben.must("whoami"))[1]

	t.Run("Members", func(t *testing.T) {
		out := ana.must("groups", "members", groupID)
		assert.Regexp(t, anaID+`\s+Ana\s+admin`, out)
		assert.Regexp(t, benID+`\s+Ben\s+member`, out)
	})

	out = ana.must("proposals", "create", "--group", groupID, "--title", "Lake")
	m = regexp.MustCompile(`Created proposal (\S+)`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	proposalID := m[1]

	t.Run("Vote", func(t *testing.T) {
		ben.must("proposals", "vote", proposalID, "no")
		out := ben.must("proposals", "vote", proposalID, "yes")
		assert.Contains(t, out, "1 (100%)")

		_, err := ben.run("proposals", "vote", proposalID, "maybe")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("ClosedProposal", func(t *testing.T) {
		assert.Contains(t, ana.must("proposals", "close", proposalID, "passed"), "passed")
		_, err := ben.run("proposals", "vote", proposalID, "no")
		assert.ErrorIs(t, err, domain.ErrProposalClosed)
	})

	t.Run("Comments", func(t *testing.T) {
		out := ben.must("proposals", "comment", proposalID, "bring", "snacks")
		assert.Contains(t, out, "Comment ")

		out = ana.must("proposals", "show", proposalID)
		assert.Contains(t, out, "Lake")
		assert.Contains(t, out, "1 comments")
		assert.Contains(t, out, "Ben: bring snacks")

		_, err := ben.run("proposals", "comment", proposalID, " ")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("EventFromProposal", func(t *testing.T) {
		date := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)
		out := ana.must("proposals", "create", "--group", groupID, "--title", "Picnic", "--location", "Park", "--date", date)
		id := regexp.MustCompile(`Created proposal (\S+)`).FindStringSubmatch(out)[1]
		ana.must("proposals", "close", id, "passed")

		out = ana.must("events", "from-proposal", id)
		m := regexp.MustCompile(`Event (\S+) on`).FindStringSubmatch(out)
		require.Len(t, m, 2, out)
		ben.must("events", "attend", m[1], "attending")

		out = ana.must("events", "show", m[1])
		assert.Contains(t, out, "Picnic")
		assert.Contains(t, out, "Where: Park")
		assert.Contains(t, out, "Ben: attending")
	})

	t.Run("DirectChat", func(t *testing.T) {
		dm := strings.TrimSpace(ana.must("chats", "dm", benID))
		require.NotEmpty(t, dm)
		assert.Equal(t, dm, strings.TrimSpace(ben.must("chats", "dm", anaID)))

		ben.must("chats", "send", dm, "just us")
		assert.Contains(t, ana.must("chats", "read", dm), "Ben: just us")
	})

	t.Run("Chat", func(t *testing.T) {
		chatID := regexp.MustCompile(`\S+`).FindString(ana.must("chats", "open", groupID))
		require.NotEmpty(t, chatID)
		ben.must("chats", "send", chatID, "see", "you", "there")

		out := ana.must("chats", "read", chatID)
		assert.Contains(t, out, "Ben: see you there")
		assert.Contains(t, ana.must("chats", "list"), "see you there")
	})

	t.Run("Profile", func(t *testing.T) {
		out := ben.must("profile", "set", "--first-name", "Ben", "--last-name", "Stone")
		assert.Contains(t, out, "shown as Ben Stone")
		assert.Contains(t, ben.must("whoami"), "Ben Stone <ben@example.com>")
		assert.Contains(t, ana.must("groups", "members", groupID), "Ben Stone")
	})

	t.Run("Logout", func(t *testing.T) {
		ben.must("logout")
		_, err := ben.run("whoami")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}
