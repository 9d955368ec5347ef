package httpserver_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"huddle/internal/api"
	"huddle/internal/changefeed"
	"huddle/internal/config"
	"huddle/internal/domain"
	"huddle/internal/httpserver"
	"huddle/internal/objectstore"
	"huddle/internal/security"
	"huddle/internal/store/sqlite"
	"huddle/internal/ws"
)

type testServer struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		AppName:            "Huddle API",
		MaxUploadBytes:     1 << 20,
		MaxMessagesPerChat: 100,
	}
	broker := changefeed.NewBroker(16, log.New(io.Discard, "", 0))
	t.Cleanup(broker.Close)
	objects, err := objectstore.New(t.TempDir(), "", cfg.MaxUploadBytes)
	require.NoError(t, err)
	enc, err := security.NewEncryptor([]byte("test-key"), nil)
	require.NoError(t, err)

	router := httpserver.NewRouter(cfg, db, ws.NewHub(), broker, broker, objects,
		security.NewTokenService("secret", time.Hour), security.NewPasswordHasher(bcrypt.MinCost), enc)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv}
}

// do sends body as JSON and decodes a JSON response into out when non-nil.
func (s *testServer) do(method, path, token string, body, out any) int {
	s.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) register(name string) api.TokenResponse {
	s.t.Helper()
	var resp api.TokenResponse
	code := s.do(http.MethodPost, "/api/auth/register", "", api.RegisterRequest{
		Email: name + "@example.com", Password: "Password1!", DisplayName: &name,
	}, &resp)
	require.Equal(s.t, http.StatusCreated, code)
	require.NotEmpty(s.t, resp.AccessToken)
	return resp
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	ana := s.register("ana")

	t.Run("DuplicateEmail", func(t *testing.T) {
		var e api.ErrorResponse
		code := s.do(http.MethodPost, "/api/auth/register", "", api.RegisterRequest{Email: "ana@example.com", Password: "Password1!"}, &e)
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, api.CodeConflict, e.Code)
	})

	t.Run("MissingToken", func(t *testing.T) {
		var e api.ErrorResponse
		code := s.do(http.MethodGet, "/api/auth/me", "", nil, &e)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, api.CodeUnauthorized, e.Code)
	})

	t.Run("Me", func(t *testing.T) {
		var me api.MeResponse
		code := s.do(http.MethodGet, "/api/auth/me", ana.AccessToken, nil, &me)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ana@example.com", me.User.Email)
		require.NotNil(t, me.Profile.DisplayName)
		assert.Equal(t, "ana", *me.Profile.DisplayName)
	})

	t.Run("LogoutRevokesToken", func(t *testing.T) {
		var login api.TokenResponse
		code := s.do(http.MethodPost, "/api/auth/login", "", api.LoginRequest{Email: "ana@example.com", Password: "Password1!"}, &login)
		require.Equal(t, http.StatusOK, code)

		assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/api/auth/logout", login.AccessToken, nil, nil))
		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/me", login.AccessToken, nil, nil))
		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/me", ana.AccessToken, nil, nil))

		var again api.TokenResponse
		require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/auth/login", "", api.LoginRequest{Email: "ana@example.com", Password: "Password1!"}, &again))
		assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/auth/me", again.AccessToken, nil, nil))
	})
}

func TestPlanningFlow(t *testing.T) {
	s := newTestServer(t)
	ana := s.register("ana").AccessToken
	ben := s.register("ben").AccessToken

	var g domain.Group
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/groups", ana, api.CreateGroupRequest{Name: "Hikers"}, &g))
	require.Len(t, g.InviteCode, 6)

	var p domain.Proposal
	t.Run("NonMemberCannotPropose", func(t *testing.T) {
		code := s.do(http.MethodPost, "/api/proposals", ben, api.CreateProposalRequest{Title: "Lake", GroupID: g.ID}, nil)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("JoinTwice", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			var joined domain.Group
			code := s.do(http.MethodPost, "/api/groups/join", ben, api.JoinGroupRequest{InviteCode: " " + g.InviteCode + " "}, &joined)
			require.Equal(t, http.StatusOK, code)
			assert.Equal(t, g.ID, joined.ID)
		}
		var members []domain.Membership
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/groups/"+g.ID+"/members", ana, nil, &members))
		assert.Len(t, members, 2)
	})

	t.Run("VoteUntilClosed", func(t *testing.T) {
		require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/proposals", ana, api.CreateProposalRequest{Title: "Lake", GroupID: g.ID}, &p))

		assert.Equal(t, http.StatusOK, s.do(http.MethodPut, "/api/proposals/"+p.ID+"/vote", ben, api.VoteRequest{VoteType: domain.VoteYes}, nil))
		assert.Equal(t, http.StatusOK, s.do(http.MethodPut, "/api/proposals/"+p.ID+"/vote", ben, api.VoteRequest{VoteType: domain.VoteAbstain}, nil))

		var got domain.Proposal
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/proposals/"+p.ID, ana, nil, &got))
		require.Len(t, got.Votes, 1)
		assert.Equal(t, domain.VoteAbstain, got.Votes[0].VoteType)

		require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/proposals/"+p.ID+"/status", ana, api.SetStatusRequest{Status: domain.ProposalFailed}, nil))

		var e api.ErrorResponse
		assert.Equal(t, http.StatusConflict, s.do(http.MethodPut, "/api/proposals/"+p.ID+"/vote", ben, api.VoteRequest{VoteType: domain.VoteYes}, &e))
		assert.Equal(t, api.CodeProposalClosed, e.Code)
	})

	t.Run("BadVoteBody", func(t *testing.T) {
		var e api.ErrorResponse
		assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/api/proposals/"+p.ID+"/vote", ben, map[string]string{"vote_type": "maybe"}, &e))
		assert.Equal(t, api.CodeInvalidInput, e.Code)
	})

	t.Run("ChatMessages", func(t *testing.T) {
		var chat domain.Chat
		require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/groups/"+g.ID+"/chat", ben, nil, &chat))

		for _, text := range []string{"hi", "hello", "hey"} {
			require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/chats/"+chat.ID+"/messages", ana, api.SendMessageRequest{Content: text}, nil))
		}
		var page api.MessagePage
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/chats/"+chat.ID+"/messages?limit=2", ben, nil, &page))
		require.Len(t, page.Messages, 2)
		assert.True(t, page.HasMore)
		assert.Equal(t, "hey", page.Messages[0].Content)
		require.NotNil(t, page.NextCursor)

		var older api.MessagePage
		path := "/api/chats/" + chat.ID + "/messages?before_at=" + page.NextCursor.CreatedAt.Format(time.RFC3339Nano) + "&before_id=" + page.NextCursor.ID
		require.Equal(t, http.StatusOK, s.do(http.MethodGet, path, ben, nil, &older))
		require.Len(t, older.Messages, 1)
		assert.Equal(t, "hi", older.Messages[0].Content)
		assert.False(t, older.HasMore)

		assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/chats/"+chat.ID+"/messages?before_id=x", ben, nil, nil))
	})
}

func TestUpload(t *testing.T) {
	s := newTestServer(t)
	ana := s.register("ana").AccessToken

	upload := func(bucket, filename string, content []byte) (*http.Response, api.UploadResponse) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/api/storage/"+bucket, &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+ana)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out api.UploadResponse
		if resp.StatusCode == http.StatusCreated {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		}
		return resp, out
	}

	t.Run("ImageRoundTrip", func(t *testing.T) {
		resp, out := upload(objectstore.BucketProposalImages, "lake.png", []byte("not really a png"))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, objectstore.BucketProposalImages, out.Bucket)

		got, err := http.Get(s.srv.URL + out.URL)
		require.NoError(t, err)
		defer got.Body.Close()
		body, _ := io.ReadAll(got.Body)
		assert.Equal(t, http.StatusOK, got.StatusCode)
		assert.Equal(t, "not really a png", string(body))
	})

	t.Run("NonImageRejected", func(t *testing.T) {
		resp, _ := upload(objectstore.BucketAvatars, "notes.txt", []byte("x"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("UnknownBucket", func(t *testing.T) {
		resp, _ := upload("secrets", "a.png", []byte("x"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
