// Package client talks to the huddle server over its REST API and realtime
// socket. Error bodies are decoded back into the domain sentinel errors so
// callers can use errors.Is just as the services do.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"huddle/internal/api"
	"huddle/internal/domain"
)

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu      sync.RWMutex
	session domain.Session
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSession starts the client with a previously obtained session.
func WithSession(s domain.Session) Option {
	return func(c *Client) { c.session = s }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns a copy of the current session. It is invalid until a
// successful Register or Login.
func (c *Client) Session() *domain.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.session
	return &s
}

func (c *Client) setSession(s domain.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.AccessToken
}

// Error is a non-2xx response. It unwraps to the matching domain sentinel.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("huddle: %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("huddle: %s", e.Message)
}

func (e *Error) Unwrap() error {
	if err := api.CodeError(e.Code); err != nil {
		return err
	}
	switch e.Status {
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrNotFound
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	u := c.baseURL + "/api" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		var er api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
			apiErr.Code, apiErr.Message = er.Code, er.Error
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// Auth

func (c *Client) Register(ctx context.Context, in api.RegisterRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, in, &resp); err != nil {
		return nil, err
	}
	c.adopt(&resp)
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, api.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.adopt(&resp)
	return &resp, nil
}

func (c *Client) adopt(resp *api.TokenResponse) {
	s := domain.Session{AccessToken: resp.AccessToken}
	if resp.User != nil {
		s.UserID = resp.User.ID
	}
	c.setSession(s)
}

// Logout revokes every token of the user and clears the local session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil); err != nil {
		return err
	}
	c.setSession(domain.Session{})
	return nil
}

func (c *Client) Me(ctx context.Context) (*api.MeResponse, error) {
	var resp api.MeResponse
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Profiles

func (c *Client) GetProfiles(ctx context.Context, ids []string) ([]*domain.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []*domain.Profile
	q := url.Values{"ids": {strings.Join(ids, ",")}}
	if err := c.do(ctx, http.MethodGet, "/profiles", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, in api.UpdateProfileRequest) (*domain.Profile, error) {
	var out domain.Profile
	if err := c.do(ctx, http.MethodPatch, "/profiles/me", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Groups

func (c *Client) ListGroups(ctx context.Context) ([]*domain.Group, error) {
	var out []*domain.Group
	if err := c.do(ctx, http.MethodGet, "/groups", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateGroup(ctx context.Context, in api.CreateGroupRequest) (*domain.Group, error) {
	var out domain.Group
	if err := c.do(ctx, http.MethodPost, "/groups", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JoinGroup(ctx context.Context, inviteCode string) (*domain.Group, error) {
	var out domain.Group
	if err := c.do(ctx, http.MethodPost, "/groups/join", nil, api.JoinGroupRequest{InviteCode: inviteCode}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LeaveGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/leave", nil, nil, nil)
}

func (c *Client) ListMembers(ctx context.Context, groupID string) ([]*domain.Membership, error) {
	var out []*domain.Membership
	if err := c.do(ctx, http.MethodGet, "/groups/"+url.PathEscape(groupID)+"/members", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Proposals

func groupQuery(groupID string) url.Values {
	if groupID == "" {
		return nil
	}
	return url.Values{"group_id": {groupID}}
}

func (c *Client) ListProposals(ctx context.Context, groupID string) ([]*domain.Proposal, error) {
	var out []*domain.Proposal
	if err := c.do(ctx, http.MethodGet, "/proposals", groupQuery(groupID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetProposal(ctx context.Context, id string) (*domain.Proposal, error) {
	var out domain.Proposal
	if err := c.do(ctx, http.MethodGet, "/proposals/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateProposal(ctx context.Context, in api.CreateProposalRequest) (*domain.Proposal, error) {
	var out domain.Proposal
	if err := c.do(ctx, http.MethodPost, "/proposals", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetProposalStatus(ctx context.Context, id string, status domain.ProposalStatus) (*domain.Proposal, error) {
	var out domain.Proposal
	if err := c.do(ctx, http.MethodPost, "/proposals/"+url.PathEscape(id)+"/status", nil, api.SetStatusRequest{Status: status}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CastVote(ctx context.Context, proposalID string, voteType domain.VoteType) (*domain.Vote, error) {
	var out domain.Vote
	if err := c.do(ctx, http.MethodPut, "/proposals/"+url.PathEscape(proposalID)+"/vote", nil, api.VoteRequest{VoteType: voteType}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListComments(ctx context.Context, proposalID string) ([]*domain.Comment, error) {
	var out []*domain.Comment
	if err := c.do(ctx, http.MethodGet, "/proposals/"+url.PathEscape(proposalID)+"/comments", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddComment(ctx context.Context, proposalID, content string) (*domain.Comment, error) {
	var out domain.Comment
	if err := c.do(ctx, http.MethodPost, "/proposals/"+url.PathEscape(proposalID)+"/comments", nil, api.CommentRequest{Content: content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events

func (c *Client) ListEvents(ctx context.Context, groupID string) ([]*domain.Event, error) {
	var out []*domain.Event
	if err := c.do(ctx, http.MethodGet, "/events", groupQuery(groupID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	var out domain.Event
	if err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateEvent(ctx context.Context, in api.CreateEventRequest) (*domain.Event, error) {
	var out domain.Event
	if err := c.do(ctx, http.MethodPost, "/events", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateEventFromProposal(ctx context.Context, proposalID string) (*domain.Event, error) {
	var out domain.Event
	if err := c.do(ctx, http.MethodPost, "/proposals/"+url.PathEscape(proposalID)+"/event", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetAttendance(ctx context.Context, eventID string, status domain.AttendanceStatus) (*domain.Attendance, error) {
	var out domain.Attendance
	if err := c.do(ctx, http.MethodPut, "/events/"+url.PathEscape(eventID)+"/attendance", nil, api.AttendanceRequest{Status: status}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chats

func (c *Client) ListChats(ctx context.Context) ([]*domain.Chat, error) {
	var out []*domain.Chat
	if err := c.do(ctx, http.MethodGet, "/chats", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) EnsureGroupChat(ctx context.Context, groupID string) (*domain.Chat, error) {
	var out domain.Chat
	if err := c.do(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/chat", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) OpenDirectChat(ctx context.Context, userID string) (*domain.Chat, error) {
	var out domain.Chat
	if err := c.do(ctx, http.MethodPost, "/chats/direct", nil, api.DirectChatRequest{UserID: userID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages returns one page, newest first, strictly older than before
// when before is set.
func (c *Client) ListMessages(ctx context.Context, chatID string, before *domain.MessageCursor, limit int) (*api.MessagePage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if before != nil {
		q.Set("before_at", before.CreatedAt.UTC().Format(time.RFC3339Nano))
		q.Set("before_id", before.ID)
	}
	var out api.MessagePage
	if err := c.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID)+"/messages", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID string, in api.SendMessageRequest) (*domain.Message, error) {
	var out domain.Message
	if err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(chatID)+"/messages", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Storage

// Upload stores r in bucket and returns its public URL.
func (c *Client) Upload(ctx context.Context, bucket, filename string, r io.Reader) (*api.UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/storage/"+url.PathEscape(bucket), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out api.UploadResponse
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
