package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"huddle/internal/domain"
	"huddle/internal/service"
)

// Authenticator resolves access tokens to users.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// originPolicy decides which browser origins may open a realtime socket.
// Requests without an Origin header come from non-browser clients and are
// always allowed.
type originPolicy struct {
	any     bool
	allowed map[string]bool
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{allowed: make(map[string]bool, len(origins))}
	for _, o := range origins {
		switch o = strings.ToLower(strings.TrimSpace(o)); o {
		case "":
		case "*":
			p.any = true
		default:
			p.allowed[o] = true
		}
	}
	return p
}

func (p originPolicy) allow(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || p.any {
		return true
	}
	u, err := url.Parse(strings.ToLower(origin))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	return p.allowed[u.Scheme+"://"+u.Host]
}

// bearerToken reads the access token from the Authorization header or from
// a "bearer, <token>" subprotocol pair, which is what browsers can send.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	protos := websocket.Subprotocols(r)
	if len(protos) >= 2 && strings.EqualFold(protos[0], "bearer") {
		return protos[1]
	}
	return ""
}

// MakeHandler returns an HTTP handler for the /realtime endpoint.
// Authenticates via Bearer token (Authorization header or
// Sec-WebSocket-Protocol), then serves subscribe/unsubscribe frames:
//   - subscribe   -> start forwarding changes of a table, optionally filtered
//   - unsubscribe -> stop a subscription by id
//   - ping        -> pong
//
// Changes are forwarded only for groups the user belongs to and, when a
// change names an audience, only to that audience.
func MakeHandler(
	hub *Hub,
	broker Subscriber,
	auth Authenticator,
	access Access,
	allowedOrigins []string,
	logger *log.Logger,
) http.HandlerFunc {
	if logger == nil {
		logger = log.Default()
	}
	origins := newOriginPolicy(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin:  origins.allow,
		Subprotocols: []string{"bearer"},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !origins.allow(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		user, err := auth.Authenticate(r.Context(), token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		c := newConn(wsConn, user.ID, broker, access, logger)
		c.watchMembership()
		hub.Register(user.ID, c)
		defer hub.Unregister(user.ID, c)

		go c.writePump()
		c.readPump()
	}
}

// ServiceAccess checks realtime access against the membership store and
// the chat service.
type ServiceAccess struct {
	Members domain.MembershipRepository
	Chats   *service.ChatService
}

func (a ServiceAccess) IsGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	m, err := a.Members.Get(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

func (a ServiceAccess) CanReadChat(ctx context.Context, chatID, userID string) (bool, error) {
	_, err := a.Chats.Get(ctx, userID, chatID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrNotFound):
		return false, nil
	}
	return false, err
}
