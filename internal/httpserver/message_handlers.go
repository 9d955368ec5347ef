package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"huddle/internal/api"
	"huddle/internal/domain"
	"huddle/internal/service"
)

// parseCursor reads the before_at / before_id keyset cursor. Both must be
// given together.
func parseCursor(r *http.Request) (*domain.MessageCursor, bool) {
	q := r.URL.Query()
	at, id := q.Get("before_at"), q.Get("before_id")
	if at == "" && id == "" {
		return nil, true
	}
	if at == "" || id == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, false
	}
	return &domain.MessageCursor{CreatedAt: t, ID: id}, true
}

// @Summary      List messages
// @Description  One page of a chat, newest first. Pass next_cursor of the previous page as before_at/before_id to load older messages.
// @Tags         chats
// @Security     BearerAuth
// @Produce      json
// @Param        chatID    path  string true  "Chat ID"
// @Param        before_at query string false "cursor timestamp (RFC 3339)"
// @Param        before_id query string false "cursor message id"
// @Param        limit     query int    false "page size, default 30, max 100"
// @Success      200  {object}  api.MessagePage
// @Failure      403  {object}  api.ErrorResponse
// @Router       /chats/{chatID}/messages [get]
func handleListMessages(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		cursor, ok := parseCursor(r)
		if !ok {
			badRequest(w, "invalid cursor")
			return
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				badRequest(w, "invalid limit")
				return
			}
			limit = n
		}

		page, err := msgSvc.List(r.Context(), user.ID, chi.URLParam(r, "chatID"), cursor, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// @Summary      Send message
// @Tags         chats
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        chatID path string true "Chat ID"
// @Param        input body api.SendMessageRequest true "Message"
// @Success      201  {object}  domain.Message
// @Failure      400  {object}  api.ErrorResponse
// @Router       /chats/{chatID}/messages [post]
func handleSendMessage(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req api.SendMessageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		msg, err := msgSvc.Send(r.Context(), user.ID, chi.URLParam(r, "chatID"), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}
