package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"huddle/internal/api"
	"huddle/internal/service"
)

func handleListChats(chatSvc *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		chats, err := chatSvc.ListForUser(r.Context(), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, chats)
	}
}

func handleGetChat(chatSvc *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		c, err := chatSvc.Get(r.Context(), user.ID, chi.URLParam(r, "chatID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// @Summary      Open direct chat
// @Description  Find or create the direct chat with another member of one of the caller's groups
// @Tags         chats
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body api.DirectChatRequest true "Other user"
// @Success      200  {object}  domain.Chat
// @Failure      403  {object}  api.ErrorResponse
// @Router       /chats/direct [post]
func handleOpenDirectChat(chatSvc *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req api.DirectChatRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		c, err := chatSvc.OpenDirect(r.Context(), user.ID, req.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}
