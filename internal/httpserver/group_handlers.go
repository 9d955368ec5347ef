package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"huddle/internal/api"
	"huddle/internal/service"
)

// @Summary      List my groups
// @Description  Groups the caller belongs to, with member count and the caller's role
// @Tags         groups
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   domain.Group
// @Router       /groups [get]
func handleListGroups(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		groups, err := groupSvc.ListForUser(r.Context(), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, groups)
	}
}

// @Summary      Create group
// @Description  Create a group; the caller becomes its admin
// @Tags         groups
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body api.CreateGroupRequest true "Group"
// @Success      201  {object}  domain.Group
// @Failure      400  {object}  api.ErrorResponse
// @Router       /groups [post]
func handleCreateGroup(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req api.CreateGroupRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		g, err := groupSvc.Create(r.Context(), user.ID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, g)
	}
}

// @Summary      Join group
// @Description  Join a group by invite code. Joining a group twice is a no-op.
// @Tags         groups
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body api.JoinGroupRequest true "Invite code"
// @Success      200  {object}  domain.Group
// @Failure      404  {object}  api.ErrorResponse
// @Router       /groups/join [post]
func handleJoinGroup(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req api.JoinGroupRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		g, err := groupSvc.JoinByInviteCode(r.Context(), user.ID, req.InviteCode)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func handleGetGroup(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		g, err := groupSvc.Get(r.Context(), user.ID, chi.URLParam(r, "groupID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func handleUpdateGroup(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req api.UpdateGroupRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		g, err := groupSvc.Update(r.Context(), user.ID, chi.URLParam(r, "groupID"), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func handleLeaveGroup(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		if err := groupSvc.Leave(r.Context(), user.ID, chi.URLParam(r, "groupID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListMembers(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		members, err := groupSvc.ListMembers(r.Context(), user.ID, chi.URLParam(r, "groupID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, members)
	}
}

func handleRemoveMember(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		err := groupSvc.RemoveMember(r.Context(), user.ID, chi.URLParam(r, "groupID"), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handlePromoteMember(groupSvc *service.GroupService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		err := groupSvc.PromoteMember(r.Context(), user.ID, chi.URLParam(r, "groupID"), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Ensure group chat
// @Description  Return the group's chat, creating it on first use
// @Tags         chats
// @Security     BearerAuth
// @Produce      json
// @Param        groupID path string true "Group ID"
// @Success      200  {object}  domain.Chat
// @Failure      403  {object}  api.ErrorResponse
// @Router       /groups/{groupID}/chat [post]
func handleEnsureGroupChat(chatSvc *service.ChatService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		c, err := chatSvc.EnsureGroupChat(r.Context(), user.ID, chi.URLParam(r, "groupID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}
