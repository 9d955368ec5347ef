package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"huddle/internal/api"
	"huddle/internal/service"
)

// @Summary      List profiles
// @Description  Batch lookup of profiles by comma separated user ids; unknown ids are skipped
// @Tags         profiles
// @Security     BearerAuth
// @Produce      json
// @Param        ids query string true "comma separated user ids"
// @Success      200  {array}   domain.Profile
// @Failure      400  {object}  api.ErrorResponse
// @Router       /profiles [get]
func handleListProfiles(profileSvc *service.ProfileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("ids")
		if raw == "" {
			badRequest(w, "ids is required")
			return
		}
		ids := strings.Split(raw, ",")
		for i := range ids {
			ids[i] = strings.TrimSpace(ids[i])
		}
		profiles, err := profileSvc.GetMany(r.Context(), ids)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profiles)
	}
}

func handleGetProfile(profileSvc *service.ProfileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := profileSvc.Get(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func handleUpdateMyProfile(profileSvc *service.ProfileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req api.UpdateProfileRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		profile, err := profileSvc.UpdateOwn(r.Context(), user.ID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}
