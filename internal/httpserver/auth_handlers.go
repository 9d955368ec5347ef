package httpserver

import (
	"net/http"

	"huddle/internal/api"
	"huddle/internal/service"
	"huddle/internal/ws"
)

// @Summary      Register a new user
// @Description  Register a new user with a profile and return an access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body api.RegisterRequest true "Register input"
// @Success      201  {object}  api.TokenResponse
// @Failure      400  {object}  api.ErrorResponse
// @Failure      409  {object}  api.ErrorResponse
// @Router       /auth/register [post]
func handleRegister(authSvc *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.RegisterRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if _, _, err := authSvc.Register(r.Context(), req); err != nil {
			writeError(w, err)
			return
		}

		// Auto-login after registration
		resp, err := authSvc.Login(r.Context(), api.LoginRequest{Email: req.Email, Password: req.Password})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

// @Summary      Login
// @Description  Login with email and password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body api.LoginRequest true "Login input"
// @Success      200  {object}  api.TokenResponse
// @Failure      400  {object}  api.ErrorResponse
// @Failure      401  {object}  api.ErrorResponse
// @Router       /auth/login [post]
func handleLogin(authSvc *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.LoginRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		resp, err := authSvc.Login(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// @Summary      Logout
// @Description  End every session of the current user and close their realtime connections
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  api.ErrorResponse
// @Router       /auth/logout [post]
func handleLogout(authSvc *service.AuthService, hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		if err := authSvc.Logout(r.Context(), user.ID); err != nil {
			writeError(w, err)
			return
		}
		hub.DisconnectUser(user.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Get Current User
// @Description  Get the signed-in user and their profile
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  api.MeResponse
// @Failure      401  {object}  api.ErrorResponse
// @Router       /auth/me [get]
func handleMe(profileSvc *service.ProfileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		profile, err := profileSvc.Get(r.Context(), user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, api.MeResponse{User: user, Profile: profile})
	}
}
