package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"huddle/internal/api"
	"huddle/internal/service"
)

// @Summary      List events
// @Description  Events by ascending start date, attendees embedded
// @Tags         events
// @Security     BearerAuth
// @Produce      json
// @Param        group_id query string false "Group ID"
// @Success      200  {array}   domain.Event
// @Router       /events [get]
func handleListEvents(eventSvc *service.EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		list, err := eventSvc.List(r.Context(), user.ID, r.URL.Query().Get("group_id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleCreateEvent(eventSvc *service.EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req api.CreateEventRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		e, err := eventSvc.Create(r.Context(), user.ID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func handleGetEvent(eventSvc *service.EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		e, err := eventSvc.Get(r.Context(), user.ID, chi.URLParam(r, "eventID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// @Summary      Set attendance
// @Tags         events
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        eventID path string true "Event ID"
// @Param        input body api.AttendanceRequest true "Attendance"
// @Success      200  {object}  domain.Attendance
// @Router       /events/{eventID}/attendance [put]
func handleSetAttendance(eventSvc *service.EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req api.AttendanceRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		a, err := eventSvc.SetAttendance(r.Context(), user.ID, chi.URLParam(r, "eventID"), req.Status)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}
