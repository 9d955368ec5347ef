package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"huddle/internal/api"
	"huddle/internal/service"
)

// @Summary      List proposals
// @Description  Proposals of one group, or of every group of the caller when group_id is omitted. Newest first, votes embedded.
// @Tags         proposals
// @Security     BearerAuth
// @Produce      json
// @Param        group_id query string false "Group ID"
// @Success      200  {array}   domain.Proposal
// @Failure      403  {object}  api.ErrorResponse
// @Router       /proposals [get]
func handleListProposals(proposalSvc *service.ProposalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		list, err := proposalSvc.List(r.Context(), user.ID, r.URL.Query().Get("group_id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// @Summary      Create proposal
// @Tags         proposals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body api.CreateProposalRequest true "Proposal"
// @Success      201  {object}  domain.Proposal
// @Failure      400  {object}  api.ErrorResponse
// @Failure      403  {object}  api.ErrorResponse
// @Router       /proposals [post]
func handleCreateProposal(proposalSvc *service.ProposalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req api.CreateProposalRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := proposalSvc.Create(r.Context(), user.ID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func handleGetProposal(proposalSvc *service.ProposalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		p, err := proposalSvc.Get(r.Context(), user.ID, chi.URLParam(r, "proposalID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleUpdateProposal(proposalSvc *service.ProposalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req api.UpdateProposalRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := proposalSvc.Update(r.Context(), user.ID, chi.URLParam(r, "proposalID"), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleDeleteProposal(proposalSvc *service.ProposalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		if err := proposalSvc.Delete(r.Context(), user.ID, chi.URLParam(r, "proposalID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// @Summary      Close voting
// @Description  Move an active proposal to closed, passed or failed
// @Tags         proposals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        proposalID path string true "Proposal ID"
// @Param        input body api.SetStatusRequest true "Status"
// @Success      200  {object}  domain.Proposal
// @Failure      409  {object}  api.ErrorResponse
// @Router       /proposals/{proposalID}/status [post]
func handleSetProposalStatus(proposalSvc *service.ProposalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req api.SetStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := proposalSvc.SetStatus(r.Context(), user.ID, chi.URLParam(r, "proposalID"), req.Status)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// @Summary      Vote
// @Description  Cast or replace the caller's vote. Rejected with 409 proposal_closed once voting has ended.
// @Tags         proposals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        proposalID path string true "Proposal ID"
// @Param        input body api.VoteRequest true "Vote"
// @Success      200  {object}  domain.Vote
// @Failure      409  {object}  api.ErrorResponse
// @Router       /proposals/{proposalID}/vote [put]
func handleCastVote(proposalSvc *service.ProposalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req api.VoteRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		v, err := proposalSvc.CastVote(r.Context(), user.ID, chi.URLParam(r, "proposalID"), req.VoteType)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleListComments(proposalSvc *service.ProposalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		list, err := proposalSvc.ListComments(r.Context(), user.ID, chi.URLParam(r, "proposalID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleAddComment(proposalSvc *service.ProposalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req api.CommentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		c, err := proposalSvc.AddComment(r.Context(), user.ID, chi.URLParam(r, "proposalID"), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

// @Summary      Create event from proposal
// @Description  Turn a passed proposal into an event. Repeated calls return the same event.
// @Tags         events
// @Security     BearerAuth
// @Produce      json
// @Param        proposalID path string true "Proposal ID"
// @Success      201  {object}  domain.Event
// @Failure      400  {object}  api.ErrorResponse
// @Router       /proposals/{proposalID}/event [post]
func handleCreateEventFromProposal(eventSvc *service.EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		e, err := eventSvc.CreateFromProposal(r.Context(), user.ID, chi.URLParam(r, "proposalID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}
