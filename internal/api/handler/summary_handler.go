package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"noteflow/internal/api/middleware"
	"noteflow/internal/app/service"
	"noteflow/internal/common"
	"noteflow/internal/domain/model"
)

type SummaryHandler struct {
	summaries *service.SummaryService
}

func NewSummaryHandler(ss *service.SummaryService) *SummaryHandler {
	return &SummaryHandler{summaries: ss}
}

func (h *SummaryHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/status-summary", h.statusSummary)
	r.Get("/{summaryID}", h.get)
	r.Delete("/{summaryID}", h.delete)
	r.Post("/{summaryID}/regenerate", h.regenerate)
}

func (h *SummaryHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req service.CreateSummaryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.summaries.Create(r.Context(), userID, req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, resp)
}

func (h *SummaryHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	status := model.JobStatus(r.URL.Query().Get("status"))
	resp, err := h.summaries.List(r.Context(), userID, status, pageFromQuery(r))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *SummaryHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	resp, err := h.summaries.Get(r.Context(), userID, chi.URLParam(r, "summaryID"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *SummaryHandler) delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.summaries.Delete(r.Context(), userID, chi.URLParam(r, "summaryID")); err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondNoContent(w)
}

func (h *SummaryHandler) regenerate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	resp, err := h.summaries.Regenerate(r.Context(), userID, chi.URLParam(r, "summaryID"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *SummaryHandler) statusSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	counts, err := h.summaries.StatusSummary(r.Context(), userID)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, counts)
}
