package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"noteflow/internal/api/middleware"
	"noteflow/internal/app/service"
	"noteflow/internal/common"
	"noteflow/internal/domain/model"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 32 << 20

type TranscriptHandler struct {
	transcripts *service.TranscriptService
}

func NewTranscriptHandler(ts *service.TranscriptService) *TranscriptHandler {
	return &TranscriptHandler{transcripts: ts}
}

func (h *TranscriptHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/status-summary", h.statusSummary)
	r.Get("/{transcriptID}", h.get)
	r.Delete("/{transcriptID}", h.delete)
	r.Post("/{transcriptID}/retry", h.retry)
}

func (h *TranscriptHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			common.RespondWithError(w, http.StatusBadRequest, "No file provided")
			return
		}
		common.RespondWithError(w, http.StatusBadRequest, "Invalid file upload: "+err.Error())
		return
	}
	defer file.Close()

	resp, err := h.transcripts.Create(r.Context(), userID, service.CreateTranscriptRequest{
		Title:    r.FormValue("title"),
		FileName: header.Filename,
		Size:     header.Size,
		File:     file,
	})
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, resp)
}

func (h *TranscriptHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	status := model.JobStatus(r.URL.Query().Get("status"))
	resp, err := h.transcripts.List(r.Context(), userID, status, pageFromQuery(r))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *TranscriptHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	resp, err := h.transcripts.Get(r.Context(), userID, chi.URLParam(r, "transcriptID"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *TranscriptHandler) delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.transcripts.Delete(r.Context(), userID, chi.URLParam(r, "transcriptID")); err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondNoContent(w)
}

func (h *TranscriptHandler) retry(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	resp, err := h.transcripts.Retry(r.Context(), userID, chi.URLParam(r, "transcriptID"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *TranscriptHandler) statusSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	counts, err := h.transcripts.StatusSummary(r.Context(), userID)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, counts)
}
