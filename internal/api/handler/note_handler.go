package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"noteflow/internal/api/middleware"
	"noteflow/internal/app/service"
	"noteflow/internal/common"
)

type NoteHandler struct {
	notes *service.NoteService
}

func NewNoteHandler(ns *service.NoteService) *NoteHandler {
	return &NoteHandler{notes: ns}
}

func (h *NoteHandler) RegisterNoteRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Get("/", h.listNotes)
	r.Post("/", h.createNote)
	r.Get("/{noteID}", h.getNote)
	r.Put("/{noteID}", h.updateNote)
	r.Delete("/{noteID}", h.deleteNote)
}

func (h *NoteHandler) RegisterCategoryRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Get("/", h.listCategories)
	r.Post("/", h.createCategory)
	r.Get("/{categoryID}", h.getCategory)
	r.Put("/{categoryID}", h.updateCategory)
	r.Delete("/{categoryID}", h.deleteCategory)
}

func (h *NoteHandler) listNotes(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	resp, err := h.notes.ListNotes(r.Context(), userID, q.Get("search"), q.Get("category"), pageFromQuery(r))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *NoteHandler) createNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req service.NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.notes.CreateNote(r.Context(), userID, req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, note)
}

func (h *NoteHandler) getNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	note, err := h.notes.GetNote(r.Context(), userID, chi.URLParam(r, "noteID"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) updateNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req service.NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.notes.UpdateNote(r.Context(), userID, chi.URLParam(r, "noteID"), req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) deleteNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.notes.DeleteNote(r.Context(), userID, chi.URLParam(r, "noteID")); err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondNoContent(w)
}

func (h *NoteHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.notes.ListCategories(r.Context(), userID, r.URL.Query().Get("search"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, list)
}

func (h *NoteHandler) createCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req service.CategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.notes.CreateCategory(r.Context(), userID, req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, c)
}

func (h *NoteHandler) getCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	c, err := h.notes.GetCategory(r.Context(), userID, chi.URLParam(r, "categoryID"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, c)
}

func (h *NoteHandler) updateCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req service.CategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.notes.UpdateCategory(r.Context(), userID, chi.URLParam(r, "categoryID"), req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, c)
}

func (h *NoteHandler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.notes.DeleteCategory(r.Context(), userID, chi.URLParam(r, "categoryID")); err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondNoContent(w)
}
