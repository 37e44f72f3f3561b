package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"cvreview/internal/review/model"
	"cvreview/internal/review/repository"
	"cvreview/pkg/logger"
)

func (h *Handler) GenerateRejection(w http.ResponseWriter, r *http.Request) {
	h.generateLetter(w, r, model.LetterRejection)
}

func (h *Handler) GenerateAcceptance(w http.ResponseWriter, r *http.Request) {
	h.generateLetter(w, r, model.LetterAcceptance)
}

func (h *Handler) generateLetter(w http.ResponseWriter, r *http.Request, kind model.LetterKind) {
	var req model.LetterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Language == "" {
		req.Language = "en"
	}
	resp, err := h.Assistant.Letter(r.Context(), kind, req)
	if err != nil {
		http.Error(w, "Failed to generate "+string(kind)+" letter: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GradeCV grades a registered document's text against a position.
func (h *Handler) GradeCV(w http.ResponseWriter, r *http.Request) {
	var req model.GradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.PositionDescription) == "" {
		http.Error(w, "Position description is required", http.StatusBadRequest)
		return
	}
	if req.Language == "" {
		req.Language = "en"
	}

	text, err := h.Documents.ContentByID(r.Context(), req.DocumentID)
	if err != nil && !errors.Is(err, repository.ErrDocumentNotFound) {
		http.Error(w, "Failed to grade CV: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if errors.Is(err, repository.ErrDocumentNotFound) {
		logger.Sugar.Warnf("No stored text for document %s, grading without it", req.DocumentID)
	}

	resp, err := h.Assistant.Grade(r.Context(), req, text)
	if err != nil {
		http.Error(w, "Failed to grade CV: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
