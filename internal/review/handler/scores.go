package handler

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"

	"cvreview/internal/review"
	"cvreview/internal/review/model"
	"cvreview/pkg/logger"
)

// DocumentUpload registers a workspace document with its extracted text.
type DocumentUpload struct {
	Document model.Document `json:"document"`
	Content  string         `json:"content"`
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ws := r.PathValue("workspaceId")
	docs, err := h.Documents.List(r.Context(), ws)
	if err != nil {
		http.Error(w, "Failed to get documents", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) PutDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentUpload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Document.ID == "" || req.Document.Name == "" {
		http.Error(w, "Document id and name are required", http.StatusBadRequest)
		return
	}
	if req.Document.MimeType == "" {
		req.Document.MimeType = "application/pdf"
	}
	if err := h.Documents.Upsert(r.Context(), r.PathValue("workspaceId"), req.Document, req.Content); err != nil {
		http.Error(w, "Failed to save document", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "Document saved successfully"})
}

// GetScores answers with empty scores when they cannot be loaded, so a new
// workspace and a broken one look the same to the client.
func (h *Handler) GetScores(w http.ResponseWriter, r *http.Request) {
	ws := r.PathValue("workspaceId")
	scores, err := h.Scores.Load(r.Context(), ws)
	if err != nil {
		logger.Sugar.Warnf("Returning empty scores for workspace %s: %v", ws, err)
		scores = model.NewScores()
	}
	writeJSON(w, http.StatusOK, scores)
}

func (h *Handler) SaveScores(w http.ResponseWriter, r *http.Request) {
	var scores model.Scores
	if err := json.NewDecoder(r.Body).Decode(&scores); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Scores.Save(r.Context(), r.PathValue("workspaceId"), scores); err != nil {
		http.Error(w, "Failed to save scores: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "Scores saved successfully"})
}

// ExportScores streams the workspace's rows as CSV.
func (h *Handler) ExportScores(w http.ResponseWriter, r *http.Request) {
	ws := r.PathValue("workspaceId")
	rows, err := h.Scores.Rows(r.Context(), ws)
	if err != nil {
		http.Error(w, "Failed to export scores", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="scores.csv"`)
	cw := csv.NewWriter(w)
	cw.Write([]string{"document_id", "voter_name", "rating", "comment"})
	for _, row := range rows {
		cw.Write([]string{row.DocumentID, row.VoterName, strconv.Itoa(row.Rating), row.Comment})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logger.Sugar.Errorf("Failed to write CSV export for workspace %s: %v", ws, err)
	}
}

func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	ws := r.PathValue("workspaceId")
	entries, err := h.Queues.Load(r.Context(), ws)
	if err != nil {
		logger.Sugar.Warnf("Returning empty queue for workspace %s: %v", ws, err)
		entries = []model.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, model.QueueRequest{Queue: entries})
}

func (h *Handler) SaveQueue(w http.ResponseWriter, r *http.Request) {
	var req model.QueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Queues.Save(r.Context(), r.PathValue("workspaceId"), req.Queue); err != nil {
		http.Error(w, "Failed to save queue: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "Queue saved successfully"})
}

// Vote validates a single vote and echoes it back.
func (h *Handler) Vote(w http.ResponseWriter, r *http.Request) {
	var vote model.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&vote); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !review.ValidRating(vote.Rating) {
		http.Error(w, "Rating must be between 1 and 5", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, model.VoteResponse{Message: "Vote received", Vote: vote})
}
