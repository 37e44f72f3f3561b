package repository

import (
	"context"
	"database/sql"
	"errors"

	"cvreview/internal/review/model"
	"cvreview/pkg/logger"
)

var ErrDocumentNotFound = errors.New("document not found")

type DocumentRepository struct {
	DB *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

// Upsert registers doc in the workspace together with its extracted text.
func (r *DocumentRepository) Upsert(ctx context.Context, workspaceID string, doc model.Document, content string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO documents (workspace_id, id, name, mime_type, web_view_link, web_content_link, content, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (workspace_id, id) DO UPDATE SET name = $3, mime_type = $4, web_view_link = $5, web_content_link = $6, content = $7, updated_at = NOW()`,
		workspaceID, doc.ID, doc.Name, doc.MimeType, doc.WebViewLink, doc.WebContentLink, content)
	if err != nil {
		logger.Sugar.Errorf("Failed to upsert document %s in workspace %s: %v", doc.ID, workspaceID, err)
	}
	return err
}

func (r *DocumentRepository) List(ctx context.Context, workspaceID string) ([]model.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name, mime_type, web_view_link, web_content_link
		FROM documents WHERE workspace_id = $1 ORDER BY name`, workspaceID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list documents for workspace %s: %v", workspaceID, err)
		return nil, err
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.Name, &d.MimeType, &d.WebViewLink, &d.WebContentLink); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Content returns the stored text of a document.
func (r *DocumentRepository) Content(ctx context.Context, workspaceID, docID string) (string, error) {
	var content string
	err := r.DB.QueryRowContext(ctx, `SELECT content FROM documents WHERE workspace_id = $1 AND id = $2`,
		workspaceID, docID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrDocumentNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get content for doc %s: %v", docID, err)
	}
	return content, err
}

// ContentByID looks a document up in any workspace. Grading requests only
// carry the document id.
func (r *DocumentRepository) ContentByID(ctx context.Context, docID string) (string, error) {
	var content string
	err := r.DB.QueryRowContext(ctx, `SELECT content FROM documents WHERE id = $1 ORDER BY updated_at DESC LIMIT 1`,
		docID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrDocumentNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get content for doc %s: %v", docID, err)
	}
	return content, err
}
