package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"cvreview/internal/review"
	"cvreview/internal/review/model"
	"cvreview/pkg/logger"
)

// ScoreRow is one (document, voter) row. Rating 0 marks a comment-only row.
type ScoreRow struct {
	DocumentID string
	VoterName  string
	Rating     int
	Comment    string
}

type ScoreRepository struct {
	DB *sql.DB
}

func NewScoreRepository(db *sql.DB) *ScoreRepository {
	return &ScoreRepository{DB: db}
}

// Rows returns the workspace's rows ordered by document and voter.
func (r *ScoreRepository) Rows(ctx context.Context, workspaceID string) ([]ScoreRow, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT document_id, voter_name, rating, comment FROM scores
		WHERE workspace_id = $1 ORDER BY document_id, voter_name`, workspaceID)
	if err != nil {
		logger.Sugar.Errorf("Failed to load scores for workspace %s: %v", workspaceID, err)
		return nil, err
	}
	defer rows.Close()

	var out []ScoreRow
	for rows.Next() {
		var row ScoreRow
		if err := rows.Scan(&row.DocumentID, &row.VoterName, &row.Rating, &row.Comment); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Load assembles the scores resource. Out-of-range ratings and blank
// comments are skipped.
func (r *ScoreRepository) Load(ctx context.Context, workspaceID string) (model.Scores, error) {
	rows, err := r.Rows(ctx, workspaceID)
	if err != nil {
		return model.NewScores(), err
	}
	scores := model.NewScores()
	for _, row := range rows {
		if review.ValidRating(row.Rating) {
			if scores.Votes[row.DocumentID] == nil {
				scores.Votes[row.DocumentID] = map[string]int{}
			}
			scores.Votes[row.DocumentID][row.VoterName] = row.Rating
		}
		if c := strings.TrimSpace(row.Comment); c != "" {
			if scores.Comments[row.DocumentID] == nil {
				scores.Comments[row.DocumentID] = map[string]string{}
			}
			scores.Comments[row.DocumentID][row.VoterName] = c
		}
	}
	return scores, nil
}

// Save replaces every row of the workspace with scores in one transaction.
func (r *ScoreRepository) Save(ctx context.Context, workspaceID string, scores model.Scores) error {
	rows := Flatten(review.Sanitize(scores))

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scores WHERE workspace_id = $1`, workspaceID); err != nil {
		logger.Sugar.Errorf("Failed to clear scores for workspace %s: %v", workspaceID, err)
		return err
	}
	for _, row := range rows {
		_, err := tx.ExecContext(ctx, `INSERT INTO scores (workspace_id, document_id, voter_name, rating, comment) VALUES ($1, $2, $3, $4, $5)`,
			workspaceID, row.DocumentID, row.VoterName, row.Rating, row.Comment)
		if err != nil {
			logger.Sugar.Errorf("Failed to insert score %s/%s: %v", row.DocumentID, row.VoterName, err)
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	logger.Sugar.Infof("Saved %d score rows for workspace %s", len(rows), workspaceID)
	return nil
}

// Flatten turns scores into rows, one per (document, voter) that has a
// rating or a comment, ordered by document then voter.
func Flatten(scores model.Scores) []ScoreRow {
	type key struct{ doc, voter string }
	merged := map[key]*ScoreRow{}
	get := func(doc, voter string) *ScoreRow {
		k := key{doc, voter}
		if merged[k] == nil {
			merged[k] = &ScoreRow{DocumentID: doc, VoterName: voter}
		}
		return merged[k]
	}
	for doc, voters := range scores.Votes {
		for voter, rating := range voters {
			get(doc, voter).Rating = rating
		}
	}
	for doc, voters := range scores.Comments {
		for voter, text := range voters {
			get(doc, voter).Comment = text
		}
	}

	out := make([]ScoreRow, 0, len(merged))
	for _, row := range merged {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].VoterName < out[j].VoterName
	})
	return out
}

type QueueRepository struct {
	DB *sql.DB
}

func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{DB: db}
}

// Load returns the stored queue, or an empty one if the workspace has none.
func (r *QueueRepository) Load(ctx context.Context, workspaceID string) ([]model.QueueEntry, error) {
	var raw []byte
	err := r.DB.QueryRowContext(ctx, `SELECT entries FROM queues WHERE workspace_id = $1`, workspaceID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []model.QueueEntry{}, nil
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to load queue for workspace %s: %v", workspaceID, err)
		return []model.QueueEntry{}, err
	}
	entries := []model.QueueEntry{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return []model.QueueEntry{}, fmt.Errorf("decode queue: %w", err)
	}
	return entries, nil
}

func (r *QueueRepository) Save(ctx context.Context, workspaceID string, entries []model.QueueEntry) error {
	if entries == nil {
		entries = []model.QueueEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO queues (workspace_id, entries, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (workspace_id) DO UPDATE SET entries = $2, updated_at = NOW()`, workspaceID, raw)
	if err != nil {
		logger.Sugar.Errorf("Failed to save queue for workspace %s: %v", workspaceID, err)
		return err
	}
	logger.Sugar.Infof("Saved queue for workspace %s (%d entries)", workspaceID, len(entries))
	return nil
}
