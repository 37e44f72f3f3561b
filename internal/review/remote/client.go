// Package remote talks to the review API: sessions, document listing, the
// scores and queue resources, and the AI endpoints.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cvreview/internal/review"
	"cvreview/internal/review/model"
)

const defaultTimeout = 60 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the API rooted at baseURL. A nil httpClient gets
// a client with a 60s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) AuthStatus(ctx context.Context, userID string) (model.AuthStatus, error) {
	var out model.AuthStatus
	err := c.do(ctx, http.MethodGet, "auth/status", userQuery(userID), nil, &out)
	return out, err
}

func (c *Client) Profile(ctx context.Context, userID string) (model.UserProfile, error) {
	var out model.UserProfile
	err := c.do(ctx, http.MethodGet, "auth/profile", userQuery(userID), nil, &out)
	return out, err
}

func (c *Client) AuthURL(ctx context.Context) (string, error) {
	var out model.AuthURLResponse
	err := c.do(ctx, http.MethodGet, "auth/url", nil, nil, &out)
	return out.AuthURL, err
}

func (c *Client) Documents(ctx context.Context, userID, workspaceID string) ([]model.Document, error) {
	var out []model.Document
	err := c.do(ctx, http.MethodGet, "documents/"+url.PathEscape(workspaceID), userQuery(userID), nil, &out)
	return out, err
}

func (c *Client) PullScores(ctx context.Context, userID, workspaceID string) (model.Scores, error) {
	out := model.NewScores()
	if err := c.do(ctx, http.MethodGet, "scores/"+url.PathEscape(workspaceID), userQuery(userID), nil, &out); err != nil {
		return model.NewScores(), err
	}
	if out.Votes == nil {
		out.Votes = model.RatingMap{}
	}
	if out.Comments == nil {
		out.Comments = model.CommentMap{}
	}
	return out, nil
}

func (c *Client) PushScores(ctx context.Context, userID, workspaceID string, scores model.Scores) error {
	return c.do(ctx, http.MethodPost, "scores/"+url.PathEscape(workspaceID), userQuery(userID), scores, nil)
}

func (c *Client) PullQueue(ctx context.Context, userID, workspaceID string) ([]model.QueueEntry, error) {
	var out model.QueueRequest
	if err := c.do(ctx, http.MethodGet, "queue/"+url.PathEscape(workspaceID), userQuery(userID), nil, &out); err != nil {
		return nil, err
	}
	if out.Queue == nil {
		out.Queue = []model.QueueEntry{}
	}
	return out.Queue, nil
}

func (c *Client) PushQueue(ctx context.Context, userID, workspaceID string, queue []model.QueueEntry) error {
	if queue == nil {
		queue = []model.QueueEntry{}
	}
	return c.do(ctx, http.MethodPost, "queue/"+url.PathEscape(workspaceID), userQuery(userID), model.QueueRequest{Queue: queue}, nil)
}

func (c *Client) GenerateLetter(ctx context.Context, kind model.LetterKind, req model.LetterRequest) (model.LetterResponse, error) {
	var out model.LetterResponse
	err := c.do(ctx, http.MethodPost, "generate-"+string(kind), nil, req, &out)
	return out, err
}

func (c *Client) Grade(ctx context.Context, userID string, req model.GradeRequest) (model.GradeResponse, error) {
	var out model.GradeResponse
	err := c.do(ctx, http.MethodPost, "grade-cv", userQuery(userID), req, &out)
	return out, err
}

func userQuery(userID string) url.Values {
	return url.Values{"user_id": {userID}}
}

// do sends one request. Transport failures and non-2xx answers come back
// wrapped in review.ErrRemoteUnavailable.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", review.ErrRemoteUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %s: status %d: %s", review.ErrRemoteUnavailable, method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", review.ErrRemoteUnavailable, method, path, err)
	}
	return nil
}
