package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cvreview/internal/auth"
	"cvreview/internal/review/model"
	"cvreview/internal/review/repository"
	"cvreview/middleware"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeOAuth struct {
	info auth.UserInfo
	err  error
}

func (f fakeOAuth) AuthURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (f fakeOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, auth.UserInfo, error) {
	if f.err != nil {
		return nil, auth.UserInfo{}, f.err
	}
	return &oauth2.Token{AccessToken: "at-1", RefreshToken: "rt-1"}, f.info, nil
}

type fakeAssistant struct {
	kind   model.LetterKind
	letter model.LetterRequest
	grade  model.GradeRequest
	text   string
	err    error
}

func (f *fakeAssistant) Letter(ctx context.Context, kind model.LetterKind, req model.LetterRequest) (model.LetterResponse, error) {
	f.kind, f.letter = kind, req
	return model.LetterResponse{Letter: "Dear Jane", Language: req.Language, Subject: "Application Update - " + req.Position}, f.err
}

func (f *fakeAssistant) Grade(ctx context.Context, req model.GradeRequest, cvText string) (model.GradeResponse, error) {
	f.grade, f.text = req, cvText
	return model.GradeResponse{Comment: "Good", Rating: 4, Language: req.Language}, f.err
}

type fixture struct {
	mock      sqlmock.Sqlmock
	handler   *Handler
	assistant *fakeAssistant
	mux       *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	a := &fakeAssistant{}
	h := &Handler{
		Scores:     repository.NewScoreRepository(db),
		Queues:     repository.NewQueueRepository(db),
		Documents:  repository.NewDocumentRepository(db),
		Sessions:   repository.NewSessionRepository(db),
		OAuth:      fakeOAuth{info: auth.UserInfo{ID: "g-42", Email: "alice@example.com", Name: "Alice"}},
		Tokens:     auth.NewTokenIssuer("secret", time.Hour),
		Assistant:  a,
		SessionTTL: 24 * time.Hour,
		BaseDomain: "http://localhost:3000",
		Now:        func() time.Time { return testNow },
	}

	withUser := func(next http.HandlerFunc) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.UserIDKey, r.URL.Query().Get("user_id"))
			next(w, r.WithContext(ctx))
		})
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /auth/status", h.AuthStatus)
	mux.Handle("GET /auth/profile", withUser(h.Profile))
	mux.HandleFunc("GET /auth/url", h.AuthURL)
	mux.HandleFunc("GET /auth/callback", h.AuthCallback)
	mux.Handle("GET /auth/token", withUser(h.Token))
	mux.HandleFunc("GET /documents/{workspaceId}", h.ListDocuments)
	mux.HandleFunc("POST /documents/{workspaceId}", h.PutDocument)
	mux.HandleFunc("GET /scores/{workspaceId}", h.GetScores)
	mux.HandleFunc("POST /scores/{workspaceId}", h.SaveScores)
	mux.HandleFunc("GET /scores/{workspaceId}/export", h.ExportScores)
	mux.HandleFunc("GET /queue/{workspaceId}", h.GetQueue)
	mux.HandleFunc("POST /queue/{workspaceId}", h.SaveQueue)
	mux.HandleFunc("POST /vote", h.Vote)
	mux.HandleFunc("POST /generate-rejection", h.GenerateRejection)
	mux.HandleFunc("POST /generate-acceptance", h.GenerateAcceptance)
	mux.HandleFunc("POST /grade-cv", h.GradeCV)

	return &fixture{mock: mock, handler: h, assistant: a, mux: mux}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func sessionRows(expires time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"name", "email", "picture", "credentials_json", "expires_at"}).
		AddRow("Alice", "alice@example.com", "p.png", "{}", expires)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy","timestamp":"2025-03-01T12:00:00Z"}`, rr.Body.String())
}

func TestAuthStatus(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("SELECT name, email").WithArgs("alive").WillReturnRows(sessionRows(testNow.Add(time.Hour)))
	f.mock.ExpectQuery("SELECT name, email").WithArgs("stale").WillReturnRows(sessionRows(testNow.Add(-time.Hour)))
	f.mock.ExpectQuery("SELECT name, email").WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	assert.JSONEq(t, `{"authenticated":true,"user_id":"alive"}`, f.do(http.MethodGet, "/auth/status?user_id=alive", "").Body.String())
	assert.JSONEq(t, `{"authenticated":false}`, f.do(http.MethodGet, "/auth/status?user_id=stale", "").Body.String())
	assert.JSONEq(t, `{"authenticated":false}`, f.do(http.MethodGet, "/auth/status?user_id=ghost", "").Body.String())
	assert.JSONEq(t, `{"authenticated":false}`, f.do(http.MethodGet, "/auth/status", "").Body.String())
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("SELECT name, email").WithArgs("user-1").WillReturnRows(sessionRows(testNow.Add(time.Hour)))

	rr := f.do(http.MethodGet, "/auth/profile?user_id=user-1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"name":"Alice","email":"alice@example.com","picture":"p.png"}`, rr.Body.String())
}

func TestAuthURL(t *testing.T) {
	f := newFixture(t)
	var resp model.AuthURLResponse
	require.NoError(t, json.Unmarshal(f.do(http.MethodGet, "/auth/url", "").Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.AuthURL, "https://accounts.google.com/"))
	assert.Len(t, strings.TrimPrefix(resp.AuthURL, "https://accounts.google.com/o/oauth2/auth?state="), 36)
}

func TestAuthCallback_StoresSessionAndRedirects(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectExec("INSERT INTO user_sessions").
		WithArgs("g-42", "Alice", "alice@example.com", "", sqlmock.AnyArg(), testNow.Add(24*time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rr := f.do(http.MethodGet, "/auth/callback?code=abc", "")
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "http://localhost:3000?auth=success&user_id=g-42", rr.Header().Get("Location"))
}

func TestAuthCallback_Failures(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/auth/callback", "").Code)

	f.handler.OAuth = fakeOAuth{err: errors.New("invalid_grant")}
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/auth/callback?code=abc", "").Code)
}

func TestToken(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/auth/token?user_id=user-1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp model.TokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	sub, err := auth.NewTokenIssuer("secret", time.Hour).Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestDocuments(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectExec("INSERT INTO documents").
		WithArgs("ws-1", "doc-1", "Jane_Doe_CV.pdf", "application/pdf", "", "", "Go, Postgres").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery("SELECT id, name, mime_type").WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "mime_type", "web_view_link", "web_content_link"}).
			AddRow("doc-1", "Jane_Doe_CV.pdf", "application/pdf", "", ""))

	rr := f.do(http.MethodPost, "/documents/ws-1", `{"document":{"id":"doc-1","name":"Jane_Doe_CV.pdf"},"content":"Go, Postgres"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/documents/ws-1", `{"document":{}}`).Code)

	rr = f.do(http.MethodGet, "/documents/ws-1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{"id":"doc-1","name":"Jane_Doe_CV.pdf","mimeType":"application/pdf","webViewLink":"","webContentLink":""}]`, rr.Body.String())
}

func TestGetScores(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("SELECT document_id").WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "voter_name", "rating", "comment"}).
			AddRow("doc-1", "Alice", 4, "").
			AddRow("doc-1", "Bob", 0, "needs work"))
	f.mock.ExpectQuery("SELECT document_id").WithArgs("ws-broken").WillReturnError(errors.New("timeout"))

	rr := f.do(http.MethodGet, "/scores/ws-1?user_id=u", "")
	assert.JSONEq(t, `{"votes":{"doc-1":{"Alice":4}},"comments":{"doc-1":{"Bob":"needs work"}}}`, rr.Body.String())

	rr = f.do(http.MethodGet, "/scores/ws-broken?user_id=u", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"votes":{},"comments":{}}`, rr.Body.String())
}

func TestSaveScores(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectExec("DELETE FROM scores").WithArgs("ws-1").WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectExec("INSERT INTO scores").WithArgs("ws-1", "doc-1", "Alice", 5, "").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	rr := f.do(http.MethodPost, "/scores/ws-1?user_id=u", `{"votes":{"doc-1":{"Alice":5}},"comments":{}}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"Scores saved successfully"}`, rr.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/scores/ws-1", "{").Code)
}

func TestSaveScores_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	rr := f.do(http.MethodPost, "/scores/ws-1", `{"votes":{},"comments":{}}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestExportScores(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("SELECT document_id").WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "voter_name", "rating", "comment"}).
			AddRow("doc-1", "Alice", 4, "solid, but \"junior\"").
			AddRow("doc-2", "Bob", 0, "later"))

	rr := f.do(http.MethodGet, "/scores/ws-1/export", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Equal(t, "document_id,voter_name,rating,comment\n"+
		"doc-1,Alice,4,\"solid, but \"\"junior\"\"\"\n"+
		"doc-2,Bob,0,later\n", rr.Body.String())
}

func TestQueue(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectExec("INSERT INTO queues").WithArgs("ws-1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery("SELECT entries FROM queues").WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"entries"}).AddRow([]byte(`[{"id":"doc-1","name":"cv.pdf","webViewLink":"","webContentLink":"","addedAt":"2025-03-01T12:00:00Z"}]`)))
	f.mock.ExpectQuery("SELECT entries FROM queues").WithArgs("ws-2").WillReturnError(errors.New("timeout"))

	rr := f.do(http.MethodPost, "/queue/ws-1", `{"queue":[{"id":"doc-1","name":"cv.pdf","addedAt":"2025-03-01T12:00:00Z"}]}`)
	assert.JSONEq(t, `{"message":"Queue saved successfully"}`, rr.Body.String())

	rr = f.do(http.MethodGet, "/queue/ws-1", "")
	assert.JSONEq(t, `{"queue":[{"id":"doc-1","name":"cv.pdf","webViewLink":"","webContentLink":"","addedAt":"2025-03-01T12:00:00Z"}]}`, rr.Body.String())

	rr = f.do(http.MethodGet, "/queue/ws-2", "")
	assert.JSONEq(t, `{"queue":[]}`, rr.Body.String())
}

func TestVote(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodPost, "/vote", `{"document_id":"doc-1","voter_name":"Alice","rating":5}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"Vote received","vote":{"document_id":"doc-1","voter_name":"Alice","rating":5}}`, rr.Body.String())

	rr = f.do(http.MethodPost, "/vote", `{"document_id":"doc-1","voter_name":"Alice","rating":6}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Rating must be between 1 and 5\n", rr.Body.String())
}

func TestGenerateLetters(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodPost, "/generate-rejection", `{"document_name":"cv.pdf","comments":["weak"],"company_name":"Acme","position":"Backend"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.LetterRejection, f.assistant.kind)
	assert.Equal(t, "en", f.assistant.letter.Language)
	assert.JSONEq(t, `{"letter":"Dear Jane","language":"en","subject":"Application Update - Backend"}`, rr.Body.String())

	f.do(http.MethodPost, "/generate-acceptance", `{"document_name":"cv.pdf","language":"fr"}`)
	assert.Equal(t, model.LetterAcceptance, f.assistant.kind)

	f.assistant.err = errors.New("OpenAI API key not configured")
	rr = f.do(http.MethodPost, "/generate-acceptance", `{"document_name":"cv.pdf"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestGradeCV(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("SELECT content FROM documents WHERE id = \\$1").WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"content"}).AddRow("Go, Postgres, Kafka"))
	f.mock.ExpectQuery("SELECT content FROM documents WHERE id = \\$1").WithArgs("doc-9").
		WillReturnError(sql.ErrNoRows)

	rr := f.do(http.MethodPost, "/grade-cv?user_id=u", `{"document_id":"doc-1","document_name":"Jane_CV.pdf","position_description":"Go dev"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"comment":"Good","rating":4,"language":"en"}`, rr.Body.String())
	assert.Equal(t, "Go, Postgres, Kafka", f.assistant.text)

	rr = f.do(http.MethodPost, "/grade-cv?user_id=u", `{"document_id":"doc-9","position_description":"Go dev"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, f.assistant.text)

	rr = f.do(http.MethodPost, "/grade-cv?user_id=u", `{"document_id":"doc-1","position_description":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
