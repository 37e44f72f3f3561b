package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cvreview/internal/review"
	"cvreview/internal/review/model"
	"cvreview/internal/review/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("connection refused")

type fakeRemote struct {
	mu sync.Mutex

	authenticated bool
	profile       model.UserProfile
	profileErr    error

	scores        model.Scores
	pullScoresErr error
	queue         []model.QueueEntry
	pullQueueErr  error

	scorePushes   []model.Scores
	queuePushes   [][]model.QueueEntry
	pushScoresErr error
	pushQueueErr  error

	gradeReq    model.GradeRequest
	grade       model.GradeResponse
	letterKind  model.LetterKind
	letterReq   model.LetterRequest
	docs        []model.Document
	docsUserID  string
	docsWorkspc string
}

func (f *fakeRemote) AuthStatus(ctx context.Context, userID string) (model.AuthStatus, error) {
	return model.AuthStatus{Authenticated: f.authenticated, UserID: userID}, nil
}

func (f *fakeRemote) Profile(ctx context.Context, userID string) (model.UserProfile, error) {
	return f.profile, f.profileErr
}

func (f *fakeRemote) Documents(ctx context.Context, userID, workspaceID string) ([]model.Document, error) {
	f.docsUserID, f.docsWorkspc = userID, workspaceID
	return f.docs, nil
}

func (f *fakeRemote) PullScores(ctx context.Context, userID, workspaceID string) (model.Scores, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullScoresErr != nil {
		return model.Scores{}, f.pullScoresErr
	}
	return review.Sanitize(f.scores), nil
}

func (f *fakeRemote) PushScores(ctx context.Context, userID, workspaceID string, scores model.Scores) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scorePushes = append(f.scorePushes, scores)
	if f.pushScoresErr != nil {
		return f.pushScoresErr
	}
	f.scores = scores
	return nil
}

func (f *fakeRemote) PullQueue(ctx context.Context, userID, workspaceID string) ([]model.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullQueueErr != nil {
		return nil, f.pullQueueErr
	}
	return append([]model.QueueEntry(nil), f.queue...), nil
}

func (f *fakeRemote) PushQueue(ctx context.Context, userID, workspaceID string, queue []model.QueueEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queuePushes = append(f.queuePushes, queue)
	if f.pushQueueErr != nil {
		return f.pushQueueErr
	}
	f.queue = queue
	return nil
}

func (f *fakeRemote) GenerateLetter(ctx context.Context, kind model.LetterKind, req model.LetterRequest) (model.LetterResponse, error) {
	f.letterKind, f.letterReq = kind, req
	return model.LetterResponse{Letter: "Dear candidate", Language: req.Language, Subject: "Application Update"}, nil
}

func (f *fakeRemote) Grade(ctx context.Context, userID string, req model.GradeRequest) (model.GradeResponse, error) {
	f.gradeReq = req
	return f.grade, nil
}

func (f *fakeRemote) pushCounts() (scores, queue int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scorePushes), len(f.queuePushes)
}

func newRemote() *fakeRemote {
	return &fakeRemote{
		authenticated: true,
		profile:       model.UserProfile{Name: "Alice"},
		scores:        model.NewScores(),
	}
}

func openLoaded(t *testing.T, remote *fakeRemote) (*Controller, *scheduler.ManualClock) {
	t.Helper()
	clock := scheduler.NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	c := New(remote, Options{AutosaveDelay: time.Second, Clock: clock})
	require.NoError(t, c.Open(context.Background(), "user-1"))
	require.NoError(t, c.Load(context.Background(), "ws-1"))
	return c, clock
}

func TestOpen_RejectsUnauthenticatedSession(t *testing.T) {
	remote := newRemote()
	remote.authenticated = false
	c := New(remote, Options{})

	assert.ErrorIs(t, c.Open(context.Background(), "user-1"), review.ErrUnauthenticated)
	assert.ErrorIs(t, c.Open(context.Background(), " "), review.ErrUnauthenticated)
}

func TestOpen_FallsBackToUnknownUser(t *testing.T) {
	remote := newRemote()
	remote.profileErr = errDown
	c := New(remote, Options{})

	require.NoError(t, c.Open(context.Background(), "user-1"))
	assert.Equal(t, "Unknown User", c.Voter())
}

func TestOperationsRequireSessionAndWorkspace(t *testing.T) {
	c := New(newRemote(), Options{})
	assert.ErrorIs(t, c.Load(context.Background(), "ws-1"), review.ErrUnauthenticated)
	assert.ErrorIs(t, c.Vote("doc-1", 3), review.ErrUnauthenticated)

	require.NoError(t, c.Open(context.Background(), "user-1"))
	assert.ErrorIs(t, c.Vote("doc-1", 3), review.ErrNotLoaded)
	_, err := c.Queue()
	assert.ErrorIs(t, err, review.ErrNotLoaded)
}

func TestLoad_InstallsRemoteState(t *testing.T) {
	remote := newRemote()
	remote.scores.Votes["doc-1"] = map[string]int{"Bob": 4, "Carol": 0}
	remote.scores.Comments["doc-1"] = map[string]string{"Bob": "solid"}
	remote.queue = []model.QueueEntry{{ID: "doc-2", Name: "cv.pdf"}}

	c, _ := openLoaded(t, remote)

	avg, err := c.AverageRating("doc-1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, avg)
	count, _ := c.VoterCount("doc-1")
	assert.Equal(t, 1, count)
	q, _ := c.Queue()
	require.Len(t, q, 1)
	assert.Equal(t, "doc-2", q[0].ID)

	scores, queue := remote.pushCounts()
	assert.Zero(t, scores, "loading must not push")
	assert.Zero(t, queue)
}

func TestLoad_PullFailureStartsEmpty(t *testing.T) {
	remote := newRemote()
	remote.pullScoresErr = errDown
	remote.queue = []model.QueueEntry{{ID: "doc-2"}}

	c, _ := openLoaded(t, remote)

	scores, err := c.Scores()
	require.NoError(t, err)
	assert.Empty(t, scores.Votes)
	q, _ := c.Queue()
	assert.Len(t, q, 1, "queue pull succeeded independently")
}

func TestVote_BurstIsPushedOnceAfterQuietPeriod(t *testing.T) {
	remote := newRemote()
	c, clock := openLoaded(t, remote)

	for _, r := range []int{1, 2, 3, 4, 5} {
		require.NoError(t, c.Vote("doc-1", r))
		clock.Advance(200 * time.Millisecond)
	}
	scores, _ := remote.pushCounts()
	assert.Zero(t, scores)

	clock.Advance(time.Second)

	require.Len(t, remote.scorePushes, 1)
	assert.Equal(t, 5, remote.scorePushes[0].Votes["doc-1"]["Alice"])
	st, err := c.Status()
	require.NoError(t, err)
	assert.False(t, st.Pending)
	assert.False(t, st.UnsyncedScores)
	assert.Equal(t, scheduler.EventPushed, st.Last[scheduler.ResourceScores].Kind)
}

func TestVote_InvalidRatingChangesNothing(t *testing.T) {
	remote := newRemote()
	c, clock := openLoaded(t, remote)

	assert.ErrorIs(t, c.Vote("doc-1", 6), review.ErrInvalidRating)
	clock.Advance(2 * time.Second)

	scores, _ := remote.pushCounts()
	assert.Zero(t, scores)
	_, ok, _ := c.MyRating("doc-1")
	assert.False(t, ok)
}

func TestEditComment_BlankDeletes(t *testing.T) {
	c, _ := openLoaded(t, newRemote())

	require.NoError(t, c.Comment("doc-1", "needs Go"))
	text, ok, _ := c.MyComment("doc-1")
	require.True(t, ok)
	assert.Equal(t, "needs Go", text)

	require.NoError(t, c.EditComment("Alice", "doc-1", "   "))
	_, ok, _ = c.MyComment("doc-1")
	assert.False(t, ok)
	n, _ := c.CommentCount("doc-1")
	assert.Zero(t, n)
}

func TestQueue_MutationsPushImmediately(t *testing.T) {
	remote := newRemote()
	c, _ := openLoaded(t, remote)
	ctx := context.Background()

	require.NoError(t, c.AddToQueue(ctx, model.Document{ID: "a", Name: "a.pdf"}))
	require.NoError(t, c.AddToQueue(ctx, model.Document{ID: "b", Name: "b.pdf"}))
	require.NoError(t, c.ReorderQueue(ctx, 1, 0))
	require.NoError(t, c.RemoveFromQueue(ctx, "missing"))

	_, pushes := remote.pushCounts()
	assert.Equal(t, 3, pushes, "removing an absent entry does not push")
	require.Len(t, remote.queue, 2)
	assert.Equal(t, "b", remote.queue[0].ID)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), remote.queue[1].AddedAt)

	assert.ErrorIs(t, c.AddToQueue(ctx, model.Document{ID: "a"}), review.ErrDuplicateEntry)
	assert.ErrorIs(t, c.ReorderQueue(ctx, 0, 5), review.ErrIndexOutOfBounds)

	require.NoError(t, c.ClearQueue(ctx))
	assert.Empty(t, remote.queue)
}

func TestQueue_FailedPushIsRetriedBySave(t *testing.T) {
	remote := newRemote()
	c, _ := openLoaded(t, remote)
	ctx := context.Background()

	remote.pushQueueErr = errDown
	err := c.AddToQueue(ctx, model.Document{ID: "a"})
	assert.ErrorIs(t, err, review.ErrRemoteUnavailable)
	q, _ := c.Queue()
	assert.Len(t, q, 1, "local queue keeps the entry")
	st, _ := c.Status()
	assert.True(t, st.UnsyncedQueue)

	remote.pushQueueErr = nil
	require.NoError(t, c.Save(ctx))
	require.Len(t, remote.queue, 1)
	st, _ = c.Status()
	assert.False(t, st.UnsyncedQueue)
}

func TestSave_PushesScoresNow(t *testing.T) {
	remote := newRemote()
	c, _ := openLoaded(t, remote)

	require.NoError(t, c.Vote("doc-1", 4))
	require.NoError(t, c.Save(context.Background()))

	require.Len(t, remote.scorePushes, 1)
	assert.Equal(t, 4, remote.scorePushes[0].Votes["doc-1"]["Alice"])
}

func TestSave_ReportsRemoteFailure(t *testing.T) {
	remote := newRemote()
	c, _ := openLoaded(t, remote)
	remote.pushScoresErr = errDown

	require.NoError(t, c.Vote("doc-1", 4))
	assert.ErrorIs(t, c.Save(context.Background()), review.ErrRemoteUnavailable)
	st, _ := c.Status()
	assert.True(t, st.UnsyncedScores)
	assert.Equal(t, scheduler.EventPushFailed, st.Last[scheduler.ResourceScores].Kind)
}

func TestRefresh_DiscardsUnsyncedEdits(t *testing.T) {
	remote := newRemote()
	remote.scores.Votes["doc-1"] = map[string]int{"Bob": 2}
	c, clock := openLoaded(t, remote)

	require.NoError(t, c.Vote("doc-1", 5))
	require.NoError(t, c.Refresh(context.Background()))

	_, ok, _ := c.MyRating("doc-1")
	assert.False(t, ok)
	avg, _ := c.AverageRating("doc-1")
	assert.Equal(t, 2.0, avg)

	clock.Advance(5 * time.Second)
	scores, _ := remote.pushCounts()
	assert.Zero(t, scores, "pending autosave was cancelled")
	st, _ := c.Status()
	assert.False(t, st.UnsyncedScores)
}

func TestRefresh_PullFailureKeepsLocalState(t *testing.T) {
	remote := newRemote()
	c, _ := openLoaded(t, remote)
	require.NoError(t, c.AddToQueue(context.Background(), model.Document{ID: "a"}))
	require.NoError(t, c.Vote("doc-1", 3))

	remote.mu.Lock()
	remote.pullQueueErr = errDown
	remote.queue = nil
	remote.mu.Unlock()

	err := c.Refresh(context.Background())
	assert.ErrorIs(t, err, review.ErrRemoteUnavailable)

	q, _ := c.Queue()
	assert.Len(t, q, 1)
	_, ok, _ := c.MyRating("doc-1")
	assert.False(t, ok, "scores pull succeeded and replaced local state")
}

func TestGrade_RecordsBotCommentAndVote(t *testing.T) {
	remote := newRemote()
	remote.grade = model.GradeResponse{Comment: "Strong backend profile", Rating: 4, Language: "en"}
	c, _ := openLoaded(t, remote)
	doc := model.Document{ID: "doc-1", Name: "Jane_Doe_CV.pdf"}

	_, err := c.Grade(context.Background(), doc, "", "")
	assert.ErrorIs(t, err, ErrPositionRequired)

	resp, err := c.Grade(context.Background(), doc, "Senior Go engineer", "")
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Rating)
	assert.Equal(t, "en", remote.gradeReq.Language)
	assert.Equal(t, "Jane_Doe_CV.pdf", remote.gradeReq.DocumentName)

	scores, _ := c.Scores()
	assert.Equal(t, 4, scores.Votes["doc-1"][model.GradingBotVoter])
	assert.Equal(t, "Strong backend profile", scores.Comments["doc-1"][model.GradingBotVoter])
}

func TestGrade_OutOfRangeRatingWritesNothing(t *testing.T) {
	for _, rating := range []int{0, 6} {
		remote := newRemote()
		remote.grade = model.GradeResponse{Comment: "Looks fine", Rating: rating, Language: "en"}
		c, clock := openLoaded(t, remote)
		doc := model.Document{ID: "doc-1", Name: "cv.pdf"}

		_, err := c.Grade(context.Background(), doc, "Backend engineer", "en")
		require.ErrorIs(t, err, review.ErrInvalidRating)

		n, _ := c.CommentCount("doc-1")
		assert.Zero(t, n)
		votes, _ := c.VoterCount("doc-1")
		assert.Zero(t, votes)

		clock.Advance(time.Minute)
		remote.mu.Lock()
		assert.Empty(t, remote.scorePushes, "rating %d", rating)
		remote.mu.Unlock()
	}
}

func TestGenerateLetter_SendsReviewContext(t *testing.T) {
	remote := newRemote()
	c, _ := openLoaded(t, remote)
	doc := model.Document{ID: "doc-1", Name: "cv.pdf"}

	_, err := c.GenerateLetter(context.Background(), model.LetterRejection, doc, LetterOptions{})
	require.NoError(t, err)
	assert.Nil(t, remote.letterReq.AverageRating)
	assert.Equal(t, "en", remote.letterReq.Language)
	assert.Equal(t, "Our Company", remote.letterReq.CompanyName)
	assert.Equal(t, "this position", remote.letterReq.Position)

	require.NoError(t, c.VoteAs("Bob", "doc-1", 2))
	require.NoError(t, c.Vote("doc-1", 4))
	require.NoError(t, c.CommentAs("Bob", "doc-1", "weak tests"))

	_, err = c.GenerateLetter(context.Background(), model.LetterAcceptance, doc, LetterOptions{Language: "pl", Position: "Backend"})
	require.NoError(t, err)
	assert.Equal(t, model.LetterAcceptance, remote.letterKind)
	require.NotNil(t, remote.letterReq.AverageRating)
	assert.Equal(t, 3.0, *remote.letterReq.AverageRating)
	assert.Equal(t, []string{"weak tests"}, remote.letterReq.Comments)
	assert.Equal(t, "Backend", remote.letterReq.Position)
}

func TestDocuments_UsesSessionWorkspace(t *testing.T) {
	remote := newRemote()
	remote.docs = []model.Document{{ID: "doc-1"}}
	c, _ := openLoaded(t, remote)

	docs, err := c.Documents(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, "user-1", remote.docsUserID)
	assert.Equal(t, "ws-1", remote.docsWorkspc)
}

func TestSummary_CoversReviewedAndQueued(t *testing.T) {
	c, _ := openLoaded(t, newRemote())
	require.NoError(t, c.Vote("doc-1", 5))
	require.NoError(t, c.AddToQueue(context.Background(), model.Document{ID: "doc-2"}))

	summary, err := c.Summary()
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, DocumentSummary{DocumentID: "doc-1", AverageRating: 5, VoterCount: 1, MyRating: 5}, summary[0])
	assert.Equal(t, "doc-2", summary[1].DocumentID)
	assert.True(t, summary[1].Queued)
}

func TestClose_FlushesUnsyncedScores(t *testing.T) {
	remote := newRemote()
	c, clock := openLoaded(t, remote)

	require.NoError(t, c.Vote("doc-1", 3))
	require.NoError(t, c.Close(context.Background()))

	require.Len(t, remote.scorePushes, 1)
	clock.Advance(5 * time.Second)
	scores, _ := remote.pushCounts()
	assert.Equal(t, 1, scores, "no autosave after close")
	assert.ErrorIs(t, c.Vote("doc-1", 4), review.ErrNotLoaded)
}

func TestLoad_SwitchingWorkspaceSavesPrevious(t *testing.T) {
	remote := newRemote()
	c, _ := openLoaded(t, remote)

	require.NoError(t, c.Vote("doc-1", 3))
	require.NoError(t, c.Load(context.Background(), "ws-2"))

	require.Len(t, remote.scorePushes, 1)
	assert.Equal(t, "ws-2", c.WorkspaceID())
}
