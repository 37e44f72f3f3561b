// Package controller runs one reviewer's session against a workspace: it
// applies votes, comments and queue edits to the local state and keeps the
// remote copy in step through the scheduler.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cvreview/internal/review"
	"cvreview/internal/review/model"
	"cvreview/internal/review/scheduler"
	"cvreview/pkg/logger"
)

const unknownUser = "Unknown User"

var ErrPositionRequired = errors.New("position description is required")

type Directory interface {
	AuthStatus(ctx context.Context, userID string) (model.AuthStatus, error)
	Profile(ctx context.Context, userID string) (model.UserProfile, error)
}

type Library interface {
	Documents(ctx context.Context, userID, workspaceID string) ([]model.Document, error)
}

type Assistant interface {
	GenerateLetter(ctx context.Context, kind model.LetterKind, req model.LetterRequest) (model.LetterResponse, error)
	Grade(ctx context.Context, userID string, req model.GradeRequest) (model.GradeResponse, error)
}

// Remote is everything the controller needs from the review API.
type Remote interface {
	Directory
	Library
	Assistant
	scheduler.Persister
}

type Options struct {
	AutosaveDelay time.Duration
	Clock         scheduler.Clock
	// OnEvent receives every sync event after the controller has recorded
	// it. It must not block.
	OnEvent func(scheduler.Event)
}

type Controller struct {
	remote Remote
	opts   Options

	mu          sync.RWMutex
	userID      string
	voter       string
	workspaceID string
	store       *review.Store
	queue       *review.Queue
	sched       *scheduler.Scheduler

	statusMu sync.Mutex
	last     map[scheduler.Resource]scheduler.Event
}

func New(remote Remote, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = scheduler.RealClock{}
	}
	return &Controller{
		remote: remote,
		opts:   opts,
		last:   make(map[scheduler.Resource]scheduler.Event),
	}
}

// Open resolves the session of userID. The reviewer's display name becomes
// the default voter.
func (c *Controller) Open(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return review.ErrUnauthenticated
	}
	status, err := c.remote.AuthStatus(ctx, userID)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if !status.Authenticated {
		return review.ErrUnauthenticated
	}

	voter := unknownUser
	profile, err := c.remote.Profile(ctx, userID)
	if err != nil {
		logger.Sugar.Warnf("Could not fetch profile for %s, using %q: %v", userID, unknownUser, err)
	} else if strings.TrimSpace(profile.Name) != "" {
		voter = profile.Name
	}

	c.mu.Lock()
	c.userID = userID
	c.voter = voter
	c.mu.Unlock()
	return nil
}

// Load pulls the workspace's scores and queue and makes them the local
// state. A resource that cannot be pulled starts out empty.
func (c *Controller) Load(ctx context.Context, workspaceID string) error {
	c.mu.RLock()
	userID := c.userID
	c.mu.RUnlock()
	if userID == "" {
		return review.ErrUnauthenticated
	}

	if err := c.closeScheduler(ctx); err != nil {
		logger.Sugar.Warnf("Unsynced changes of the previous workspace were not saved: %v", err)
	}

	store := review.NewStore()
	queue := review.NewQueue(c.opts.Clock.Now)
	sched := scheduler.New(c.remote, store.Snapshot, queue.Entries, scheduler.Config{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Delay:       c.opts.AutosaveDelay,
		Clock:       c.opts.Clock,
		OnEvent:     c.recordEvent,
	})

	snap := sched.Pull(ctx)
	if snap.ScoresErr != nil {
		logger.Sugar.Infof("No existing scores for workspace %s, starting fresh: %v", workspaceID, snap.ScoresErr)
	}
	if snap.QueueErr != nil {
		logger.Sugar.Infof("No existing queue for workspace %s, starting fresh: %v", workspaceID, snap.QueueErr)
	}
	store.Replace(snap.Scores)
	queue.Replace(snap.Queue)
	store.OnDirty(sched.NotifyDirty)
	queue.OnDirty(sched.MarkQueueDirty)

	c.mu.Lock()
	c.workspaceID = workspaceID
	c.store = store
	c.queue = queue
	c.sched = sched
	c.mu.Unlock()

	logger.Sugar.Infof("Loaded workspace %s for %s: %d scored documents, %d queued", workspaceID, userID, len(store.Documents()), queue.Len())
	return nil
}

type state struct {
	userID      string
	voter       string
	workspaceID string
	store       *review.Store
	queue       *review.Queue
	sched       *scheduler.Scheduler
}

func (c *Controller) state() (state, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.userID == "" {
		return state{}, review.ErrUnauthenticated
	}
	if c.sched == nil {
		return state{}, review.ErrNotLoaded
	}
	return state{
		userID:      c.userID,
		voter:       c.voter,
		workspaceID: c.workspaceID,
		store:       c.store,
		queue:       c.queue,
		sched:       c.sched,
	}, nil
}

// Vote rates docID as the session's reviewer.
func (c *Controller) Vote(docID string, rating int) error {
	st, err := c.state()
	if err != nil {
		return err
	}
	return st.store.SetRating(docID, st.voter, rating)
}

// VoteAs rates docID on behalf of voter.
func (c *Controller) VoteAs(voter, docID string, rating int) error {
	st, err := c.state()
	if err != nil {
		return err
	}
	return st.store.SetRating(docID, voter, rating)
}

func (c *Controller) Comment(docID, text string) error {
	st, err := c.state()
	if err != nil {
		return err
	}
	st.store.SetComment(docID, st.voter, text)
	return nil
}

func (c *Controller) CommentAs(voter, docID, text string) error {
	st, err := c.state()
	if err != nil {
		return err
	}
	st.store.SetComment(docID, voter, text)
	return nil
}

// EditComment replaces voter's comment. Saving blank text deletes it.
func (c *Controller) EditComment(voter, docID, text string) error {
	st, err := c.state()
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		st.store.DeleteComment(docID, voter)
		return nil
	}
	st.store.SetComment(docID, voter, text)
	return nil
}

func (c *Controller) DeleteComment(voter, docID string) error {
	st, err := c.state()
	if err != nil {
		return err
	}
	st.store.DeleteComment(docID, voter)
	return nil
}

// AddToQueue appends doc and pushes the queue. A push failure is returned
// wrapped in review.ErrRemoteUnavailable; the local queue keeps the entry.
func (c *Controller) AddToQueue(ctx context.Context, doc model.Document) error {
	st, err := c.state()
	if err != nil {
		return err
	}
	if err := st.queue.Enqueue(model.EntryFromDocument(doc)); err != nil {
		return err
	}
	return pushQueue(ctx, st)
}

func (c *Controller) RemoveFromQueue(ctx context.Context, docID string) error {
	st, err := c.state()
	if err != nil {
		return err
	}
	if !st.queue.Remove(docID) {
		return nil
	}
	return pushQueue(ctx, st)
}

func (c *Controller) ReorderQueue(ctx context.Context, from, to int) error {
	st, err := c.state()
	if err != nil {
		return err
	}
	if err := st.queue.Reorder(from, to); err != nil {
		return err
	}
	return pushQueue(ctx, st)
}

func (c *Controller) ClearQueue(ctx context.Context) error {
	st, err := c.state()
	if err != nil {
		return err
	}
	st.queue.Clear()
	return pushQueue(ctx, st)
}

func pushQueue(ctx context.Context, st state) error {
	return remoteErr(st.sched.PushQueue(ctx))
}

// Save pushes the scores now, plus the queue when an earlier queue push
// failed.
func (c *Controller) Save(ctx context.Context) error {
	st, err := c.state()
	if err != nil {
		return err
	}
	errs := []error{remoteErr(st.sched.Flush(ctx))}
	if _, queueUnsynced := st.sched.Unsynced(); queueUnsynced {
		errs = append(errs, remoteErr(st.sched.PushQueue(ctx)))
	}
	return errors.Join(errs...)
}

// Refresh replaces local state with the remote copy. Local edits that were
// not pushed yet are discarded. A resource whose pull fails keeps its local
// state and the failure is returned.
func (c *Controller) Refresh(ctx context.Context) error {
	st, err := c.state()
	if err != nil {
		return err
	}
	st.sched.Cancel()
	snap := st.sched.Pull(ctx)

	var errs []error
	if snap.ScoresErr != nil {
		errs = append(errs, fmt.Errorf("refresh scores: %w", remoteErr(snap.ScoresErr)))
	} else {
		st.store.Replace(snap.Scores)
		st.sched.MarkSynced(scheduler.ResourceScores)
	}
	if snap.QueueErr != nil {
		errs = append(errs, fmt.Errorf("refresh queue: %w", remoteErr(snap.QueueErr)))
	} else {
		st.queue.Replace(snap.Queue)
		st.sched.MarkSynced(scheduler.ResourceQueue)
	}
	return errors.Join(errs...)
}

// Documents lists the documents of the loaded workspace.
func (c *Controller) Documents(ctx context.Context) ([]model.Document, error) {
	st, err := c.state()
	if err != nil {
		return nil, err
	}
	docs, err := c.remote.Documents(ctx, st.userID, st.workspaceID)
	if err != nil {
		return nil, remoteErr(err)
	}
	return docs, nil
}

// Grade asks the assistant to grade doc against the position and records the
// result as the grading bot's comment and vote.
func (c *Controller) Grade(ctx context.Context, doc model.Document, positionDescription, language string) (model.GradeResponse, error) {
	st, err := c.state()
	if err != nil {
		return model.GradeResponse{}, err
	}
	if strings.TrimSpace(positionDescription) == "" {
		return model.GradeResponse{}, ErrPositionRequired
	}
	if language == "" {
		language = "en"
	}
	resp, err := c.remote.Grade(ctx, st.userID, model.GradeRequest{
		DocumentID:          doc.ID,
		DocumentName:        doc.Name,
		PositionDescription: positionDescription,
		Language:            language,
	})
	if err != nil {
		return model.GradeResponse{}, remoteErr(err)
	}

	if !review.ValidRating(resp.Rating) {
		return resp, fmt.Errorf("%w: grader returned %d", review.ErrInvalidRating, resp.Rating)
	}
	if err := st.store.SetRating(doc.ID, model.GradingBotVoter, resp.Rating); err != nil {
		return resp, err
	}
	st.store.SetComment(doc.ID, model.GradingBotVoter, resp.Comment)
	return resp, nil
}

type LetterOptions struct {
	Language    string
	CompanyName string
	Position    string
}

// GenerateLetter drafts a rejection or acceptance letter for doc from the
// reviewers' comments and average rating.
func (c *Controller) GenerateLetter(ctx context.Context, kind model.LetterKind, doc model.Document, opts LetterOptions) (model.LetterResponse, error) {
	st, err := c.state()
	if err != nil {
		return model.LetterResponse{}, err
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.CompanyName == "" {
		opts.CompanyName = "Our Company"
	}
	if opts.Position == "" {
		opts.Position = "this position"
	}

	req := model.LetterRequest{
		DocumentName: doc.Name,
		Language:     opts.Language,
		Comments:     st.store.Comments(doc.ID),
		CompanyName:  opts.CompanyName,
		Position:     opts.Position,
	}
	if st.store.VoterCount(doc.ID) > 0 {
		avg := st.store.AverageRating(doc.ID)
		req.AverageRating = &avg
	}

	resp, err := c.remote.GenerateLetter(ctx, kind, req)
	if err != nil {
		return model.LetterResponse{}, remoteErr(err)
	}
	return resp, nil
}

// Close pushes whatever the remote copy is missing and stops the scheduler.
func (c *Controller) Close(ctx context.Context) error {
	return c.closeScheduler(ctx)
}

func (c *Controller) closeScheduler(ctx context.Context) error {
	c.mu.Lock()
	sched := c.sched
	c.sched = nil
	c.mu.Unlock()
	if sched == nil {
		return nil
	}

	sched.Cancel()
	var errs []error
	scoresUnsynced, queueUnsynced := sched.Unsynced()
	if scoresUnsynced {
		errs = append(errs, remoteErr(sched.Flush(ctx)))
	}
	if queueUnsynced {
		errs = append(errs, remoteErr(sched.PushQueue(ctx)))
	}
	sched.Close()
	return errors.Join(errs...)
}

func remoteErr(err error) error {
	if err == nil || errors.Is(err, review.ErrRemoteUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", review.ErrRemoteUnavailable, err)
}
