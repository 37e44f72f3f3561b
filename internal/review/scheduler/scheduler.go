package scheduler

import (
	"context"
	"sync"
	"time"

	"cvreview/internal/review/model"
	"cvreview/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultDelay       = time.Second
	DefaultPushTimeout = 30 * time.Second
)

type Resource string

const (
	ResourceScores Resource = "scores"
	ResourceQueue  Resource = "queue"
)

type EventKind string

const (
	EventPulled     EventKind = "pulled"
	EventPullFailed EventKind = "pull_failed"
	EventPushed     EventKind = "pushed"
	EventPushFailed EventKind = "push_failed"
	// EventSkipped is an autosave that found a push already in flight.
	EventSkipped EventKind = "skipped"
)

// Event reports the outcome of one sync step.
type Event struct {
	Resource Resource
	Kind     EventKind
	Err      error
	At       time.Time
}

// Persister is the remote boundary holding the two workspace resources.
type Persister interface {
	PullScores(ctx context.Context, userID, workspaceID string) (model.Scores, error)
	PushScores(ctx context.Context, userID, workspaceID string, scores model.Scores) error
	PullQueue(ctx context.Context, userID, workspaceID string) ([]model.QueueEntry, error)
	PushQueue(ctx context.Context, userID, workspaceID string, queue []model.QueueEntry) error
}

type Config struct {
	UserID      string
	WorkspaceID string
	// Delay is the quiet period after the last store mutation before an
	// autosave is pushed.
	Delay       time.Duration
	PushTimeout time.Duration
	Clock       Clock
	OnEvent     func(Event)
}

// Snapshot is the result of a pull. A resource whose pull failed carries
// its error and an empty value.
type Snapshot struct {
	Scores    model.Scores
	Queue     []model.QueueEntry
	ScoresErr error
	QueueErr  error
}

// Scheduler pushes full snapshots of a workspace to the Persister. Store
// pushes are debounced and never overlap; queue pushes go out immediately,
// one at a time.
type Scheduler struct {
	persister Persister
	scores    func() model.Scores
	queue     func() []model.QueueEntry
	cfg       Config

	mu       sync.Mutex
	timer    Timer
	gen      uint64
	inFlight bool
	closed   bool

	// dirty/synced generations per resource; a resource is unsynced while
	// its synced generation lags the dirty one.
	scoresDirty  uint64
	scoresSynced uint64
	queueDirty   uint64
	queueSynced  uint64

	queueMu sync.Mutex
}

// New binds a scheduler to one workspace. scores and queue produce the
// snapshots to push and must be safe to call from any goroutine.
func New(p Persister, scores func() model.Scores, queue func() []model.QueueEntry, cfg Config) *Scheduler {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = DefaultPushTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	return &Scheduler{persister: p, scores: scores, queue: queue, cfg: cfg}
}

// Pull fetches both resources concurrently. The fetches are independent: one
// failing does not cancel the other.
func (s *Scheduler) Pull(ctx context.Context) Snapshot {
	snap := Snapshot{Scores: model.NewScores(), Queue: []model.QueueEntry{}}
	var g errgroup.Group
	g.Go(func() error {
		scores, err := s.persister.PullScores(ctx, s.cfg.UserID, s.cfg.WorkspaceID)
		if err != nil {
			snap.ScoresErr = err
			return nil
		}
		snap.Scores = scores
		return nil
	})
	g.Go(func() error {
		queue, err := s.persister.PullQueue(ctx, s.cfg.UserID, s.cfg.WorkspaceID)
		if err != nil {
			snap.QueueErr = err
			return nil
		}
		if queue != nil {
			snap.Queue = queue
		}
		return nil
	})
	_ = g.Wait()

	s.report(ResourceScores, EventPulled, EventPullFailed, snap.ScoresErr)
	s.report(ResourceQueue, EventPulled, EventPullFailed, snap.QueueErr)
	return snap
}

// NotifyDirty (re)arms the autosave timer.
func (s *Scheduler) NotifyDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.scoresDirty++
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = s.cfg.Clock.AfterFunc(s.cfg.Delay, func() { s.autosave(gen) })
}

func (s *Scheduler) autosave(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.inFlight {
		s.mu.Unlock()
		logger.Sugar.Infof("Autosave for workspace %s skipped: push already in flight", s.cfg.WorkspaceID)
		s.emit(Event{Resource: ResourceScores, Kind: EventSkipped})
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PushTimeout)
	defer cancel()
	_ = s.pushScores(ctx)
}

// Flush pushes the store snapshot now, without waiting for the debounce
// window and without consulting the in-flight guard.
func (s *Scheduler) Flush(ctx context.Context) error {
	return s.pushScores(ctx)
}

func (s *Scheduler) pushScores(ctx context.Context) error {
	s.mu.Lock()
	gen := s.scoresDirty
	s.mu.Unlock()

	err := s.persister.PushScores(ctx, s.cfg.UserID, s.cfg.WorkspaceID, s.scores())
	if err != nil {
		logger.Sugar.Errorf("Failed to push scores for workspace %s: %v", s.cfg.WorkspaceID, err)
	} else {
		s.mu.Lock()
		if gen > s.scoresSynced {
			s.scoresSynced = gen
		}
		s.mu.Unlock()
	}
	s.report(ResourceScores, EventPushed, EventPushFailed, err)
	return err
}

// PushQueue writes the current queue. Concurrent calls are serialized, and
// each takes its snapshot after acquiring the lock, so the last write
// always carries the latest queue.
func (s *Scheduler) PushQueue(ctx context.Context) error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	s.mu.Lock()
	gen := s.queueDirty
	s.mu.Unlock()

	err := s.persister.PushQueue(ctx, s.cfg.UserID, s.cfg.WorkspaceID, s.queue())
	if err != nil {
		logger.Sugar.Errorf("Failed to push queue for workspace %s: %v", s.cfg.WorkspaceID, err)
	} else {
		s.mu.Lock()
		if gen > s.queueSynced {
			s.queueSynced = gen
		}
		s.mu.Unlock()
	}
	s.report(ResourceQueue, EventPushed, EventPushFailed, err)
	return err
}

// Cancel drops a pending autosave.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// MarkQueueDirty records a local queue change not yet pushed.
func (s *Scheduler) MarkQueueDirty() {
	s.mu.Lock()
	s.queueDirty++
	s.mu.Unlock()
}

// Unsynced reports which resources hold local changes that no successful
// push has covered yet.
func (s *Scheduler) Unsynced() (scores, queue bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoresSynced < s.scoresDirty, s.queueSynced < s.queueDirty
}

// MarkSynced declares the local copy of res equal to the remote one, as
// after a successful pull.
func (s *Scheduler) MarkSynced(res Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch res {
	case ResourceScores:
		s.scoresSynced = s.scoresDirty
	case ResourceQueue:
		s.queueSynced = s.queueDirty
	}
}

// Close cancels any pending autosave and ignores later NotifyDirty calls.
func (s *Scheduler) Close() {
	s.Cancel()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Pending reports whether an autosave is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// InFlight reports whether an autosave push is running.
func (s *Scheduler) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Scheduler) report(res Resource, ok, failed EventKind, err error) {
	kind := ok
	if err != nil {
		kind = failed
	}
	s.emit(Event{Resource: res, Kind: kind, Err: err})
}

func (s *Scheduler) emit(ev Event) {
	if s.cfg.OnEvent == nil {
		return
	}
	ev.At = s.cfg.Clock.Now()
	s.cfg.OnEvent(ev)
}
