package controller

import (
	"cvreview/internal/review/model"
	"cvreview/internal/review/scheduler"
)

// DocumentSummary is the aggregate view of one document's reviews.
type DocumentSummary struct {
	DocumentID    string  `json:"document_id"`
	AverageRating float64 `json:"average_rating"`
	VoterCount    int     `json:"voter_count"`
	CommentCount  int     `json:"comment_count"`
	MyRating      int     `json:"my_rating,omitempty"`
	Queued        bool    `json:"queued"`
}

// Status describes the sync state of the session.
type Status struct {
	WorkspaceID    string                                  `json:"workspace_id"`
	Voter          string                                  `json:"voter"`
	Pending        bool                                    `json:"pending"`
	Pushing        bool                                    `json:"pushing"`
	UnsyncedScores bool                                    `json:"unsynced_scores"`
	UnsyncedQueue  bool                                    `json:"unsynced_queue"`
	Last           map[scheduler.Resource]scheduler.Event `json:"-"`
}

// Voter is the name the session votes and comments as.
func (c *Controller) Voter() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.voter
}

func (c *Controller) WorkspaceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workspaceID
}

func (c *Controller) AverageRating(docID string) (float64, error) {
	st, err := c.state()
	if err != nil {
		return 0, err
	}
	return st.store.AverageRating(docID), nil
}

func (c *Controller) VoterCount(docID string) (int, error) {
	st, err := c.state()
	if err != nil {
		return 0, err
	}
	return st.store.VoterCount(docID), nil
}

func (c *Controller) CommentCount(docID string) (int, error) {
	st, err := c.state()
	if err != nil {
		return 0, err
	}
	return st.store.CommentCount(docID), nil
}

// MyRating returns the session reviewer's rating of docID, if any.
func (c *Controller) MyRating(docID string) (int, bool, error) {
	st, err := c.state()
	if err != nil {
		return 0, false, err
	}
	r, ok := st.store.Rating(docID, st.voter)
	return r, ok, nil
}

func (c *Controller) MyComment(docID string) (string, bool, error) {
	st, err := c.state()
	if err != nil {
		return "", false, err
	}
	text, ok := st.store.Comment(docID, st.voter)
	return text, ok, nil
}

func (c *Controller) Queue() ([]model.QueueEntry, error) {
	st, err := c.state()
	if err != nil {
		return nil, err
	}
	return st.queue.Entries(), nil
}

// Scores returns a copy of every rating and comment in the workspace.
func (c *Controller) Scores() (model.Scores, error) {
	st, err := c.state()
	if err != nil {
		return model.Scores{}, err
	}
	return st.store.Snapshot(), nil
}

// Summary aggregates every document that has reviews or sits in the queue.
func (c *Controller) Summary() ([]DocumentSummary, error) {
	st, err := c.state()
	if err != nil {
		return nil, err
	}
	ids := st.store.Documents()
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, e := range st.queue.Entries() {
		if !seen[e.ID] {
			seen[e.ID] = true
			ids = append(ids, e.ID)
		}
	}

	out := make([]DocumentSummary, 0, len(ids))
	for _, id := range ids {
		mine, _ := st.store.Rating(id, st.voter)
		out = append(out, DocumentSummary{
			DocumentID:    id,
			AverageRating: st.store.AverageRating(id),
			VoterCount:    st.store.VoterCount(id),
			CommentCount:  st.store.CommentCount(id),
			MyRating:      mine,
			Queued:        st.queue.Contains(id),
		})
	}
	return out, nil
}

func (c *Controller) Status() (Status, error) {
	st, err := c.state()
	if err != nil {
		return Status{}, err
	}
	scores, queue := st.sched.Unsynced()

	c.statusMu.Lock()
	last := make(map[scheduler.Resource]scheduler.Event, len(c.last))
	for k, v := range c.last {
		last[k] = v
	}
	c.statusMu.Unlock()

	return Status{
		WorkspaceID:    st.workspaceID,
		Voter:          st.voter,
		Pending:        st.sched.Pending(),
		Pushing:        st.sched.InFlight(),
		UnsyncedScores: scores,
		UnsyncedQueue:  queue,
		Last:           last,
	}, nil
}

func (c *Controller) recordEvent(ev scheduler.Event) {
	c.statusMu.Lock()
	c.last[ev.Resource] = ev
	c.statusMu.Unlock()
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(ev)
	}
}
