package review

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"cvreview/internal/review/model"
)

// Store holds the ratings and comments of one workspace. A voter has at most
// one rating and one comment per document, so concurrent reviewers never
// overwrite each other's entries.
type Store struct {
	mu       sync.RWMutex
	votes    model.RatingMap
	comments model.CommentMap
	onDirty  func()
}

func NewStore() *Store {
	return &Store{
		votes:    model.RatingMap{},
		comments: model.CommentMap{},
	}
}

// OnDirty registers fn to be called after every mutation that changed the
// store. fn runs without the store lock held.
func (s *Store) OnDirty(fn func()) {
	s.mu.Lock()
	s.onDirty = fn
	s.mu.Unlock()
}

func (s *Store) markDirty() {
	s.mu.RLock()
	fn := s.onDirty
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (s *Store) SetRating(docID, voter string, rating int) error {
	if !ValidRating(rating) {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}
	s.mu.Lock()
	if s.votes[docID] == nil {
		s.votes[docID] = make(map[string]int)
	}
	s.votes[docID][voter] = rating
	s.mu.Unlock()

	s.markDirty()
	return nil
}

// Rating returns the voter's rating for docID. ok is false when the voter has
// not rated the document.
func (s *Store) Rating(docID, voter string) (rating int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rating, ok = s.votes[docID][voter]
	return rating, ok
}

// SetComment stores the trimmed text. Blank text is ignored.
func (s *Store) SetComment(docID, voter, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mu.Lock()
	if s.comments[docID] == nil {
		s.comments[docID] = make(map[string]string)
	}
	s.comments[docID][voter] = text
	s.mu.Unlock()

	s.markDirty()
}

func (s *Store) Comment(docID, voter string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.comments[docID][voter]
	return text, ok
}

// DeleteComment removes the voter's comment. The document key goes away with
// its last comment.
func (s *Store) DeleteComment(docID, voter string) {
	s.mu.Lock()
	docComments, ok := s.comments[docID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if _, ok := docComments[voter]; !ok {
		s.mu.Unlock()
		return
	}
	delete(docComments, voter)
	if len(docComments) == 0 {
		delete(s.comments, docID)
	}
	s.mu.Unlock()

	s.markDirty()
}

func (s *Store) AverageRating(docID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docVotes := s.votes[docID]
	if len(docVotes) == 0 {
		return 0
	}
	sum := 0
	for _, r := range docVotes {
		sum += r
	}
	return float64(sum) / float64(len(docVotes))
}

func (s *Store) VoterCount(docID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.votes[docID])
}

func (s *Store) CommentCount(docID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.comments[docID])
}

// Comments returns the document's comment texts ordered by voter name.
func (s *Store) Comments(docID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docComments := s.comments[docID]
	voters := make([]string, 0, len(docComments))
	for v := range docComments {
		voters = append(voters, v)
	}
	sort.Strings(voters)
	texts := make([]string, 0, len(voters))
	for _, v := range voters {
		texts = append(texts, docComments[v])
	}
	return texts
}

// Documents lists, sorted, every document id that has a rating or a comment.
func (s *Store) Documents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{}, len(s.votes)+len(s.comments))
	for id := range s.votes {
		seen[id] = struct{}{}
	}
	for id := range s.comments {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a deep copy of the store for serialization.
func (s *Store) Snapshot() model.Scores {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := model.NewScores()
	for docID, docVotes := range s.votes {
		if len(docVotes) == 0 {
			continue
		}
		cp := make(map[string]int, len(docVotes))
		for v, r := range docVotes {
			cp[v] = r
		}
		out.Votes[docID] = cp
	}
	for docID, docComments := range s.comments {
		cp := make(map[string]string, len(docComments))
		for v, c := range docComments {
			cp[v] = c
		}
		out.Comments[docID] = cp
	}
	return out
}

// Replace installs a pulled snapshot wholesale. Entries that could not have
// been produced locally (ratings out of range, blank comments, empty
// documents) are dropped. Replace does not mark the store dirty.
func (s *Store) Replace(scores model.Scores) {
	clean := Sanitize(scores)
	s.mu.Lock()
	s.votes = clean.Votes
	s.comments = clean.Comments
	s.mu.Unlock()
}

// Sanitize returns a copy of scores that satisfies the store invariants.
func Sanitize(scores model.Scores) model.Scores {
	out := model.NewScores()
	for docID, docVotes := range scores.Votes {
		for voter, r := range docVotes {
			if !ValidRating(r) {
				continue
			}
			if out.Votes[docID] == nil {
				out.Votes[docID] = make(map[string]int)
			}
			out.Votes[docID][voter] = r
		}
	}
	for docID, docComments := range scores.Comments {
		for voter, text := range docComments {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			if out.Comments[docID] == nil {
				out.Comments[docID] = make(map[string]string)
			}
			out.Comments[docID][voter] = text
		}
	}
	return out
}
