package model

import "time"

// GradingBotVoter is the synthetic reviewer that automated grading votes and
// comments as.
const GradingBotVoter = "Grading bot"

type Document struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	WebViewLink    string `json:"webViewLink"`
	WebContentLink string `json:"webContentLink"`
}

// RatingMap is documentID -> voter -> rating (1..5).
type RatingMap map[string]map[string]int

// CommentMap is documentID -> voter -> comment text.
type CommentMap map[string]map[string]string

// Scores is the persisted ratings/comments resource of a workspace.
type Scores struct {
	Votes    RatingMap  `json:"votes"`
	Comments CommentMap `json:"comments"`
}

// NewScores returns Scores with both maps allocated, so it encodes as {} and
// never as null.
func NewScores() Scores {
	return Scores{Votes: RatingMap{}, Comments: CommentMap{}}
}

type QueueEntry struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	WebViewLink    string    `json:"webViewLink"`
	WebContentLink string    `json:"webContentLink"`
	AddedAt        time.Time `json:"addedAt"`
}

// EntryFromDocument builds a queue entry for doc. AddedAt is left for the
// queue to stamp.
func EntryFromDocument(doc Document) QueueEntry {
	return QueueEntry{
		ID:             doc.ID,
		Name:           doc.Name,
		WebViewLink:    doc.WebViewLink,
		WebContentLink: doc.WebContentLink,
	}
}

type QueueRequest struct {
	Queue []QueueEntry `json:"queue"`
}

type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
}

type UserProfile struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
}

type AuthURLResponse struct {
	AuthURL string `json:"auth_url"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type VoteRequest struct {
	DocumentID string `json:"document_id"`
	VoterName  string `json:"voter_name"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment,omitempty"`
}

type VoteResponse struct {
	Message string      `json:"message"`
	Vote    VoteRequest `json:"vote"`
}

// LetterKind selects which letter the assistant writes.
type LetterKind string

const (
	LetterRejection  LetterKind = "rejection"
	LetterAcceptance LetterKind = "acceptance"
)

type LetterRequest struct {
	DocumentName  string   `json:"document_name"`
	CandidateName string   `json:"candidate_name,omitempty"`
	Language      string   `json:"language"`
	Comments      []string `json:"comments"`
	AverageRating *float64 `json:"average_rating,omitempty"`
	CompanyName   string   `json:"company_name"`
	Position      string   `json:"position"`
}

type LetterResponse struct {
	Letter   string `json:"letter"`
	Language string `json:"language"`
	Subject  string `json:"subject"`
}

type GradeRequest struct {
	DocumentID          string `json:"document_id"`
	DocumentName        string `json:"document_name"`
	PositionDescription string `json:"position_description"`
	Language            string `json:"language"`
}

type GradeResponse struct {
	Comment  string `json:"comment"`
	Rating   int    `json:"rating"`
	Language string `json:"language"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
