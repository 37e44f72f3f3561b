package socket

import (
	"encoding/json"
	"time"

	"cvreview/internal/review/controller"
	"cvreview/internal/review/model"
	"cvreview/internal/review/scheduler"
)

const (
	LoadType          = "load"
	DocumentsType     = "documents"
	VoteType          = "vote"
	CommentType       = "comment"
	EditCommentType   = "edit_comment"
	DeleteCommentType = "delete_comment"
	QueueAddType      = "queue_add"
	QueueRemoveType   = "queue_remove"
	QueueReorderType  = "queue_reorder"
	QueueClearType    = "queue_clear"
	SaveType          = "save"
	RefreshType       = "refresh"
	GradeType         = "grade"
	LetterType        = "letter"
	SummaryType       = "summary"

	// Server-initiated messages.
	SessionType       = "session"
	SyncType          = "sync"
	RemoteChangedType = "remote_changed"
)

// Command is a client request. ID is echoed in the reply.
type Command struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Reply struct {
	ID          string      `json:"id,omitempty"`
	Type        string      `json:"type"`
	OK          bool        `json:"ok"`
	Error       string      `json:"error,omitempty"`
	WorkspaceID string      `json:"workspace_id,omitempty"`
	Data        any         `json:"data,omitempty"`
	State       *StateView  `json:"state,omitempty"`
	Status      *StatusView `json:"status,omitempty"`
}

type StateView struct {
	Scores model.Scores       `json:"scores"`
	Queue  []model.QueueEntry `json:"queue"`
}

type EventView struct {
	Kind  string    `json:"kind"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

type StatusView struct {
	WorkspaceID    string               `json:"workspace_id"`
	Voter          string               `json:"voter"`
	Pending        bool                 `json:"pending"`
	Pushing        bool                 `json:"pushing"`
	UnsyncedScores bool                 `json:"unsynced_scores"`
	UnsyncedQueue  bool                 `json:"unsynced_queue"`
	Last           map[string]EventView `json:"last,omitempty"`
}

func eventView(ev scheduler.Event) EventView {
	v := EventView{Kind: string(ev.Kind), At: ev.At}
	if ev.Err != nil {
		v.Error = ev.Err.Error()
	}
	return v
}

func statusView(st controller.Status) *StatusView {
	v := &StatusView{
		WorkspaceID:    st.WorkspaceID,
		Voter:          st.Voter,
		Pending:        st.Pending,
		Pushing:        st.Pushing,
		UnsyncedScores: st.UnsyncedScores,
		UnsyncedQueue:  st.UnsyncedQueue,
		Last:           make(map[string]EventView, len(st.Last)),
	}
	for res, ev := range st.Last {
		v.Last[string(res)] = eventView(ev)
	}
	return v
}

type loadPayload struct {
	WorkspaceID string `json:"workspace_id"`
}

type votePayload struct {
	DocumentID string `json:"document_id"`
	Rating     int    `json:"rating"`
	Voter      string `json:"voter,omitempty"`
}

type commentPayload struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	Voter      string `json:"voter,omitempty"`
}

type queueAddPayload struct {
	Document model.Document `json:"document"`
}

type queueRemovePayload struct {
	DocumentID string `json:"document_id"`
}

type queueReorderPayload struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type gradePayload struct {
	Document            model.Document `json:"document"`
	PositionDescription string         `json:"position_description"`
	Language            string         `json:"language"`
}

type letterPayload struct {
	Kind        model.LetterKind `json:"kind"`
	Document    model.Document   `json:"document"`
	Language    string           `json:"language"`
	CompanyName string           `json:"company_name"`
	Position    string           `json:"position"`
}
