package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cvreview/internal/review"
	"cvreview/internal/review/controller"
	"cvreview/internal/review/model"
	"cvreview/internal/review/scheduler"
	"cvreview/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pingPeriod     = 30 * time.Second
	commandTimeout = 2 * time.Minute
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one websocket connection and the review session behind it.
type Client struct {
	ID         string
	Hub        *Hub
	Conn       *websocket.Conn
	UserID     string
	Controller *controller.Controller
	Send       chan []byte

	sendMu sync.Mutex
	closed bool
}

// ServeWs upgrades the request and starts a review session for userID.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		ID:     uuid.NewString(),
		Hub:    hub,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, sendBuffer),
	}
	client.Controller = hub.newController(client.onEvent)

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	err = client.Controller.Open(ctx, userID)
	cancel()
	if err != nil {
		logger.Sugar.Warnf("Connection rejected for user %s: %v", userID, err)
		msg, _ := json.Marshal(Reply{Type: SessionType, Error: err.Error()})
		conn.WriteMessage(websocket.TextMessage, msg)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthenticated"))
		conn.Close()
		return
	}

	select {
	case hub.Register <- client:
	case <-hub.done:
		logger.Sugar.Warnf("Hub stopped, dropping session for user %s", userID)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	client.reply(Reply{Type: SessionType, OK: true, Data: map[string]string{"session_id": client.ID, "voter": client.Controller.Voter()}})

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			logger.Sugar.Errorf("Error unmarshalling command: %v", err)
			c.reply(Reply{Type: "error", Error: "invalid command"})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		reply := c.handle(ctx, cmd)
		cancel()
		reply.ID = cmd.ID
		reply.Type = cmd.Type
		c.reply(reply)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle runs one command against the session controller.
func (c *Client) handle(ctx context.Context, cmd Command) Reply {
	ctrl := c.Controller
	var (
		data    any
		err     error
		mutates = true
	)

	switch cmd.Type {
	case LoadType:
		var p loadPayload
		if err = decode(cmd.Payload, &p); err == nil {
			if p.WorkspaceID == "" {
				err = errors.New("workspace_id is required")
			} else if err = ctrl.Load(ctx, p.WorkspaceID); err == nil {
				select {
				case c.Hub.join <- join{client: c, workspaceID: p.WorkspaceID}:
				case <-c.Hub.done:
				}
			}
		}
	case DocumentsType:
		mutates = false
		data, err = ctrl.Documents(ctx)
	case VoteType:
		var p votePayload
		if err = decode(cmd.Payload, &p); err == nil {
			var voter string
			if voter, err = voterOr(p.Voter, ctrl); err == nil {
				err = ctrl.VoteAs(voter, p.DocumentID, p.Rating)
			}
		}
	case CommentType:
		var p commentPayload
		if err = decode(cmd.Payload, &p); err == nil {
			var voter string
			if voter, err = voterOr(p.Voter, ctrl); err == nil {
				err = ctrl.CommentAs(voter, p.DocumentID, p.Text)
			}
		}
	case EditCommentType:
		var p commentPayload
		if err = decode(cmd.Payload, &p); err == nil {
			var voter string
			if voter, err = voterOr(p.Voter, ctrl); err == nil {
				err = ctrl.EditComment(voter, p.DocumentID, p.Text)
			}
		}
	case DeleteCommentType:
		var p commentPayload
		if err = decode(cmd.Payload, &p); err == nil {
			var voter string
			if voter, err = voterOr(p.Voter, ctrl); err == nil {
				err = ctrl.DeleteComment(voter, p.DocumentID)
			}
		}
	case QueueAddType:
		var p queueAddPayload
		if err = decode(cmd.Payload, &p); err == nil {
			err = ctrl.AddToQueue(ctx, p.Document)
		}
	case QueueRemoveType:
		var p queueRemovePayload
		if err = decode(cmd.Payload, &p); err == nil {
			err = ctrl.RemoveFromQueue(ctx, p.DocumentID)
		}
	case QueueReorderType:
		var p queueReorderPayload
		if err = decode(cmd.Payload, &p); err == nil {
			err = ctrl.ReorderQueue(ctx, p.From, p.To)
		}
	case QueueClearType:
		err = ctrl.ClearQueue(ctx)
	case SaveType:
		err = ctrl.Save(ctx)
	case RefreshType:
		err = ctrl.Refresh(ctx)
	case SummaryType:
		mutates = false
		data, err = ctrl.Summary()
	case GradeType:
		var p gradePayload
		if err = decode(cmd.Payload, &p); err == nil {
			data, err = ctrl.Grade(ctx, p.Document, p.PositionDescription, p.Language)
		}
	case LetterType:
		mutates = false
		var p letterPayload
		if err = decode(cmd.Payload, &p); err == nil {
			data, err = ctrl.GenerateLetter(ctx, p.Kind, p.Document, controller.LetterOptions{
				Language:    p.Language,
				CompanyName: p.CompanyName,
				Position:    p.Position,
			})
		}
	default:
		return Reply{Error: fmt.Sprintf("unknown command %q", cmd.Type)}
	}

	reply := Reply{OK: err == nil, Data: data, WorkspaceID: ctrl.WorkspaceID()}
	if err != nil {
		reply.Error = err.Error()
		if !errors.Is(err, review.ErrRemoteUnavailable) {
			logger.Sugar.Infof("Session %s: %s rejected: %v", c.ID, cmd.Type, err)
		}
	}
	if mutates || err != nil {
		c.attachState(&reply)
	}
	return reply
}

func (c *Client) attachState(reply *Reply) {
	scores, err := c.Controller.Scores()
	if err != nil {
		return
	}
	queue, _ := c.Controller.Queue()
	reply.State = &StateView{Scores: scores, Queue: queue}
	if st, err := c.Controller.Status(); err == nil {
		reply.Status = statusView(st)
	}
}

// onEvent forwards sync events to the client and tells the rest of the
// workspace when the remote copy changed.
func (c *Client) onEvent(ev scheduler.Event) {
	ws := c.Controller.WorkspaceID()
	msg, err := json.Marshal(Reply{
		Type:        SyncType,
		OK:          ev.Err == nil,
		WorkspaceID: ws,
		Data:        map[string]any{"resource": ev.Resource, "event": eventView(ev)},
	})
	if err == nil {
		c.trySend(msg)
	}

	if ev.Kind == scheduler.EventPushed && ws != "" {
		go c.Hub.notify(Notice{
			WorkspaceID: ws,
			From:        c,
			Reply:       Reply{Type: RemoteChangedType, OK: true, WorkspaceID: ws, Data: map[string]any{"resource": ev.Resource}},
		})
	}
}

func (c *Client) reply(r Reply) {
	msg, err := json.Marshal(r)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling reply: %v", err)
		return
	}
	if !c.trySend(msg) {
		logger.Sugar.Warnf("Session %s's send buffer is full, dropping %s reply", c.ID, r.Type)
	}
}

// trySend queues msg without blocking. It reports false once the session
// is closed or its buffer is full.
func (c *Client) trySend(msg []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

var errForeignVoter = errors.New("cannot write as another reviewer")

// voterOr resolves the voter a command writes as. Sessions may only act as
// themselves or as the grading bot.
func voterOr(voter string, ctrl *controller.Controller) (string, error) {
	switch voter {
	case "", ctrl.Voter():
		return ctrl.Voter(), nil
	case model.GradingBotVoter:
		return voter, nil
	}
	return "", errForeignVoter
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("payload is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
