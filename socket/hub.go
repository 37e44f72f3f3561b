package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"cvreview/internal/review/controller"
	"cvreview/internal/review/scheduler"
	"cvreview/pkg/logger"
)

const (
	flushTimeout     = 30 * time.Second
	saveWorkerPeriod = 10 * time.Second
)

// ControllerFactory builds the session controller of a new connection.
// onEvent must be wired as the controller's sync event callback.
type ControllerFactory func(onEvent func(scheduler.Event)) *controller.Controller

// Notice is a message for every client in a workspace except the sender.
type Notice struct {
	WorkspaceID string
	From        *Client
	Reply       Reply
}

type join struct {
	client      *Client
	workspaceID string
}

// Hub tracks the open review sessions, grouped into rooms by workspace.
type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan Notice
	Register   chan *Client
	Unregister chan *Client
	join       chan join
	done       chan struct{}

	newController ControllerFactory

	mu      sync.Mutex
	clients map[*Client]string // client -> workspace
	flushes sync.WaitGroup
}

func NewHub(factory ControllerFactory) *Hub {
	return &Hub{
		Rooms:         make(map[string]map[*Client]bool),
		Broadcast:     make(chan Notice),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		join:          make(chan join),
		done:          make(chan struct{}),
		newController: factory,
		clients:       make(map[*Client]string),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = ""
			h.mu.Unlock()
			logger.Sugar.Infof("Session %s opened for user %s", client.ID, client.UserID)

		case j := <-h.join:
			h.mu.Lock()
			if prev, ok := h.clients[j.client]; ok {
				h.leaveRoom(j.client, prev)
				h.clients[j.client] = j.workspaceID
				if h.Rooms[j.workspaceID] == nil {
					h.Rooms[j.workspaceID] = make(map[*Client]bool)
				}
				h.Rooms[j.workspaceID][j.client] = true
			}
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			ws, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				h.leaveRoom(client, ws)
				// Registered before the session disappears from Sessions so
				// Shutdown cannot miss it.
				h.flushes.Add(1)
			}
			h.mu.Unlock()
			if !ok {
				continue
			}
			client.closeSend()

			// Push whatever the session had not saved yet.
			go func() {
				defer h.flushes.Done()
				ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
				defer cancel()
				if err := client.Controller.Close(ctx); err != nil {
					logger.Sugar.Errorf("Failed to save session %s on close: %v", client.ID, err)
					return
				}
				logger.Sugar.Infof("Closed session %s", client.ID)
			}()

		case notice := <-h.Broadcast:
			payload, err := json.Marshal(notice.Reply)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling notice: %v", err)
				continue
			}
			h.mu.Lock()
			recipients := make([]*Client, 0, len(h.Rooms[notice.WorkspaceID]))
			for client := range h.Rooms[notice.WorkspaceID] {
				if client != notice.From {
					recipients = append(recipients, client)
				}
			}
			h.mu.Unlock()

			for _, client := range recipients {
				if !client.trySend(payload) {
					logger.Sugar.Warnf("Session %s's send buffer is full, dropping notice", client.ID)
				}
			}
		}
	}
}

// notify hands n to Run, unless Run has stopped.
func (h *Hub) notify(n Notice) {
	select {
	case h.Broadcast <- n:
	case <-h.done:
	}
}

// leaveRoom must be called with h.mu held.
func (h *Hub) leaveRoom(client *Client, workspaceID string) {
	if workspaceID == "" {
		return
	}
	delete(h.Rooms[workspaceID], client)
	if len(h.Rooms[workspaceID]) == 0 {
		delete(h.Rooms, workspaceID)
	}
}

// SaveWorker periodically retries saves for sessions holding changes that
// no push has covered, such as after a failed autosave.
func (h *Hub) SaveWorker(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = saveWorkerPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		h.mu.Lock()
		sessions := make([]*Client, 0, len(h.clients))
		for client, ws := range h.clients {
			if ws != "" {
				sessions = append(sessions, client)
			}
		}
		h.mu.Unlock()

		for _, client := range sessions {
			st, err := client.Controller.Status()
			if err != nil || st.Pending || st.Pushing || !(st.UnsyncedScores || st.UnsyncedQueue) {
				continue
			}
			saveCtx, cancel := context.WithTimeout(ctx, flushTimeout)
			if err := client.Controller.Save(saveCtx); err != nil {
				logger.Sugar.Errorf("Retry save for session %s failed: %v", client.ID, err)
			} else {
				logger.Sugar.Infof("Retried save for session %s", client.ID)
			}
			cancel()
		}
	}
}

// Sessions reports the number of open sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown disconnects every session and waits until their close-time
// saves finish or ctx is done. Run must still be running.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for client := range h.clients {
		client.Conn.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for h.Sessions() > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
		h.flushes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
