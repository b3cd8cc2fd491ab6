package web

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/kioskworks/boothd/internal/debug"
	"github.com/kioskworks/boothd/internal/session"
)

// Outbound message types.
const (
	MsgState = "state"
	MsgLog   = "log"
)

// Inbound operator command types.
const (
	CmdSessionStart   = "session.start"
	CmdSessionStop    = "session.stop"
	CmdSessionClear   = "session.clear"
	CmdTemplateSelect = "template.select"
	CmdRetakeSelect   = "retake.select"
	CmdReviewContinue = "review.continue"
	CmdReviewSkip     = "review.skip"
	CmdPrint          = "print"
	CmdComposeRetry   = "compose.retry"
	CmdTrigger        = "trigger"
)

// Envelope is the websocket wire format in both directions.
type Envelope struct {
	Type       string        `json:"type"`
	View       *session.View `json:"view,omitempty"`
	Msg        string        `json:"msg,omitempty"`
	Time       string        `json:"t,omitempty"`
	EventID    string        `json:"event_id,omitempty"`
	EventName  string        `json:"event_name,omitempty"`
	Mode       string        `json:"mode,omitempty"`
	TemplateID string        `json:"template_id,omitempty"`
	Slot       *uint         `json:"slot,omitempty"`
}

// Controller is the orchestrator surface the hub drives. Matching
// *session.Orchestrator; an interface so handler tests can fake it.
type Controller interface {
	Start(sctx session.Context)
	SelectTemplate(id string)
	Stop()
	Retake(slot uint)
	ReviewContinue()
	ReviewSkip()
	Print()
	RetryCompose()
	Clear()
	Trigger()
	View() session.View
}

// Hub maintains connected operator clients, broadcasts projection
// snapshots and log lines, and routes inbound commands to the
// orchestrator.
type Hub struct {
	ctrl Controller

	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
}

// NewHub creates a hub bound to the orchestrator surface.
func NewHub(ctrl Controller) *Hub {
	return &Hub{
		ctrl:       ctrl,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
	}
}

// Run services client registration and broadcasting until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			// New clients immediately get the current projection.
			c.enqueue(h.stateMessage())

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				c.enqueue(msg)
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastView pushes a projection snapshot to all clients.
func (h *Hub) BroadcastView(v session.View) {
	data, err := json.Marshal(Envelope{Type: MsgState, View: &v})
	if err != nil {
		return
	}
	h.send(data)
}

// BroadcastLog pushes a log line to all clients.
func (h *Hub) BroadcastLog(msg string) {
	data, err := json.Marshal(Envelope{
		Type: MsgLog,
		Msg:  msg,
		Time: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	h.send(data)
}

func (h *Hub) send(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		// Broadcast backlog; slow clients miss messages rather than
		// stalling the producer.
	}
}

func (h *Hub) stateMessage() []byte {
	v := h.ctrl.View()
	data, _ := json.Marshal(Envelope{Type: MsgState, View: &v})
	return data
}

// dispatch routes one inbound operator command.
func (h *Hub) dispatch(env Envelope) {
	debug.Verbose("Operator command: %s", env.Type)
	switch env.Type {
	case CmdSessionStart:
		h.ctrl.Start(session.Context{
			EventID:   env.EventID,
			EventName: env.EventName,
			Mode:      parseMode(env.Mode),
		})
	case CmdSessionStop:
		h.ctrl.Stop()
	case CmdSessionClear:
		h.ctrl.Clear()
	case CmdTemplateSelect:
		h.ctrl.SelectTemplate(env.TemplateID)
	case CmdRetakeSelect:
		if env.Slot != nil {
			h.ctrl.Retake(*env.Slot)
		}
	case CmdReviewContinue:
		h.ctrl.ReviewContinue()
	case CmdReviewSkip:
		h.ctrl.ReviewSkip()
	case CmdPrint:
		h.ctrl.Print()
	case CmdComposeRetry:
		h.ctrl.RetryCompose()
	case CmdTrigger:
		h.ctrl.Trigger()
	default:
		debug.Verbose("Unknown operator command: %s", env.Type)
	}
}

func parseMode(s string) session.Mode {
	if s == "photographer" {
		return session.ModePhotographer
	}
	return session.ModeNormal
}

// LogWriter adapts the hub as an io.Writer so the debug logger can be
// mirrored to connected operators.
func LogWriter(h *Hub) *logWriter {
	return &logWriter{h: h}
}

type logWriter struct {
	h *Hub
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.h.BroadcastLog(msg)
	}
	return len(p), nil
}
