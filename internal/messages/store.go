package messages

import (
	"sync"

	"github.com/flitsinc/go-a2a/internal/idgen"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleAgent      Role = "agent"
	RoleSystem     Role = "system"
	RoleToolResult Role = "tool-result"
)

// Part is one content segment of a message. Only "text" parts are fed to
// the model; other types ride along untouched.
type Part struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type Message struct {
	ID     string `json:"id"`
	TaskID string `json:"task_id,omitempty"`
	Role   Role   `json:"role"`
	Parts  []Part `json:"parts"`
}

// Text concatenates the message's text parts in order.
func (m Message) Text() string {
	var out string
	for _, part := range m.Parts {
		if part.Type == "text" {
			out += part.Content
		}
	}
	return out
}

// Store is an append-only per-task conversation log. Messages are never
// mutated or removed once appended. The store does not check that the task
// exists; callers validate task ids before appending.
type Store struct {
	mu      sync.RWMutex
	byTask  map[string][]Message
	newIDFn func() string
}

type Option func(*Store)

func WithIDGenerator(newIDFn func() string) Option {
	return func(s *Store) {
		if newIDFn != nil {
			s.newIDFn = newIDFn
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		byTask:  map[string][]Message{},
		newIDFn: idgen.NewMessageID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Append adds a message to the task's log and returns the stored copy,
// generating an id when the message arrives without one.
func (s *Store) Append(taskID string, msg Message) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = s.newIDFn()
	}
	msg.TaskID = taskID
	s.byTask[taskID] = append(s.byTask[taskID], msg)
	return msg
}

// List returns the task's messages in insertion order. The returned slice
// is a copy; appends after the call are not reflected.
func (s *Store) List(taskID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.byTask[taskID]
	out := make([]Message, len(stored))
	copy(out, stored)
	return out
}
