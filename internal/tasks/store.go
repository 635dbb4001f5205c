package tasks

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flitsinc/go-a2a/internal/idgen"
)

type Status string

const (
	StatusSubmitted     Status = "submitted"
	StatusWorking       Status = "working"
	StatusInputRequired Status = "input-required"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCanceled      Status = "canceled"
)

var validStatuses = map[Status]struct{}{
	StatusSubmitted:     {},
	StatusWorking:       {},
	StatusInputRequired: {},
	StatusCompleted:     {},
	StatusFailed:        {},
	StatusCanceled:      {},
}

// IsTerminalStatus reports whether a task in this status is finished.
func IsTerminalStatus(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

type Task struct {
	ID        string         `json:"id"`
	Status    Status         `json:"status"`
	Params    map[string]any `json:"params,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

var ErrTaskNotFound = errors.New("task not found")
var ErrUnknownStatus = errors.New("unknown task status")

type UnknownStatusError struct {
	TaskID string
	Status Status
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown status %q for task %s", e.Status, e.TaskID)
}

func (e *UnknownStatusError) Unwrap() error {
	return ErrUnknownStatus
}

// Store keeps all tasks in memory, keyed by id. Everything goes through the
// mutex; there is no other shared state. Tasks are never removed.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string

	nowFn   func() time.Time
	newIDFn func() string
}

type Option func(*Store)

func WithClock(nowFn func() time.Time) Option {
	return func(s *Store) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

func WithIDGenerator(newIDFn func() string) Option {
	return func(s *Store) {
		if newIDFn != nil {
			s.newIDFn = newIDFn
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		tasks:   map[string]*Task{},
		nowFn:   func() time.Time { return time.Now().UTC() },
		newIDFn: idgen.NewTaskID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) now() time.Time {
	return s.nowFn().UTC()
}

// Create registers a new task in status "submitted" and returns it. The
// params map is held as given and echoed back verbatim on reads.
func (s *Store) Create(params map[string]any) Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newIDFn()
	now := s.now()
	task := &Task{
		ID:        id,
		Status:    StatusSubmitted,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.tasks[id] = task
	s.order = append(s.order, id)
	return *task
}

func (s *Store) Get(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return *task, nil
}

// UpdateStatus moves a task to the given status. It fails without touching
// the record when the id is unknown or the status is not one of the six
// recognized values.
func (s *Store) UpdateStatus(id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if _, ok := validStatuses[status]; !ok {
		return &UnknownStatusError{TaskID: id, Status: status}
	}
	task.Status = status
	task.UpdatedAt = s.now()
	return nil
}

// List returns tasks in creation order, optionally filtered by status.
// An empty filter returns everything.
func (s *Store) List(filter Status) []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		task := s.tasks[id]
		if filter != "" && task.Status != filter {
			continue
		}
		out = append(out, *task)
	}
	return out
}
