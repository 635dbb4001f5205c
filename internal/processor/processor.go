// Package processor owns the task processing engine: it turns a task's
// stored conversation into model calls, runs the tool round-trip the model
// asks for, and drives the task to a terminal status.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flitsinc/go-a2a/internal/agentcard"
	"github.com/flitsinc/go-a2a/internal/messages"
	"github.com/flitsinc/go-a2a/internal/tasks"
	"github.com/flitsinc/go-a2a/internal/toolbridge"
)

const (
	maxAttempts       = 3
	defaultRetryDelay = 2 * time.Second

	failureReplyFormat  = "I'm sorry, I wasn't able to process this request: %v"
	emptyStreamFallback = "I wasn't able to produce a response for this request."
)

type Config struct {
	Tasks    *tasks.Store
	Messages *messages.Store
	Backend  Backend
	// Bridge is optional. When nil (or when it describes no tools) the
	// processor never injects a capability prompt and never follows
	// embedded tool calls.
	Bridge         toolbridge.Bridge
	Card           agentcard.Card
	Model          string
	FallbackModels []string
	// RetryDelay is the pause between failed delivery attempts. Zero means
	// the default; tests inject something small.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

type Processor struct {
	tasks    *tasks.Store
	messages *messages.Store
	backend  Backend
	bridge   toolbridge.Bridge
	hasTools bool
	card     agentcard.Card

	mu        sync.Mutex // guards model
	model     string
	fallbacks []string

	retryDelay time.Duration
	logger     *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Result is the envelope a processing call hands back to the transport.
type Result struct {
	TaskID    string           `json:"task_id"`
	MessageID string           `json:"message_id"`
	Status    tasks.Status     `json:"status"`
	Message   messages.Message `json:"message"`
}

func New(cfg Config) *Processor {
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		tasks:      cfg.Tasks,
		messages:   cfg.Messages,
		backend:    cfg.Backend,
		bridge:     cfg.Bridge,
		hasTools:   cfg.Bridge != nil && len(cfg.Bridge.Describe()) > 0,
		card:       cfg.Card,
		model:      cfg.Model,
		fallbacks:  cfg.FallbackModels,
		retryDelay: retryDelay,
		logger:     logger,
		locks:      map[string]*sync.Mutex{},
	}
}

// Process runs the blocking path: deliver the conversation to the model,
// follow at most one round of tool calls, persist the reply, and complete
// the task. On backend exhaustion a well-formed apology Message is still
// persisted and returned alongside the error.
func (p *Processor) Process(ctx context.Context, taskID string) (Result, error) {
	unlock := p.lockTask(taskID)
	defer unlock()

	if _, err := p.tasks.Get(taskID); err != nil {
		return Result{}, err
	}
	_ = p.tasks.UpdateStatus(taskID, tasks.StatusWorking)

	turns := p.buildTurns(taskID)
	reply, err := p.deliver(ctx, turns)
	if err != nil {
		return p.failTask(taskID, err)
	}

	if calls := extractToolCalls(reply); len(calls) > 0 && p.hasTools {
		results := p.executeTools(ctx, calls)
		// One round only: tool calls embedded in the follow-up reply are
		// not followed.
		turns = append(turns, Turn{Role: "assistant", Content: reply})
		turns = append(turns, Turn{Role: "system", Content: toolResultsPrompt(results)})
		second, err := p.deliver(ctx, turns)
		if err != nil {
			return p.failTask(taskID, err)
		}
		reply = second
	}

	msg := p.messages.Append(taskID, messages.Message{
		Role:  messages.RoleAgent,
		Parts: []messages.Part{{Type: "text", Content: reply}},
	})
	_ = p.tasks.UpdateStatus(taskID, tasks.StatusCompleted)
	return Result{TaskID: taskID, MessageID: msg.ID, Status: tasks.StatusCompleted, Message: msg}, nil
}

// deliver attempts a model call with bounded retries, pausing between
// attempts except after the last one.
func (p *Processor) deliver(ctx context.Context, turns []Turn) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		model := p.pickModel(ctx)
		reply, err := p.backend.Chat(ctx, model, turns)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		p.logger.Warn("model call failed", "model", model, "attempt", attempt, "error", err)
		if attempt < maxAttempts {
			time.Sleep(p.retryDelay)
		}
	}
	return "", lastErr
}

// pickModel checks availability before each call. When the configured
// model is missing, the first available fallback replaces it for the rest
// of the session, not just this call.
func (p *Processor) pickModel(ctx context.Context) string {
	p.mu.Lock()
	model := p.model
	fallbacks := p.fallbacks
	p.mu.Unlock()

	available, err := p.backend.ListModels(ctx)
	if err != nil {
		// Assume the configured model is loadable and let the call fail
		// naturally if it is not.
		return model
	}
	present := make(map[string]struct{}, len(available))
	for _, name := range available {
		present[name] = struct{}{}
	}
	if _, ok := present[model]; ok {
		return model
	}
	for _, alt := range fallbacks {
		if _, ok := present[alt]; ok {
			p.logger.Warn("configured model unavailable, switching for the session", "from", model, "to", alt)
			p.mu.Lock()
			p.model = alt
			p.mu.Unlock()
			return alt
		}
	}
	return model
}

// buildTurns flattens the task's stored conversation into model input and
// injects the tool capability prompt when a bridge is wired.
func (p *Processor) buildTurns(taskID string) []Turn {
	history := p.messages.List(taskID)
	turns := make([]Turn, 0, len(history)+1)
	for _, msg := range history {
		turns = append(turns, Turn{Role: modelRole(msg.Role), Content: msg.Text()})
	}
	if p.hasTools {
		turns = injectToolPrompt(turns, p.card.Name, p.card.Description, p.bridge.Describe())
	}
	return turns
}

func modelRole(role messages.Role) string {
	switch role {
	case messages.RoleAgent:
		return "assistant"
	case messages.RoleToolResult:
		return "system"
	default:
		return string(role)
	}
}

// executeTools runs requested calls in order. A failing tool becomes an
// error entry in the results; the remaining calls still run.
func (p *Processor) executeTools(ctx context.Context, calls []ToolCall) []toolbridge.Result {
	results := make([]toolbridge.Result, 0, len(calls))
	for _, call := range calls {
		out, err := p.bridge.Execute(ctx, call.Name, call.Parameters)
		if err != nil {
			p.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
			results = append(results, toolbridge.Result{Name: call.Name, Error: err.Error()})
			continue
		}
		results = append(results, toolbridge.Result{Name: call.Name, Result: out})
	}
	return results
}

// failTask persists the apology reply so the caller still receives a
// well-formed Message, then marks the task failed. The backend error is
// returned for the transport to log; it is already embedded in the reply.
func (p *Processor) failTask(taskID string, cause error) (Result, error) {
	msg := p.messages.Append(taskID, messages.Message{
		Role:  messages.RoleAgent,
		Parts: []messages.Part{{Type: "text", Content: fmt.Sprintf(failureReplyFormat, cause)}},
	})
	_ = p.tasks.UpdateStatus(taskID, tasks.StatusFailed)
	return Result{TaskID: taskID, MessageID: msg.ID, Status: tasks.StatusFailed, Message: msg}, cause
}

// lockTask serializes processing per task id. Concurrent calls for
// different tasks proceed independently.
func (p *Processor) lockTask(taskID string) func() {
	p.locksMu.Lock()
	lock, ok := p.locks[taskID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[taskID] = lock
	}
	p.locksMu.Unlock()
	lock.Lock()
	return lock.Unlock
}
