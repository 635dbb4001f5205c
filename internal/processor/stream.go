package processor

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/flitsinc/go-a2a/internal/idgen"
	"github.com/flitsinc/go-a2a/internal/messages"
	"github.com/flitsinc/go-a2a/internal/tasks"
	"github.com/flitsinc/go-a2a/internal/toolbridge"
)

// Chunk is one increment of a streamed processing call. The final chunk
// carries Done plus either a completed status and the persisted message,
// or a failed status and an error string — never both.
type Chunk struct {
	TaskID    string
	MessageID string
	Content   string
	Done      bool
	Status    tasks.Status
	Message   *messages.Message
	Err       string
}

// MarshalJSON emits the wire shape: non-final chunks carry their delta as
// a typed content segment under "chunk".
func (c Chunk) MarshalJSON() ([]byte, error) {
	type segment struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	type wire struct {
		TaskID    string            `json:"task_id"`
		MessageID string            `json:"message_id"`
		Chunk     *segment          `json:"chunk,omitempty"`
		Done      bool              `json:"done"`
		Status    tasks.Status      `json:"status,omitempty"`
		Message   *messages.Message `json:"message,omitempty"`
		Err       string            `json:"error,omitempty"`
	}
	w := wire{
		TaskID:    c.TaskID,
		MessageID: c.MessageID,
		Done:      c.Done,
		Status:    c.Status,
		Message:   c.Message,
		Err:       c.Err,
	}
	if !c.Done {
		w.Chunk = &segment{Type: "text", Content: c.Content}
	}
	return json.Marshal(w)
}

// ProcessStream runs the incremental path. Setup mirrors Process, but
// deltas are forwarded to the returned channel as they arrive. The channel
// is unbuffered, so a slow consumer delays backend consumption rather than
// growing a buffer; it is closed after the terminal chunk.
func (p *Processor) ProcessStream(ctx context.Context, taskID string) (<-chan Chunk, error) {
	if _, err := p.tasks.Get(taskID); err != nil {
		return nil, err
	}
	out := make(chan Chunk)
	go p.runStream(ctx, taskID, out)
	return out, nil
}

func (p *Processor) runStream(ctx context.Context, taskID string, out chan<- Chunk) {
	defer close(out)
	unlock := p.lockTask(taskID)
	defer unlock()

	_ = p.tasks.UpdateStatus(taskID, tasks.StatusWorking)

	msgID := idgen.NewMessageID()
	turns := p.buildTurns(taskID)

	var content strings.Builder
	fail := func(cause error) {
		p.logger.Error("stream failed", "task", taskID, "error", cause)
		_ = p.tasks.UpdateStatus(taskID, tasks.StatusFailed)
		p.emit(ctx, out, Chunk{TaskID: taskID, MessageID: msgID, Done: true, Status: tasks.StatusFailed, Err: cause.Error()})
	}

	// No retry loop here: replaying a stream would re-send content the
	// consumer already received, so a mid-stream failure fails fast.
	if err := p.forwardStream(ctx, taskID, msgID, turns, &content, out); err != nil {
		fail(err)
		return
	}

	if calls := extractToolCalls(content.String()); len(calls) > 0 && p.hasTools {
		results := p.executeTools(ctx, calls)
		turns = append(turns, Turn{Role: "assistant", Content: content.String()})
		turns = append(turns, Turn{Role: "system", Content: toolResultsPrompt(results)})
		for _, result := range results {
			delta := formatToolResult(result)
			content.WriteString(delta)
			if !p.emit(ctx, out, Chunk{TaskID: taskID, MessageID: msgID, Content: delta}) {
				fail(ctx.Err())
				return
			}
		}
		if err := p.forwardStream(ctx, taskID, msgID, turns, &content, out); err != nil {
			fail(err)
			return
		}
	}

	final := content.String()
	if final == "" {
		final = emptyStreamFallback
	}
	msg := p.messages.Append(taskID, messages.Message{
		ID:    msgID,
		Role:  messages.RoleAgent,
		Parts: []messages.Part{{Type: "text", Content: final}},
	})
	_ = p.tasks.UpdateStatus(taskID, tasks.StatusCompleted)
	p.emit(ctx, out, Chunk{TaskID: taskID, MessageID: msgID, Done: true, Status: tasks.StatusCompleted, Message: &msg})
}

// forwardStream drains one backend stream, forwarding non-empty deltas and
// accumulating the full content. A mid-stream backend error is returned as
// the terminal failure for the whole call.
func (p *Processor) forwardStream(ctx context.Context, taskID, msgID string, turns []Turn, content *strings.Builder, out chan<- Chunk) error {
	model := p.pickModel(ctx)
	deltas, err := p.backend.ChatStream(ctx, model, turns)
	if err != nil {
		return err
	}
	for delta := range deltas {
		if delta.Err != nil {
			return delta.Err
		}
		if delta.Content == "" {
			continue
		}
		content.WriteString(delta.Content)
		if !p.emit(ctx, out, Chunk{TaskID: taskID, MessageID: msgID, Content: delta.Content}) {
			return ctx.Err()
		}
	}
	return nil
}

// emit delivers a chunk unless the consumer is gone.
func (p *Processor) emit(ctx context.Context, out chan<- Chunk, chunk Chunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func formatToolResult(result toolbridge.Result) string {
	serialized, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	return "\n" + string(serialized) + "\n"
}
