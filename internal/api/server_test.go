package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/flitsinc/go-a2a/internal/agentcard"
	"github.com/flitsinc/go-a2a/internal/messages"
	"github.com/flitsinc/go-a2a/internal/processor"
	"github.com/flitsinc/go-a2a/internal/tasks"
	"github.com/flitsinc/go-a2a/internal/testutil"
)

type apiFakeBackend struct {
	reply  string
	deltas []processor.Delta
	err    error
}

func (b *apiFakeBackend) Chat(_ context.Context, _ string, _ []processor.Turn) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	return b.reply, nil
}

func (b *apiFakeBackend) ChatStream(_ context.Context, _ string, _ []processor.Turn) (<-chan processor.Delta, error) {
	out := make(chan processor.Delta, len(b.deltas))
	for _, delta := range b.deltas {
		out <- delta
	}
	close(out)
	return out, nil
}

func (b *apiFakeBackend) ListModels(_ context.Context) ([]string, error) {
	return []string{"primary"}, nil
}

func newTestServer(t *testing.T, backend processor.Backend) (*Server, *tasks.Store, *messages.Store) {
	t.Helper()
	taskStore := tasks.NewStore()
	messageStore := messages.NewStore()
	card := agentcard.New("Test Agent", "An agent for handler tests", "http://in-process", []agentcard.Skill{
		{ID: "answer_questions", Name: "Answer Questions", Description: "Answers questions"},
	}, "")
	proc := processor.New(processor.Config{
		Tasks:      taskStore,
		Messages:   messageStore,
		Backend:    backend,
		Card:       card,
		Model:      "primary",
		RetryDelay: 1,
	})
	server := &Server{
		Card:      card,
		Tasks:     taskStore,
		Messages:  messageStore,
		Processor: proc,
	}
	return server, taskStore, messageStore
}

func doJSON(t *testing.T, client *http.Client, method, path string, payload any) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, "http://in-process"+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeJSONResponse(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return string(data)
}

func userStoreMessage(content string) messages.Message {
	return messages.Message{
		Role:  messages.RoleUser,
		Parts: []messages.Part{{Type: "text", Content: content}},
	}
}

func userMessage(content string) map[string]any {
	return map[string]any{
		"role":  "user",
		"parts": []map[string]any{{"type": "text", "content": content}},
	}
}

func TestAgentCardEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t, &apiFakeBackend{reply: "ok"})
	client := testutil.NewInProcessClient(server.Handler())

	resp := doJSON(t, client, "GET", "/.well-known/agent.json", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("card status: %d", resp.StatusCode)
	}
	var card agentcard.Card
	decodeJSONResponse(t, resp, &card)
	if card.Name != "Test Agent" || card.Protocol != agentcard.Protocol {
		t.Fatalf("unexpected card %+v", card)
	}
}

func TestTaskLifecycleOverREST(t *testing.T) {
	server, _, _ := newTestServer(t, &apiFakeBackend{reply: "Hi there"})
	client := testutil.NewInProcessClient(server.Handler())

	resp := doJSON(t, client, "POST", "/tasks", map[string]any{"type": "chat"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %d body=%s", resp.StatusCode, readBody(t, resp))
	}
	var created struct {
		TaskID string `json:"task_id"`
	}
	decodeJSONResponse(t, resp, &created)
	if created.TaskID == "" {
		t.Fatalf("create returned no task id")
	}

	resp = doJSON(t, client, "GET", "/tasks/"+created.TaskID, nil)
	var task tasks.Task
	decodeJSONResponse(t, resp, &task)
	if task.Status != tasks.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", task.Status)
	}
	if task.Params["type"] != "chat" {
		t.Fatalf("params not echoed back: %+v", task.Params)
	}

	// Posting the first message to a submitted task triggers processing and
	// answers with the full envelope.
	resp = doJSON(t, client, "POST", "/tasks/"+created.TaskID+"/messages", userMessage("Hello"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add message status: %d body=%s", resp.StatusCode, readBody(t, resp))
	}
	var result processor.Result
	decodeJSONResponse(t, resp, &result)
	if result.Status != tasks.StatusCompleted {
		t.Fatalf("expected completed envelope, got %+v", result)
	}
	if result.Message.Text() != "Hi there" {
		t.Fatalf("unexpected reply %q", result.Message.Text())
	}

	resp = doJSON(t, client, "GET", "/tasks/"+created.TaskID+"/messages", nil)
	var log []messages.Message
	decodeJSONResponse(t, resp, &log)
	if len(log) != 2 || log[0].Role != messages.RoleUser || log[1].Role != messages.RoleAgent {
		t.Fatalf("unexpected conversation log %+v", log)
	}

	// The task is terminal now, so a further message is only stored.
	resp = doJSON(t, client, "POST", "/tasks/"+created.TaskID+"/messages", userMessage("Thanks"))
	var ack struct {
		MessageID string `json:"message_id"`
	}
	decodeJSONResponse(t, resp, &ack)
	if ack.MessageID == "" {
		t.Fatalf("expected stored message id")
	}
}

func TestGetTaskNotFound(t *testing.T) {
	server, _, _ := newTestServer(t, &apiFakeBackend{})
	client := testutil.NewInProcessClient(server.Handler())

	resp := doJSON(t, client, "GET", "/tasks/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var payload struct {
		Error string `json:"error"`
	}
	decodeJSONResponse(t, resp, &payload)
	if payload.Error == "" {
		t.Fatalf("expected error body")
	}
}

func TestListTasksStatusFilter(t *testing.T) {
	server, taskStore, _ := newTestServer(t, &apiFakeBackend{})
	client := testutil.NewInProcessClient(server.Handler())

	first := taskStore.Create(nil)
	taskStore.Create(nil)
	if err := taskStore.UpdateStatus(first.ID, tasks.StatusCompleted); err != nil {
		t.Fatalf("update status: %v", err)
	}

	resp := doJSON(t, client, "GET", "/tasks?status=submitted", nil)
	var submitted []tasks.Task
	decodeJSONResponse(t, resp, &submitted)
	if len(submitted) != 1 {
		t.Fatalf("expected 1 submitted task, got %d", len(submitted))
	}

	resp = doJSON(t, client, "GET", "/tasks", nil)
	var all []tasks.Task
	decodeJSONResponse(t, resp, &all)
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(all))
	}
}

func TestRPCDispatch(t *testing.T) {
	server, _, _ := newTestServer(t, &apiFakeBackend{reply: "Hi there"})
	client := testutil.NewInProcessClient(server.Handler())

	resp := doJSON(t, client, "POST", "/rpc", map[string]any{"method": "discovery"})
	var card agentcard.Card
	decodeJSONResponse(t, resp, &card)
	if card.Protocol != agentcard.Protocol {
		t.Fatalf("discovery returned %+v", card)
	}

	resp = doJSON(t, client, "POST", "/rpc", map[string]any{
		"method": "create_task",
		"params": map[string]any{"type": "chat"},
	})
	var created struct {
		TaskID string `json:"task_id"`
	}
	decodeJSONResponse(t, resp, &created)
	if created.TaskID == "" {
		t.Fatalf("create_task returned no id")
	}

	resp = doJSON(t, client, "POST", "/rpc", map[string]any{
		"method": "get_task",
		"params": map[string]any{"task_id": created.TaskID},
	})
	var task tasks.Task
	decodeJSONResponse(t, resp, &task)
	if task.ID != created.TaskID || task.Status != tasks.StatusSubmitted {
		t.Fatalf("get_task returned %+v", task)
	}

	resp = doJSON(t, client, "POST", "/rpc", map[string]any{
		"method": "add_message",
		"params": map[string]any{
			"task_id": created.TaskID,
			"message": userMessage("Hello"),
		},
	})
	var stored messages.Message
	decodeJSONResponse(t, resp, &stored)
	if stored.ID == "" || stored.TaskID != created.TaskID {
		t.Fatalf("add_message returned %+v", stored)
	}

	resp = doJSON(t, client, "POST", "/rpc", map[string]any{
		"method": "process_task",
		"params": map[string]any{"task_id": created.TaskID},
	})
	var result processor.Result
	decodeJSONResponse(t, resp, &result)
	if result.Status != tasks.StatusCompleted || result.Message.Text() != "Hi there" {
		t.Fatalf("process_task returned %+v", result)
	}

	resp = doJSON(t, client, "POST", "/rpc", map[string]any{"method": "list_tasks"})
	var listed []tasks.Task
	decodeJSONResponse(t, resp, &listed)
	if len(listed) != 1 || listed[0].Status != tasks.StatusCompleted {
		t.Fatalf("list_tasks returned %+v", listed)
	}
}

func TestRPCUnknownMethod(t *testing.T) {
	server, _, _ := newTestServer(t, &apiFakeBackend{})
	client := testutil.NewInProcessClient(server.Handler())

	resp := doJSON(t, client, "POST", "/rpc", map[string]any{"method": "bogus"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rpc errors ride a 200, got %d", resp.StatusCode)
	}
	var payload struct {
		Error string `json:"error"`
	}
	decodeJSONResponse(t, resp, &payload)
	if payload.Error != "unknown method: bogus" {
		t.Fatalf("unexpected error %q", payload.Error)
	}
}

func TestRPCGetTaskUnknownID(t *testing.T) {
	server, _, _ := newTestServer(t, &apiFakeBackend{})
	client := testutil.NewInProcessClient(server.Handler())

	resp := doJSON(t, client, "POST", "/rpc", map[string]any{
		"method": "get_task",
		"params": map[string]any{"task_id": "nope"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rpc errors ride a 200, got %d", resp.StatusCode)
	}
	var payload struct {
		Error string `json:"error"`
	}
	decodeJSONResponse(t, resp, &payload)
	if payload.Error == "" {
		t.Fatalf("expected error payload")
	}
}
