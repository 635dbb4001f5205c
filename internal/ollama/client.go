// Package ollama adapts the Ollama HTTP API to the processor's model
// backend contract.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flitsinc/go-a2a/internal/processor"
)

// BackendError wraps transport and model failures from the Ollama API.
type BackendError struct {
	Op    string
	Model string
	Err   error
}

func (e *BackendError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("ollama %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ollama %s (model %s): %v", e.Op, e.Model, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	client  *http.Client
	baseURL string
}

var _ processor.Backend = (*Client)(nil)

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message *chatMessage `json:"message"`
	Done    bool         `json:"done"`
	Error   string       `json:"error"`
}

// Chat sends a blocking chat request and returns the full reply content.
func (c *Client) Chat(ctx context.Context, model string, turns []processor.Turn) (string, error) {
	body, err := c.post(ctx, model, turns, false)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", &BackendError{Op: "chat", Model: model, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Error != "" {
		return "", &BackendError{Op: "chat", Model: model, Err: errors.New(resp.Error)}
	}
	if resp.Message == nil {
		return "", &BackendError{Op: "chat", Model: model, Err: errors.New("response carried no message")}
	}
	return resp.Message.Content, nil
}

// ChatStream sends a streaming chat request. Ollama answers with one JSON
// object per line; each content fragment becomes a delta. The sequence is
// finite and not restartable. A mid-stream failure is delivered as a
// terminal Delta with Err set.
func (c *Client) ChatStream(ctx context.Context, model string, turns []processor.Turn) (<-chan processor.Delta, error) {
	body, err := c.post(ctx, model, turns, true)
	if err != nil {
		return nil, err
	}

	out := make(chan processor.Delta)
	go c.streamResponse(ctx, model, body, out)
	return out, nil
}

func (c *Client) streamResponse(ctx context.Context, model string, body io.ReadCloser, out chan<- processor.Delta) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64<<10)
	scanner.Buffer(buf, 1<<20)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			out <- processor.Delta{Err: &BackendError{Op: "chat stream", Model: model, Err: ctx.Err()}}
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var resp chatResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			out <- processor.Delta{Err: &BackendError{Op: "chat stream", Model: model, Err: fmt.Errorf("decode response: %w", err)}}
			return
		}
		if resp.Error != "" {
			out <- processor.Delta{Err: &BackendError{Op: "chat stream", Model: model, Err: errors.New(resp.Error)}}
			return
		}
		if resp.Message != nil && resp.Message.Content != "" {
			out <- processor.Delta{Content: resp.Message.Content}
		}
		if resp.Done {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		out <- processor.Delta{Err: &BackendError{Op: "chat stream", Model: model, Err: err}}
	}
}

// ListModels queries /api/tags for the identifiers of loadable models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, &BackendError{Op: "list models", Err: err}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &BackendError{Op: "list models", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &BackendError{Op: "list models", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &BackendError{Op: "list models", Err: fmt.Errorf("decode response: %w", err)}
	}
	names := make([]string, 0, len(parsed.Models))
	for _, model := range parsed.Models {
		names = append(names, model.Name)
	}
	return names, nil
}

func (c *Client) post(ctx context.Context, model string, turns []processor.Turn, stream bool) (io.ReadCloser, error) {
	op := "chat"
	if stream {
		op = "chat stream"
	}
	if strings.TrimSpace(model) == "" {
		return nil, &BackendError{Op: op, Err: errors.New("model is required")}
	}

	payload := chatRequest{Model: model, Stream: stream}
	for _, turn := range turns {
		payload.Messages = append(payload.Messages, chatMessage{Role: turn.Role, Content: turn.Content})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &BackendError{Op: op, Model: model, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &BackendError{Op: op, Model: model, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &BackendError{Op: op, Model: model, Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		if readErr != nil {
			return nil, &BackendError{Op: op, Model: model, Err: fmt.Errorf("status %d (read body failed: %v)", resp.StatusCode, readErr)}
		}
		return nil, &BackendError{Op: op, Model: model, Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))}
	}
	return resp.Body, nil
}
