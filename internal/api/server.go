// Package api exposes the agent over HTTP: the discovery card, the task
// REST surface, the /rpc method dispatch, and the streaming endpoints.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/flitsinc/go-a2a/internal/agentcard"
	"github.com/flitsinc/go-a2a/internal/messages"
	"github.com/flitsinc/go-a2a/internal/processor"
	"github.com/flitsinc/go-a2a/internal/tasks"
)

type Server struct {
	Card      agentcard.Card
	Tasks     *tasks.Store
	Messages  *messages.Store
	Processor *processor.Processor
	Logger    *slog.Logger
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/.well-known/agent.json", s.handleAgentCard)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("/tasks", s.handleTasks)
	mux.HandleFunc("/tasks/", s.handleTaskItem)

	return mux
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.Card)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status := r.URL.Query().Get("status")
		writeJSON(w, http.StatusOK, s.Tasks.List(tasks.Status(status)))
	case http.MethodPost:
		var params map[string]any
		if err := decodeJSON(r.Body, &params); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		task := s.Tasks.Create(params)
		writeJSON(w, http.StatusCreated, map[string]any{"task_id": task.ID})
	default:
		writeMethodNotAllowed(w)
	}
}

func (s *Server) handleTaskItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/tasks/")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		writeError(w, http.StatusNotFound, errNotFound("task"))
		return
	}
	taskID := segments[0]
	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		task, err := s.Tasks.Get(taskID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
		return
	}

	action := segments[1]
	switch action {
	case "messages":
		s.handleTaskMessages(w, r, taskID)
	case "stream":
		s.handleTaskStream(w, r, taskID)
	case "ws":
		s.handleTaskWS(w, r, taskID)
	default:
		writeError(w, http.StatusNotFound, errNotFound("task action"))
	}
}

// handleTaskMessages appends a message to the task. When the task is still
// in "submitted" the append also kicks off blocking processing and the
// response is the full processing envelope; otherwise only the stored
// message id is returned.
func (s *Server) handleTaskMessages(w http.ResponseWriter, r *http.Request, taskID string) {
	switch r.Method {
	case http.MethodGet:
		if _, err := s.Tasks.Get(taskID); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, s.Messages.List(taskID))
	case http.MethodPost:
		task, err := s.Tasks.Get(taskID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		var msg messages.Message
		if err := decodeJSON(r.Body, &msg); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		added := s.Messages.Append(taskID, msg)

		if task.Status == tasks.StatusSubmitted {
			result, err := s.Processor.Process(r.Context(), taskID)
			if err != nil {
				s.logger().Error("task processing failed", "task", taskID, "error", err)
			}
			writeJSON(w, http.StatusOK, result)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message_id": added.ID})
	default:
		writeMethodNotAllowed(w)
	}
}

type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// handleRPC dispatches the protocol's method surface. Responses are always
// 200 with a JSON body; method-level failures are reported as an "error"
// field rather than an HTTP status.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req rpcRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch req.Method {
	case "discovery":
		writeJSON(w, http.StatusOK, s.Card)
	case "create_task":
		var params map[string]any
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				writeRPCError(w, err)
				return
			}
		}
		task := s.Tasks.Create(params)
		writeJSON(w, http.StatusOK, map[string]any{"task_id": task.ID})
	case "get_task":
		var params struct {
			TaskID string `json:"task_id"`
		}
		if err := unmarshalParams(req.Params, &params); err != nil {
			writeRPCError(w, err)
			return
		}
		task, err := s.Tasks.Get(params.TaskID)
		if err != nil {
			writeRPCError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	case "list_tasks":
		var params struct {
			Status string `json:"status"`
		}
		if err := unmarshalParams(req.Params, &params); err != nil {
			writeRPCError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.Tasks.List(tasks.Status(params.Status)))
	case "add_message":
		var params struct {
			TaskID  string           `json:"task_id"`
			Message messages.Message `json:"message"`
		}
		if err := unmarshalParams(req.Params, &params); err != nil {
			writeRPCError(w, err)
			return
		}
		if _, err := s.Tasks.Get(params.TaskID); err != nil {
			writeRPCError(w, err)
			return
		}
		added := s.Messages.Append(params.TaskID, params.Message)
		writeJSON(w, http.StatusOK, added)
	case "process_task":
		var params struct {
			TaskID string `json:"task_id"`
		}
		if err := unmarshalParams(req.Params, &params); err != nil {
			writeRPCError(w, err)
			return
		}
		result, err := s.Processor.Process(r.Context(), params.TaskID)
		if errors.Is(err, tasks.ErrTaskNotFound) {
			writeRPCError(w, err)
			return
		}
		if err != nil {
			// The envelope already carries the apology message; the error is
			// for the server log only.
			s.logger().Error("task processing failed", "task", params.TaskID, "error", err)
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"error": "unknown method: " + req.Method})
	}
}

func unmarshalParams(raw json.RawMessage, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

func decodeJSON(body io.Reader, dest any) error {
	return json.NewDecoder(body).Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeRPCError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusOK, map[string]any{"error": err.Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}

type notFoundError struct {
	msg string
}

func (e notFoundError) Error() string { return e.msg }

func errNotFound(target string) error {
	return notFoundError{msg: target + " not found"}
}
