package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/flitsinc/go-a2a/internal/processor"
)

type wsWriter interface {
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
}

// handleTaskWS mirrors the SSE endpoint over a websocket: one text frame
// per chunk, closing normally after the terminal chunk. Processing starts
// only once the handshake has succeeded, so a failed upgrade leaves the
// task untouched.
func (s *Server) handleTaskWS(w http.ResponseWriter, r *http.Request, taskID string) {
	if _, err := s.Tasks.Get(taskID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	chunks, err := s.Processor.ProcessStream(r.Context(), taskID)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "stream error")
		return
	}

	if err := streamChunks(r.Context(), chunks, conn); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "stream error")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

func streamChunks(ctx context.Context, chunks <-chan processor.Chunk, writer wsWriter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(chunk)
			if err != nil {
				return err
			}
			if err := writer.Write(ctx, websocket.MessageText, payload); err != nil {
				return err
			}
		}
	}
}
