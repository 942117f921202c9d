package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/rflorenc/esmigrate/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const streamInterval = 200 * time.Millisecond

// StreamJobLogs streams job log lines over WebSocket.
func (s *Server) StreamJobLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job := s.Jobs.Get(id)
	if job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	offset := 0
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for range ticker.C {
		// Read the status first so that lines appended before completion
		// are flushed before closing.
		done := job.Done()
		lines := job.LogsSince(offset)
		for _, line := range lines {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
			offset++
		}
		if done && len(lines) == 0 {
			closeStream(conn, job)
			return
		}
	}
}

// StreamJobProgress streams progress snapshots as JSON over WebSocket,
// sending one message each time the progress changes.
func (s *Server) StreamJobProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job := s.Jobs.Get(id)
	if job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var last []byte
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for range ticker.C {
		done := job.Done()
		if p, ok := job.LatestProgress(); ok {
			msg, err := json.Marshal(p)
			if err != nil {
				return
			}
			if string(msg) != string(last) {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
				last = msg
			}
		}
		if done {
			closeStream(conn, job)
			return
		}
	}
}

func closeStream(conn *websocket.Conn, job *models.Job) {
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, job.CurrentStatus()))
}
