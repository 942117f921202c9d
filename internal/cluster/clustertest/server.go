// Package clustertest provides an in-memory Elasticsearch REST endpoint
// for tests.
package clustertest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/rflorenc/esmigrate/internal/cluster"
	"github.com/rflorenc/esmigrate/internal/models"
)

type task struct {
	index string
	total int64
	polls int
}

// Server answers the subset of the REST API the migration engine uses.
// Copies complete after PollsToComplete status reads and then appear as
// green indexes holding the copied documents.
type Server struct {
	*httptest.Server

	mu              sync.Mutex
	version         string
	indexes         []models.IndexRecord
	running         []string
	tasks           map[string]*task
	sourceCounts    map[string]int64
	pollsToComplete int
	requests        []string
}

// NewServer starts a server holding indexes.
func NewServer(indexes ...models.IndexRecord) *Server {
	s := &Server{
		version:         "7.17.9",
		indexes:         append([]models.IndexRecord(nil), indexes...),
		tasks:           make(map[string]*task),
		sourceCounts:    make(map[string]int64),
		pollsToComplete: 1,
	}

	r := chi.NewRouter()
	r.Use(s.record)
	r.Get("/", s.root)
	r.Get("/_cat/indices", s.catIndices)
	r.Get("/_tasks", s.listTasks)
	r.Get("/_tasks/{id}", s.getTask)
	r.Post("/_reindex", s.reindex)
	r.Post("/{index}/_delete_by_query", s.deleteByQuery)
	r.Delete("/{index}", s.deleteIndex)
	s.Server = httptest.NewServer(r)
	return s
}

// Addr returns host:port, the way an operator passes a cluster.
func (s *Server) Addr() string {
	return strings.TrimPrefix(s.URL, "http://")
}

// Cluster returns a models.Cluster pointing at the server.
func (s *Server) Cluster() *models.Cluster {
	return models.NewCluster(s.URL)
}

// SetVersion changes the version reported by GET /.
func (s *Server) SetVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// SetRunning makes GET /_tasks report these reindex task IDs.
func (s *Server) SetRunning(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = ids
}

// SetSourceCounts sets how many documents a copy of each index writes.
func (s *Server) SetSourceCounts(counts map[string]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range counts {
		s.sourceCounts[k] = v
	}
}

// SetPollsToComplete sets how many status reads a copy takes.
func (s *Server) SetPollsToComplete(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollsToComplete = n
}

// Indexes returns the current indexes.
func (s *Server) Indexes() []models.IndexRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.IndexRecord(nil), s.indexes...)
}

// Requests returns "METHOD path" for every request received.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Count returns the number of requests whose "METHOD path" has prefix.
func (s *Server) Count(prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var info cluster.RootInfo
	info.Name = "node-1"
	info.ClusterName = "clustertest"
	info.Version.Number = s.version
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) catIndices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]map[string]interface{}, 0, len(s.indexes))
	for _, idx := range s.indexes {
		rows = append(rows, map[string]interface{}{
			"index":      idx.Name,
			"health":     string(idx.Health),
			"status":     "open",
			"docs.count": strconv.FormatInt(idx.DocumentCount, 10),
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make(map[string]interface{})
	for i, id := range s.running {
		tasks[id] = map[string]interface{}{
			"node":                  "node-1",
			"id":                    i + 1,
			"action":                "indices:data/write/reindex",
			"description":           "reindex from [remote] to [dest]",
			"running_time_in_nanos": 1000000,
		}
	}
	nodes := map[string]interface{}{}
	if len(tasks) > 0 {
		nodes["node-1"] = map[string]interface{}{"name": "node-1", "tasks": tasks}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
}

func (s *Server) reindex(w http.ResponseWriter, r *http.Request) {
	var req cluster.ReindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("node-1:%d", len(s.tasks)+1)
	s.tasks[id] = &task{index: req.Dest.Index, total: s.sourceCounts[req.Source.Index]}
	writeJSON(w, http.StatusOK, map[string]string{"task": id})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	t.polls++
	completed := t.polls >= s.pollsToComplete
	created := t.total
	if !completed {
		created = t.total * int64(t.polls) / int64(s.pollsToComplete)
	} else if t.polls == s.pollsToComplete {
		s.putIndex(models.IndexRecord{Name: t.index, Health: models.HealthGreen, DocumentCount: t.total})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"completed": completed,
		"task": map[string]interface{}{
			"status": map[string]int64{"total": t.total, "created": created},
		},
	})
}

func (s *Server) deleteByQuery(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "index")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, idx := range s.indexes {
		if idx.Name == name {
			deleted := idx.DocumentCount
			s.indexes[i].DocumentCount = 0
			writeJSON(w, http.StatusOK, map[string]int64{"took": 2, "deleted": deleted})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "index_not_found_exception"})
}

func (s *Server) deleteIndex(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "index")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, idx := range s.indexes {
		if idx.Name == name {
			s.indexes = append(s.indexes[:i], s.indexes[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]bool{"acknowledged": true})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "index_not_found_exception"})
}

// putIndex adds or replaces an index. Callers hold s.mu.
func (s *Server) putIndex(rec models.IndexRecord) {
	for i, idx := range s.indexes {
		if idx.Name == rec.Name {
			s.indexes[i] = rec
			return
		}
	}
	s.indexes = append(s.indexes, rec)
}
