package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rflorenc/esmigrate/internal/migration"
	"github.com/rflorenc/esmigrate/internal/models"
)

// pinger is implemented by clusters that can report their version.
type pinger interface {
	Ping(ctx context.Context) (string, error)
}

func (s *Server) CreateCluster(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		URL      string `json:"url"`
		Insecure bool   `json:"insecure"`
		CACert   string `json:"ca_cert"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	c := models.NewCluster(req.URL)
	if req.Name != "" {
		c.Name = req.Name
	}
	c.Insecure = req.Insecure
	c.CACert = req.CACert
	s.Clusters.Create(c)
	writeJSON(w, http.StatusCreated, c.Public())
}

func (s *Server) ListClusters(w http.ResponseWriter, r *http.Request) {
	clusters := s.Clusters.List()
	out := make([]models.Cluster, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, c.Public())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) DeleteCluster(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.Clusters.Delete(id) {
		writeError(w, http.StatusNotFound, "cluster not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TestCluster pings a cluster and records the result on it.
func (s *Server) TestCluster(w http.ResponseWriter, r *http.Request) {
	c := s.Clusters.Lookup(chi.URLParam(r, "id"))
	if c == nil {
		writeError(w, http.StatusNotFound, "cluster not found")
		return
	}
	version, err := s.Ping(r.Context(), c)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"version": version,
	})
}

// Ping checks that a cluster answers and stores its health.
func (s *Server) Ping(ctx context.Context, c *models.Cluster) (string, error) {
	p, ok := s.open(c).(pinger)
	if !ok {
		return "", nil
	}
	version, err := p.Ping(ctx)
	if err != nil {
		s.Clusters.SetHealth(c.ID, "error", err.Error(), "")
		return "", err
	}
	s.Clusters.SetHealth(c.ID, "ok", "", version)
	return version, nil
}

// ListClusterIndexes returns the indexes of a cluster, optionally filtered by
// the "pattern" query parameter.
func (s *Server) ListClusterIndexes(w http.ResponseWriter, r *http.Request) {
	c := s.Clusters.Lookup(chi.URLParam(r, "id"))
	if c == nil {
		writeError(w, http.StatusNotFound, "cluster not found")
		return
	}
	pattern, err := migration.CompilePattern(r.URL.Query().Get("pattern"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.open(c).ListIndexes(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	records = migration.FilterByPattern(records, pattern)
	if records == nil {
		records = []models.IndexRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// ListClusterTasks returns the reindex tasks running on a cluster.
func (s *Server) ListClusterTasks(w http.ResponseWriter, r *http.Request) {
	c := s.Clusters.Lookup(chi.URLParam(r, "id"))
	if c == nil {
		writeError(w, http.StatusNotFound, "cluster not found")
		return
	}
	tasks, err := s.open(c).ListRunningTasks(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	out := make([]models.TaskDescriptor, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	writeJSON(w, http.StatusOK, out)
}
