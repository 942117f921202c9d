package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/juju/loggo"

	"github.com/rflorenc/esmigrate/internal/cluster"
	"github.com/rflorenc/esmigrate/internal/migration"
	"github.com/rflorenc/esmigrate/internal/models"
)

var logger = loggo.GetLogger("esmigrate.api")

// Server holds shared state for all API handlers.
type Server struct {
	Clusters *models.ClusterStore
	Jobs     *models.JobStore
	Previews *PreviewStore
	Options  migration.Options
	Timeout  time.Duration // per request to a cluster

	// Open binds a client to a cluster. Nil uses the REST client.
	Open func(c *models.Cluster) cluster.Cluster
}

// NewServer creates a Server with empty stores.
func NewServer(opts migration.Options, timeout time.Duration) *Server {
	return &Server{
		Clusters: models.NewClusterStore(),
		Jobs:     models.NewJobStore(),
		Previews: NewPreviewStore(),
		Options:  opts,
		Timeout:  timeout,
	}
}

func (s *Server) open(c *models.Cluster) cluster.Cluster {
	if s.Open != nil {
		return s.Open(c)
	}
	return cluster.NewElasticsearch(c, s.Timeout)
}

// NewRouter builds the chi router with all API routes.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Clusters
		r.Post("/clusters", s.CreateCluster)
		r.Get("/clusters", s.ListClusters)
		r.Delete("/clusters/{id}", s.DeleteCluster)
		r.Post("/clusters/{id}/test", s.TestCluster)
		r.Get("/clusters/{id}/indexes", s.ListClusterIndexes)
		r.Get("/clusters/{id}/tasks", s.ListClusterTasks)

		// Migration
		r.Post("/migrate/preview", s.MigrationPreviewHandler)
		r.Get("/migrate/preview/{jobId}", s.GetMigrationPreview)
		r.Post("/migrate/run", s.MigrationRunHandler)

		// Jobs
		r.Get("/jobs", s.ListJobs)
		r.Get("/jobs/{id}", s.GetJob)
		r.Post("/jobs/{id}/cancel", s.CancelJob)
	})

	// WebSocket (outside /api to avoid JSON content-type assumptions)
	r.Get("/ws/jobs/{id}/logs", s.StreamJobLogs)
	r.Get("/ws/jobs/{id}/progress", s.StreamJobProgress)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugf("encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
