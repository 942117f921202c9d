package cluster

import (
	"context"
	"time"

	"github.com/rflorenc/esmigrate/internal/models"
)

// Cluster defines the operations the migration engine performs on a cluster.
type Cluster interface {
	// Info returns the cluster address and settings.
	Info() *models.Cluster

	// ListIndexes returns every index with its health and document count.
	ListIndexes(ctx context.Context) ([]models.IndexRecord, error)

	// ListRunningTasks returns running reindex-class tasks keyed by task ID.
	ListRunningTasks(ctx context.Context) (map[string]models.TaskDescriptor, error)

	// RemoveIndex deletes an index.
	RemoveIndex(ctx context.Context, name string) error

	// TruncateIndex deletes every document of an index, keeping the index.
	TruncateIndex(ctx context.Context, name string) (time.Duration, error)

	// SubmitCopy starts copying index from source into this cluster and
	// returns the remote task ID without waiting for completion.
	SubmitCopy(ctx context.Context, index string, source *models.Cluster) (string, error)

	// GetTaskStatus polls a task started by SubmitCopy.
	GetTaskStatus(ctx context.Context, taskID string) (models.TaskStatus, error)
}

var _ Cluster = (*Elasticsearch)(nil)
