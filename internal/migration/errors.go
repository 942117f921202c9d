package migration

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rflorenc/esmigrate/internal/models"
)

// ErrLocked is returned when another local run holds the destination lock.
var ErrLocked = errors.New("another migration to this destination is running")

// TasksInProgressError aborts a run because a cluster already runs reindex tasks.
type TasksInProgressError struct {
	Cluster string
	Tasks   map[string]models.TaskDescriptor
}

func (e *TasksInProgressError) Error() string {
	return fmt.Sprintf("%d reindex task(s) already running on %s: %s",
		len(e.Tasks), e.Cluster, strings.Join(e.TaskIDs(), ", "))
}

// TaskIDs returns the running task IDs, sorted.
func (e *TasksInProgressError) TaskIDs() []string {
	ids := make([]string, 0, len(e.Tasks))
	for id := range e.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StalledTaskError marks a copy task that reported no progress for too long.
type StalledTaskError struct {
	Index  string
	TaskID string
	Idle   time.Duration
}

func (e *StalledTaskError) Error() string {
	return fmt.Sprintf("copy of %s stalled: task %s made no progress for %s", e.Index, e.TaskID, e.Idle)
}
