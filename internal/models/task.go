package models

import (
	"sync"
	"time"
)

// TaskDescriptor describes a background task running on a cluster.
type TaskDescriptor struct {
	ID          string        `json:"id"`
	Node        string        `json:"node"`
	Action      string        `json:"action"`
	Description string        `json:"description,omitempty"`
	RunningTime time.Duration `json:"running_time"`
}

// TaskStatus is one polled snapshot of a remote copy task.
type TaskStatus struct {
	Completed bool   `json:"completed"`
	Total     int64  `json:"total"`
	Created   int64  `json:"created"`
	Updated   int64  `json:"updated"`
	Deleted   int64  `json:"deleted"`
	Error     string `json:"error,omitempty"` // set when the task finished with a failure
}

// Documents is the cumulative number of documents the task has written.
func (s TaskStatus) Documents() int64 {
	return s.Created + s.Updated + s.Deleted
}

// TaskState is the lifecycle state of a dispatched copy.
type TaskState string

const (
	TaskRunning TaskState = "running"
	TaskDone    TaskState = "done"
	TaskFailed  TaskState = "failed"
	TaskStalled TaskState = "stalled"
	TaskSkipped TaskState = "skipped"
)

// TaskHandle tracks one dispatched copy.
type TaskHandle struct {
	IndexName         string     `json:"index"`
	RemoteTaskID      string     `json:"task_id,omitempty"`
	TotalDocuments    int64      `json:"total_documents"`
	ProgressDocuments int64      `json:"progress_documents"`
	Completed         bool       `json:"completed"` // the cluster reported completion
	State             TaskState  `json:"state"`
	Error             string     `json:"error,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	LastProgressAt    time.Time  `json:"last_progress_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

// Finished reports whether the handle will not change any more.
func (h TaskHandle) Finished() bool {
	switch h.State {
	case TaskDone, TaskFailed, TaskStalled, TaskSkipped:
		return true
	}
	return false
}

// TaskTable maps index names to their copy task. Entries are only ever
// added; each entry is mutated through Update by the goroutine that
// registered it. Readers get copies.
type TaskTable struct {
	mu    sync.RWMutex
	order []string
	tasks map[string]*TaskHandle
}

// NewTaskTable creates an empty task table.
func NewTaskTable() *TaskTable {
	return &TaskTable{tasks: make(map[string]*TaskHandle)}
}

// Register inserts a handle. It returns false if the index is already present.
func (t *TaskTable) Register(h TaskHandle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tasks[h.IndexName]; ok {
		return false
	}
	t.tasks[h.IndexName] = &h
	t.order = append(t.order, h.IndexName)
	return true
}

// Update applies fn to the named handle under the table lock and returns a
// copy of the result.
func (t *TaskTable) Update(name string, fn func(h *TaskHandle)) (TaskHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.tasks[name]
	if !ok {
		return TaskHandle{}, false
	}
	fn(h)
	return *h, true
}

// Get returns a copy of the named handle.
func (t *TaskTable) Get(name string) (TaskHandle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.tasks[name]
	if !ok {
		return TaskHandle{}, false
	}
	return *h, true
}

// Len returns the number of registered handles.
func (t *TaskTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Snapshot returns copies of all handles in registration order.
func (t *TaskTable) Snapshot() []TaskHandle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TaskHandle, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, *t.tasks[name])
	}
	return out
}

// Progress is the aggregated state of all copy tasks of a run.
type Progress struct {
	Documents int64        `json:"documents"`
	Total     int64        `json:"total"`
	Ratio     float64      `json:"ratio"`
	Expected  int          `json:"expected"` // number of copies in the plan
	Tasks     []TaskHandle `json:"tasks"`
	Done      bool         `json:"done"`
}

// Finished returns the number of tasks that will not change any more.
func (p Progress) Finished() int {
	n := 0
	for _, t := range p.Tasks {
		if t.Finished() {
			n++
		}
	}
	return n
}
