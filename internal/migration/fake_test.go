package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rflorenc/esmigrate/internal/cluster"
	"github.com/rflorenc/esmigrate/internal/models"
)

// fakeTask is a remote copy task that completes after a fixed number of polls.
type fakeTask struct {
	index   string
	total   int64
	polls   int
	after   int  // polls needed to complete
	stuck   bool // never reports progress nor completion
	failMsg string
	done    bool
}

// fakeCluster is an in-memory cluster.Cluster.
type fakeCluster struct {
	info *models.Cluster

	mu          sync.Mutex
	indexes     []models.IndexRecord
	listErr     error
	running     map[string]models.TaskDescriptor
	tasksErr    error
	removeErr   map[string]error
	truncateErr map[string]error
	submitErr   map[string]error
	statusErr   error // returned once, then cleared
	pollsToDone int
	stuck       map[string]bool
	taskFail    map[string]string
	sourceDocs  map[string]int64

	listCalls   int
	removed     []string
	truncated   []string
	submitted   []string
	tasks       map[string]*fakeTask
	inFlight    int
	maxInFlight int
}

var _ cluster.Cluster = (*fakeCluster)(nil)

func newFakeCluster(addr string, indexes ...models.IndexRecord) *fakeCluster {
	return &fakeCluster{
		info:        models.NewCluster(addr),
		indexes:     indexes,
		pollsToDone: 2,
		tasks:       make(map[string]*fakeTask),
	}
}

func (f *fakeCluster) Info() *models.Cluster { return f.info }

func (f *fakeCluster) ListIndexes(ctx context.Context) ([]models.IndexRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.IndexRecord(nil), f.indexes...), nil
}

func (f *fakeCluster) ListRunningTasks(ctx context.Context) (map[string]models.TaskDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tasksErr != nil {
		return nil, f.tasksErr
	}
	out := make(map[string]models.TaskDescriptor, len(f.running))
	for k, v := range f.running {
		out[k] = v
	}
	return out, nil
}

func (f *fakeCluster) RemoveIndex(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.removeErr[name]; err != nil {
		return err
	}
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeCluster) TruncateIndex(ctx context.Context, name string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.truncateErr[name]; err != nil {
		return 0, err
	}
	f.truncated = append(f.truncated, name)
	return 3 * time.Millisecond, nil
}

func (f *fakeCluster) SubmitCopy(ctx context.Context, index string, source *models.Cluster) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.submitErr[index]; err != nil {
		return "", err
	}
	id := fmt.Sprintf("node:%d", len(f.submitted)+1)
	f.submitted = append(f.submitted, index)
	f.tasks[id] = &fakeTask{
		index:   index,
		total:   f.sourceDocs[index],
		after:   f.pollsToDone,
		stuck:   f.stuck[index],
		failMsg: f.taskFail[index],
	}
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	return id, nil
}

func (f *fakeCluster) GetTaskStatus(ctx context.Context, taskID string) (models.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statusErr; err != nil {
		f.statusErr = nil
		return models.TaskStatus{}, err
	}
	t, ok := f.tasks[taskID]
	if !ok {
		return models.TaskStatus{}, fmt.Errorf("unknown task %s", taskID)
	}
	if t.stuck {
		return models.TaskStatus{Total: t.total}, nil
	}
	t.polls++
	st := models.TaskStatus{Total: t.total}
	if t.polls >= t.after {
		st.Completed = true
		st.Created = t.total
		st.Error = t.failMsg
		if !t.done {
			t.done = true
			f.inFlight--
		}
	} else {
		st.Created = t.total * int64(t.polls) / int64(t.after)
	}
	return st, nil
}

func (f *fakeCluster) snapshot() (removed, truncated, submitted []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...),
		append([]string(nil), f.truncated...),
		append([]string(nil), f.submitted...)
}

func green(name string, docs int64) models.IndexRecord {
	return models.IndexRecord{Name: name, Health: models.HealthGreen, DocumentCount: docs}
}

func yellow(name string, docs int64) models.IndexRecord {
	return models.IndexRecord{Name: name, Health: models.HealthYellow, DocumentCount: docs}
}

// testOptions returns fast options with the lock in a test directory.
func testOptions(lockDir string) Options {
	opts := DefaultOptions()
	opts.PollInterval = time.Millisecond
	opts.StallTimeout = 0
	opts.LockDir = lockDir
	return opts
}

// collect returns a logger callback and a function returning what it got.
func collect() (func(string), func() []string) {
	var mu sync.Mutex
	var lines []string
	return func(s string) {
			mu.Lock()
			lines = append(lines, s)
			mu.Unlock()
		}, func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), lines...)
		}
}
