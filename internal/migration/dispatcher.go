package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/semaphore"

	"github.com/rflorenc/esmigrate/internal/cluster"
	"github.com/rflorenc/esmigrate/internal/models"
)

// Dispatcher executes a plan against the destination cluster. Removals and
// truncations run one at a time; copies run under a concurrency limit, each
// followed by a polling loop that owns the copy's TaskHandle.
type Dispatcher struct {
	source *models.Cluster
	dst    cluster.Cluster
	opts   Options
	clock  clock.Clock
	tasks  *models.TaskTable
	log    func(string)
}

// NewDispatcher creates a Dispatcher copying from source into dst.
func NewDispatcher(source *models.Cluster, dst cluster.Cluster, opts Options, log func(string)) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		source: source,
		dst:    dst,
		opts:   opts,
		clock:  opts.Clock,
		tasks:  models.NewTaskTable(),
		log:    log,
	}
}

// Tasks returns the task table. Callers must only read from it.
func (d *Dispatcher) Tasks() *models.TaskTable {
	return d.tasks
}

// RunMaintenance removes then truncates the planned destination indexes, one
// at a time. Failures are recorded and logged; they never stop the batch.
func (d *Dispatcher) RunMaintenance(ctx context.Context, plan *models.MigrationPlan) []models.ActionResult {
	results := make([]models.ActionResult, 0, len(plan.ToRemove)+len(plan.ToTruncate))

	for _, name := range plan.ToRemove {
		start := d.clock.Now()
		err := d.dst.RemoveIndex(ctx, name)
		res := models.ActionResult{Action: models.ActionRemove, Index: name, Elapsed: d.clock.Now().Sub(start)}
		if err != nil {
			res.Outcome = models.OutcomeFailed
			res.Error = err.Error()
			d.log(fmt.Sprintf("  FAIL removing %s: %v", name, err))
		} else {
			res.Outcome = models.OutcomeOK
			d.log(fmt.Sprintf("Removing %s", name))
		}
		results = append(results, res)
	}

	for _, name := range plan.ToTruncate {
		took, err := d.dst.TruncateIndex(ctx, name)
		res := models.ActionResult{Action: models.ActionTruncate, Index: name, Elapsed: took}
		if err != nil {
			res.Outcome = models.OutcomeFailed
			res.Error = err.Error()
			d.log(fmt.Sprintf("  FAIL truncating %s: %v", name, err))
		} else {
			res.Outcome = models.OutcomeOK
			d.log(fmt.Sprintf("Truncating %s took %dms", name, took.Milliseconds()))
		}
		results = append(results, res)
	}

	return results
}

// RunCopies dispatches every copy in plan order, holding at most
// Options.Concurrency copies in flight, and waits for all of them to finish.
// Indexes listed in skip (e.g. whose truncation failed) are registered as
// skipped without being submitted.
func (d *Dispatcher) RunCopies(ctx context.Context, plan *models.MigrationPlan, skip map[string]string) []models.ActionResult {
	sem := semaphore.NewWeighted(int64(d.opts.Concurrency))
	results := make([]models.ActionResult, len(plan.ToCopy))
	var wg sync.WaitGroup

	for i, name := range plan.ToCopy {
		total := plan.Documents[name]
		if reason, ok := skip[name]; ok {
			results[i] = d.skipCopy(name, total, reason)
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = d.skipCopy(name, total, fmt.Sprintf("not dispatched: %v", err))
			continue
		}
		wg.Add(1)
		go func(i int, name string, total int64) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = d.copyIndex(ctx, name, total)
		}(i, name, total)
	}

	wg.Wait()
	return results
}

// skipCopy registers a copy that will never be submitted.
func (d *Dispatcher) skipCopy(name string, total int64, reason string) models.ActionResult {
	now := d.clock.Now()
	d.tasks.Register(models.TaskHandle{
		IndexName:      name,
		TotalDocuments: total,
		State:          models.TaskSkipped,
		Error:          reason,
		StartedAt:      now,
		LastProgressAt: now,
		FinishedAt:     &now,
	})
	d.log(fmt.Sprintf("  SKIP copying %s: %s", name, reason))
	return models.ActionResult{Action: models.ActionCopy, Index: name, Outcome: models.OutcomeSkipped, Error: reason}
}

// copyIndex submits one copy and polls it until it finishes.
func (d *Dispatcher) copyIndex(ctx context.Context, name string, total int64) models.ActionResult {
	res := models.ActionResult{Action: models.ActionCopy, Index: name}
	start := d.clock.Now()

	taskID, err := d.dst.SubmitCopy(ctx, name, d.source)
	if err != nil {
		now := d.clock.Now()
		d.tasks.Register(models.TaskHandle{
			IndexName:      name,
			TotalDocuments: total,
			State:          models.TaskFailed,
			Error:          err.Error(),
			StartedAt:      start,
			LastProgressAt: start,
			FinishedAt:     &now,
		})
		d.log(fmt.Sprintf("  FAIL copying %s: %v", name, err))
		res.Outcome = models.OutcomeFailed
		res.Error = err.Error()
		res.Elapsed = now.Sub(start)
		return res
	}

	d.tasks.Register(models.TaskHandle{
		IndexName:      name,
		RemoteTaskID:   taskID,
		TotalDocuments: total,
		State:          models.TaskRunning,
		StartedAt:      start,
		LastProgressAt: start,
	})
	logger.Debugf("copy of %s submitted as task %s", name, taskID)

	h := d.poll(ctx, name, taskID)
	res.TaskID = taskID
	res.Elapsed = d.clock.Now().Sub(start)
	switch h.State {
	case models.TaskDone:
		res.Outcome = models.OutcomeOK
		d.log(fmt.Sprintf("Copying %s took %dms", name, res.Elapsed.Milliseconds()))
	default:
		res.Outcome = models.OutcomeFailed
		res.Error = h.Error
		d.log(fmt.Sprintf("  FAIL copying %s: %s", name, h.Error))
	}
	return res
}

// poll re-reads the task status every PollInterval until the task completes,
// stalls or ctx is done. Status fetch errors are ignored until the next tick.
func (d *Dispatcher) poll(ctx context.Context, name, taskID string) models.TaskHandle {
	for {
		select {
		case <-ctx.Done():
			h, _ := d.finish(name, models.TaskFailed, fmt.Sprintf("polling stopped: %v (task %s keeps running on the destination)", ctx.Err(), taskID))
			return h
		case <-d.clock.After(d.opts.PollInterval):
		}

		status, err := d.dst.GetTaskStatus(ctx, taskID)
		if err != nil {
			logger.Debugf("status of task %s for %s: %v", taskID, name, err)
			if h, stalled := d.checkStalled(name, taskID); stalled {
				return h
			}
			continue
		}

		h := d.applyStatus(name, status)
		if h.Finished() {
			return h
		}
		if h, stalled := d.checkStalled(name, taskID); stalled {
			return h
		}
	}
}

// applyStatus records one polled status on the named handle.
func (d *Dispatcher) applyStatus(name string, status models.TaskStatus) models.TaskHandle {
	now := d.clock.Now()
	h, _ := d.tasks.Update(name, func(h *models.TaskHandle) {
		if docs := status.Documents(); docs != h.ProgressDocuments {
			h.ProgressDocuments = docs
			h.LastProgressAt = now
		}
		if !status.Completed {
			return
		}
		h.Completed = true
		h.FinishedAt = &now
		if status.Error != "" {
			h.State = models.TaskFailed
			h.Error = status.Error
		} else {
			h.State = models.TaskDone
		}
	})
	return h
}

// checkStalled marks the handle stalled once it has made no progress for
// StallTimeout. A zero StallTimeout disables the check.
func (d *Dispatcher) checkStalled(name, taskID string) (models.TaskHandle, bool) {
	if d.opts.StallTimeout <= 0 {
		return models.TaskHandle{}, false
	}
	now := d.clock.Now()
	stalled := false
	h, _ := d.tasks.Update(name, func(h *models.TaskHandle) {
		idle := now.Sub(h.LastProgressAt)
		if h.Finished() || idle < d.opts.StallTimeout {
			return
		}
		stalled = true
		h.State = models.TaskStalled
		h.Error = (&StalledTaskError{Index: name, TaskID: taskID, Idle: idle.Round(time.Second)}).Error()
		h.FinishedAt = &now
	})
	return h, stalled
}

// finish moves a handle into a terminal state if it is not in one yet.
func (d *Dispatcher) finish(name string, state models.TaskState, reason string) (models.TaskHandle, bool) {
	now := d.clock.Now()
	return d.tasks.Update(name, func(h *models.TaskHandle) {
		if h.Finished() {
			return
		}
		h.State = state
		h.Error = reason
		h.FinishedAt = &now
	})
}
