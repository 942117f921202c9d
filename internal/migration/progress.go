package migration

import (
	"context"
	"time"

	"github.com/juju/clock"

	"github.com/rflorenc/esmigrate/internal/models"
)

// ProgressFunc receives one aggregated progress report.
type ProgressFunc func(models.Progress)

// Aggregator periodically folds the task table into a single progress value.
// It only reads the table.
type Aggregator struct {
	tasks    *models.TaskTable
	expected int
	total    int64
	interval time.Duration
	clock    clock.Clock
}

// NewAggregator creates an Aggregator expecting one task per planned copy.
func NewAggregator(tasks *models.TaskTable, plan *models.MigrationPlan, interval time.Duration, clk clock.Clock) *Aggregator {
	if clk == nil {
		clk = clock.WallClock
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Aggregator{
		tasks:    tasks,
		expected: len(plan.ToCopy),
		total:    plan.TotalDocuments(),
		interval: interval,
		clock:    clk,
	}
}

// Snapshot computes the current progress. A finished copy counts its full
// document total; a running one counts what it reported, capped at its total.
func (a *Aggregator) Snapshot() models.Progress {
	handles := a.tasks.Snapshot()
	p := models.Progress{
		Total:    a.total,
		Expected: a.expected,
		Tasks:    handles,
	}
	for _, h := range handles {
		switch {
		case h.State == models.TaskDone:
			p.Documents += h.TotalDocuments
		case h.ProgressDocuments > h.TotalDocuments:
			p.Documents += h.TotalDocuments
		default:
			p.Documents += h.ProgressDocuments
		}
	}
	if p.Total > 0 {
		p.Ratio = float64(p.Documents) / float64(p.Total)
	} else if a.expected == 0 {
		p.Ratio = 1
	}
	p.Done = len(handles) == a.expected && p.Finished() == a.expected
	return p
}

// Run reports progress to fn every interval until all expected copies are
// finished, then returns the final report. It returns early with ctx's error
// if ctx is done first.
func (a *Aggregator) Run(ctx context.Context, fn ProgressFunc) (models.Progress, error) {
	for {
		p := a.Snapshot()
		if fn != nil {
			fn(p)
		}
		if p.Done {
			return p, nil
		}
		select {
		case <-ctx.Done():
			return a.Snapshot(), ctx.Err()
		case <-a.clock.After(a.interval):
		}
	}
}
