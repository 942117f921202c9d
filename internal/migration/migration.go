package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rflorenc/esmigrate/internal/cluster"
	"github.com/rflorenc/esmigrate/internal/models"
)

// ErrNotConfirmed is returned when the operator declines the plan.
var ErrNotConfirmed = errors.New("action canceled")

// versionChecker is implemented by clusters that can report whether they
// support reindexing from a remote cluster.
type versionChecker interface {
	SupportsRemoteReindex(ctx context.Context) (bool, string, error)
}

// Migrator moves indexes from one cluster to another.
type Migrator struct {
	src  cluster.Cluster
	dst  cluster.Cluster
	opts Options
	log  func(string)
}

// New creates a Migrator. log receives the user-facing progress lines.
func New(src, dst cluster.Cluster, opts Options, log func(string)) *Migrator {
	if log == nil {
		log = func(string) {}
	}
	return &Migrator{src: src, dst: dst, opts: opts.withDefaults(), log: log}
}

// Preview checks that both clusters are idle, lists their indexes and
// computes the plan. Nothing is modified.
func (m *Migrator) Preview(ctx context.Context, policy models.Policy) (*models.MigrationPlan, error) {
	srcName := m.src.Info().Redacted()
	dstName := m.dst.Info().Redacted()

	m.log("Checking for running reindex tasks...")
	if err := CheckClustersIdle(ctx, m.src, m.dst); err != nil {
		return nil, err
	}

	var warnings []string
	if vc, ok := m.dst.(versionChecker); ok {
		supported, version, err := vc.SupportsRemoteReindex(ctx)
		switch {
		case err != nil:
			logger.Debugf("version check on %s: %v", dstName, err)
		case !supported:
			w := fmt.Sprintf("WARNING: %s runs version %s; remote reindex needs %s or later.", dstName, version, cluster.MinRemoteReindexVersion)
			m.log(w)
			warnings = append(warnings, w)
		}
	}

	var srcInv, dstInv Inventory
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		srcInv, err = ListIndexes(gctx, m.src, m.log)
		return err
	})
	g.Go(func() (err error) {
		dstInv, err = ListIndexes(gctx, m.dst, m.log)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, inv := range []Inventory{srcInv, dstInv} {
		if inv.Warning != nil {
			warnings = append(warnings, fmt.Sprintf("could not list indexes on %s: %v", inv.Cluster, inv.Warning))
		}
	}
	// An unknown source inventory would make every destination index extra.
	if srcInv.Warning != nil && policy.RemoveExtra {
		policy.RemoveExtra = false
		w := fmt.Sprintf("WARNING: not removing indexes from %s: the source inventory is incomplete.", dstName)
		m.log(w)
		warnings = append(warnings, w)
	}

	plan := ComputePlan(srcInv.Indexes, dstInv.Indexes, policy)
	plan.Source = srcName
	plan.Destination = dstName

	if len(plan.SkippedFor(models.SkipUnhealthy)) > 0 {
		w := "WARNING: Some indexes are not green."
		m.log(w)
		warnings = append(warnings, w)
	}
	plan.Warnings = append(warnings, plan.Warnings...)

	m.log(fmt.Sprintf("Plan: %d to remove, %d to truncate, %d to copy (%d documents), %d skipped",
		len(plan.ToRemove), len(plan.ToTruncate), len(plan.ToCopy), plan.TotalDocuments(), len(plan.Skipped)))
	return plan, nil
}

// Run executes a confirmed plan: removals, then truncations, then the copies,
// with progress reported to onProgress while the copies run. Per-index
// failures end up in the report; the returned error is reserved for
// conditions that stop the run as a whole.
func (m *Migrator) Run(ctx context.Context, plan *models.MigrationPlan, onProgress ProgressFunc) (*models.RunReport, error) {
	report := &models.RunReport{Plan: plan, StartedAt: m.opts.Clock.Now()}
	if plan.Empty() {
		m.log("Nothing to do")
		report.Progress = models.Progress{Ratio: 1, Done: true}
		report.FinishedAt = m.opts.Clock.Now()
		return report, nil
	}

	lock, err := acquireRunLock(m.opts.LockDir, m.dst.Info().BaseURL())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warningf("releasing run lock: %v", err)
		}
	}()

	d := NewDispatcher(m.src.Info(), m.dst, m.opts, m.log)
	report.Results = d.RunMaintenance(ctx, plan)

	skip := make(map[string]string)
	for _, res := range report.Results {
		if res.Action == models.ActionTruncate && res.Outcome == models.OutcomeFailed {
			skip[res.Index] = "truncate failed: " + res.Error
		}
	}

	if len(plan.ToCopy) > 0 {
		m.log(fmt.Sprintf("Copying %d index(es), %d at a time", len(plan.ToCopy), m.opts.Concurrency))
	}
	agg := NewAggregator(d.Tasks(), plan, m.opts.PollInterval, m.opts.Clock)

	var copies []models.ActionResult
	var g errgroup.Group
	g.Go(func() error {
		copies = d.RunCopies(ctx, plan, skip)
		return nil
	})
	g.Go(func() (err error) {
		report.Progress, err = agg.Run(ctx, onProgress)
		return err
	})
	runErr := g.Wait()

	report.Results = append(report.Results, copies...)
	report.FinishedAt = m.opts.Clock.Now()
	if runErr != nil {
		report.Progress = agg.Snapshot()
		return report, fmt.Errorf("migration interrupted: %w", runErr)
	}

	counts := make(map[models.Outcome]int)
	for _, res := range report.Results {
		counts[res.Outcome]++
	}
	m.log(fmt.Sprintf("Complete: %d ok, %d skipped, %d failed in %s",
		counts[models.OutcomeOK], counts[models.OutcomeSkipped], counts[models.OutcomeFailed],
		report.Elapsed().Round(time.Millisecond)))
	return report, nil
}
