package migration

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rflorenc/esmigrate/internal/cluster"
)

// CheckIdle fails with a TasksInProgressError if c is already running
// reindex tasks. Failing to list tasks is fatal as well.
func CheckIdle(ctx context.Context, c cluster.Cluster) error {
	name := c.Info().Redacted()
	tasks, err := c.ListRunningTasks(ctx)
	if err != nil {
		return fmt.Errorf("listing running tasks on %s: %w", name, err)
	}
	if len(tasks) > 0 {
		return &TasksInProgressError{Cluster: name, Tasks: tasks}
	}
	return nil
}

// CheckClustersIdle runs CheckIdle against every cluster concurrently and
// returns the first failure.
func CheckClustersIdle(ctx context.Context, clusters ...cluster.Cluster) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range clusters {
		c := c
		g.Go(func() error {
			return CheckIdle(gctx, c)
		})
	}
	return g.Wait()
}
