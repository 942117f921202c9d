package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rflorenc/esmigrate/internal/cluster"
	"github.com/rflorenc/esmigrate/internal/migration"
	"github.com/rflorenc/esmigrate/internal/models"
)

func runMigrate(ctx context.Context, cmd *cobra.Command, o *options, args []string) error {
	cfg, err := loadConfig(cmd, o)
	if err != nil {
		return err
	}
	src, err := openCluster(cfg, args[0])
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	dst, err := openCluster(cfg, args[1])
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	expr := ""
	if len(args) == 3 {
		expr = args[2]
	}
	pattern, err := migration.CompilePattern(expr)
	if err != nil {
		return err
	}
	policy := models.Policy{
		Overwrite:   o.overwrite,
		RemoveExtra: o.removeExtra,
		NamePattern: pattern,
		AutoConfirm: o.yes,
	}
	return migrate(ctx, cmd, src, dst, cfg.MigrationOptions(), policy, o.dryRun)
}

// migrate runs the preview, confirmation and execution steps against two
// clusters.
func migrate(ctx context.Context, cmd *cobra.Command, src, dst cluster.Cluster, opts migration.Options, policy models.Policy, dryRun bool) error {
	out := cmd.OutOrStdout()
	con := newConsole(out)

	fmt.Fprintf(out, "Starting migration of indexes matching %s from %s to %s\n",
		policy.NamePattern, src.Info().Redacted(), dst.Info().Redacted())

	m := migration.New(src, dst, opts, con.Log)
	plan, err := m.Preview(ctx, policy)
	if err != nil {
		var busy *migration.TasksInProgressError
		if errors.As(err, &busy) {
			return fmt.Errorf("%w; wait for them to finish or cancel them first", err)
		}
		return err
	}

	if !printPlan(out, plan, policy.AutoConfirm) || dryRun {
		return nil
	}

	if !policy.AutoConfirm {
		ok, err := confirm(cmd.InOrStdin(), out)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, migration.ErrNotConfirmed)
			return nil
		}
	}

	fmt.Fprintln(out, okStyle.Render("Starting"))
	report, err := m.Run(ctx, plan, con.Progress)
	con.Done()
	if report != nil {
		printReport(out, report)
	}
	if err != nil {
		return err
	}
	if n := len(report.Failed()); n > 0 {
		return fmt.Errorf("%d action(s) failed", n)
	}
	return nil
}
