package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/loggo"
	"github.com/spf13/cobra"

	"github.com/rflorenc/esmigrate/internal/cluster"
	"github.com/rflorenc/esmigrate/internal/config"
)

var logger = loggo.GetLogger("esmigrate.cli")

// options are the flags shared by the migrate and serve commands.
type options struct {
	configFile   string
	verbose      bool
	overwrite    bool
	removeExtra  bool
	yes          bool
	dryRun       bool
	concurrency  int
	pollInterval time.Duration
	stallTimeout time.Duration
	timeout      time.Duration
	lockDir      string
}

// NewRootCommand builds the esmigrate command tree.
func NewRootCommand() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "esmigrate [flags] <source> <destination> [regex of indexes to copy]",
		Short: "Copy Elasticsearch indexes from one cluster to another",
		Long: `esmigrate compares the indexes of a source and a destination cluster,
shows the actions needed to bring the destination in line and, once
confirmed, copies the indexes with the destination's remote reindex.

Clusters are given as addresses (host:port, or a URL with credentials)
or as names from the config file.`,
		Example: `  esmigrate 10.0.10.40:9200 10.0.11.40:9200
  esmigrate 10.0.10.40:9200 10.0.11.40:9200 'daily\..*'
  esmigrate -O -R -y prod staging '^logs-'`,
		Args:         cobra.RangeArgs(2, 3),
		SilenceUsage: true, // don't print usage on operational errors
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if o.verbose {
				if err := loggo.ConfigureLoggers("esmigrate=DEBUG"); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMigrate(ctx, cmd, o, args)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.configFile, "config", "", "path to config file (default ~/.config/esmigrate/config.yaml)")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug messages")
	pf.IntVarP(&o.concurrency, "concurrency", "c", 0, "maximum number of indexes copied at once (default 10)")
	pf.DurationVar(&o.pollInterval, "poll-interval", 0, "delay between task status checks (default 1s)")
	pf.DurationVar(&o.stallTimeout, "stall-timeout", 0, "fail a copy that makes no progress for this long, 0 disables (default 10m)")
	pf.DurationVar(&o.timeout, "timeout", 0, "timeout of each request to a cluster (default 50s)")
	pf.StringVar(&o.lockDir, "lock-dir", "", "directory for run lock files")

	f := root.Flags()
	f.BoolVarP(&o.overwrite, "overwrite", "O", false, "erase all documents in an index before copying")
	f.BoolVarP(&o.removeExtra, "remove", "R", false, "remove indexes not on source")
	f.BoolVarP(&o.yes, "yes", "y", false, "confirm")
	f.BoolVar(&o.dryRun, "dry-run", false, "show the plan and exit")

	root.AddCommand(newServeCommand(o), newVersionCommand())
	return root
}

// Execute is called by main.go.
func Execute() {
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and overlays the flags that were set.
func loadConfig(cmd *cobra.Command, o *options) (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		cfg.Concurrency = o.concurrency
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval = o.pollInterval
	}
	if flags.Changed("stall-timeout") {
		cfg.StallTimeout = o.stallTimeout
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeout = o.timeout
	}
	if flags.Changed("lock-dir") {
		cfg.LockDir = o.lockDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Debugf("config: concurrency=%d poll=%s stall=%s timeout=%s",
		cfg.Concurrency, cfg.PollInterval, cfg.StallTimeout, cfg.RequestTimeout)
	return cfg, nil
}

// openCluster resolves ref through the config and binds a client to it.
func openCluster(cfg *config.Config, ref string) (*cluster.Elasticsearch, error) {
	c, err := cfg.ResolveCluster(ref)
	if err != nil {
		return nil, err
	}
	return cluster.NewElasticsearch(c, cfg.RequestTimeout), nil
}
