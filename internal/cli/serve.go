package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rflorenc/esmigrate/internal/api"
	"github.com/rflorenc/esmigrate/internal/config"
)

func newServeCommand(o *options) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the preview/run workflow over HTTP",
		Long: `Serve exposes cluster management, migration previews and runs over an
HTTP API, with job logs and progress streamed over websockets. Clusters
from the config file are registered and checked at startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, o)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server, err := newAPIServer(ctx, cmd.OutOrStdout(), cfg)
			if err != nil {
				return err
			}
			return serve(ctx, cmd.OutOrStdout(), cfg.Listen, api.NewRouter(server))
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (default :8080)")
	return cmd
}

// newAPIServer registers the configured clusters and checks each of them.
func newAPIServer(ctx context.Context, out io.Writer, cfg *config.Config) (*api.Server, error) {
	server := api.NewServer(cfg.MigrationOptions(), cfg.RequestTimeout)
	for _, cc := range cfg.Clusters {
		c, err := cc.Cluster()
		if err != nil {
			return nil, err
		}
		server.Clusters.Create(c)
		fmt.Fprintf(out, "Loaded cluster: %s (%s)\n", c.Name, c.Redacted())

		version, err := server.Ping(ctx, c)
		if err != nil {
			fmt.Fprintf(out, "  PING FAILED: %s: %v\n", c.Name, err)
			continue
		}
		fmt.Fprintf(out, "  PING OK: %s: version %s\n", c.Name, emptyAsNA(version))
	}
	return server, nil
}

// serve runs the HTTP server until ctx is done.
func serve(ctx context.Context, out io.Writer, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	fmt.Fprintf(out, "esmigrate %s listening on %s\n", Version, addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
