package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/laminarci/laminar/internal/adminhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the laminar engine and its admin HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(cmd); err != nil {
				return err
			}
			return runServe()
		},
	}

	cmd.Flags().String("listen", ":8080", "admin HTTP listen address (healthz, metrics, job control)")
	cmd.Flags().Duration("grace-period", 30*time.Second, "how long to wait for active runs to finish on shutdown")
	cmd.Flags().Duration("poll-interval", 100*time.Millisecond, "how often shutdown checks whether active runs have drained")
	_ = viper.BindPFlag("listen", cmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("grace-period", cmd.Flags().Lookup("grace-period"))
	_ = viper.BindPFlag("poll-interval", cmd.Flags().Lookup("poll-interval"))

	return cmd
}

type serveProcess struct {
	cancel context.CancelFunc
}

// Signal implements signalListener: any signal, including ctx
// cancellation, triggers a graceful shutdown of the engine.
func (p *serveProcess) Signal(ctx context.Context, sig os.Signal) {
	p.cancel()
}

func runServe() error {
	s := newSetup()
	log := s.logger()

	st, err := s.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	e, err := s.engine(st, log)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	listenSignals(ctx, &serveProcess{cancel: cancel})

	router := adminhttp.NewRouter(e.Scheduler().Registry(), e.MetricsRegistry(), e.Scheduler())
	httpServer := &http.Server{Addr: s.listen, Handler: router}

	httpErr := make(chan error, 1)
	go func() {
		log.Infof("admin HTTP listening on %s", s.listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
			return
		}
		httpErr <- nil
	}()

	engineErr := make(chan error, 1)
	go func() { engineErr <- e.Run(ctx) }()

	select {
	case err := <-httpErr:
		cancel()
		if err != nil {
			log.Errorf("admin HTTP server failed: %v", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("admin HTTP shutdown: %v", err)
	}

	return <-engineErr
}
