package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	forkjoin "github.com/Swind/go-forkjoin"
	"github.com/Swind/go-forkjoin/core"
	fjprom "github.com/Swind/go-forkjoin/observability/prometheus"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// workload runs on pool and returns the line printed as its result.
type workload func(ctx context.Context, pool *forkjoin.Pool) (string, error)

// metricsSet is the registry a pool reports into while a workload runs.
type metricsSet struct {
	registry *prom.Registry
	exporter *fjprom.MetricsExporter
	poller   *fjprom.SnapshotPoller
}

func newMetricsSet(namespace string, interval time.Duration) (*metricsSet, error) {
	reg := prom.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, errors.Wrap(err, "registering go collector")
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, errors.Wrap(err, "registering process collector")
	}

	exporter, err := fjprom.NewMetricsExporter(namespace, reg, fjprom.ExporterOptions{})
	if err != nil {
		return nil, err
	}
	poller, err := fjprom.NewSnapshotPoller(reg, interval)
	if err != nil {
		return nil, err
	}
	return &metricsSet{registry: reg, exporter: exporter, poller: poller}, nil
}

func (m *metricsSet) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// run starts a pool from the loaded config, executes w on it and prints a
// summary. With metrics enabled the endpoint is served for the duration of
// the workload plus the linger period.
func (a *app) run(cmd *cobra.Command, w workload) error {
	cfg := a.cfg
	logger := cfg.Logging.NewLogger(cmd.ErrOrStderr())

	var (
		metrics core.Metrics
		ms      *metricsSet
		ln      net.Listener
	)
	if cfg.Metrics.Enabled {
		var err error
		if ms, err = newMetricsSet(cfg.Metrics.Namespace, cfg.Metrics.PollInterval); err != nil {
			return err
		}
		metrics = ms.exporter

		if ln, err = net.Listen("tcp", cfg.Metrics.Addr); err != nil {
			return errors.Wrapf(err, "listening on %s", cfg.Metrics.Addr)
		}
	}

	pool := forkjoin.NewPoolWithConfig(cfg.Pool.ToPoolConfig(logger, metrics))
	defer pool.Destroy()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	g, gctx := errgroup.WithContext(ctx)
	workCtx, stop := context.WithCancel(gctx)
	defer stop()

	if ms != nil {
		ms.poller.AddPool(pool.ID(), pool)
		ms.poller.Start(gctx)
		defer ms.poller.Stop()

		srv := &http.Server{Handler: ms.handler(), ReadHeaderTimeout: 5 * time.Second}
		logger.Info("serving metrics", core.F("addr", ln.Addr().String()))

		g.Go(func() error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			<-workCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var (
		result  string
		elapsed time.Duration
	)
	g.Go(func() error {
		defer stop()

		start := time.Now()
		var err error
		result, err = w(workCtx, pool)
		elapsed = time.Since(start)
		if err != nil {
			return err
		}

		if ms != nil && a.linger > 0 {
			logger.Info("lingering", core.F("duration", a.linger))
			select {
			case <-time.After(a.linger):
			case <-gctx.Done():
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), result, elapsed, pool.Stats())
	return nil
}

func printSummary(out io.Writer, result string, elapsed time.Duration, stats core.PoolStats) {
	title := color.New(color.FgCyan, color.Bold)
	label := color.New(color.Faint)

	title.Fprintln(out, result)
	label.Fprint(out, "elapsed:   ")
	fmt.Fprintln(out, elapsed.Round(time.Microsecond))
	label.Fprint(out, "workers:   ")
	fmt.Fprintln(out, stats.Workers)
	label.Fprint(out, "tasks:     ")
	fmt.Fprintf(out, "%d submitted, %d completed, %d stolen\n", stats.Submitted, stats.Completed, stats.Stolen)

	if stats.Panicked > 0 {
		color.New(color.FgRed).Fprintf(out, "panicked:  %d\n", stats.Panicked)
	}

	for _, w := range stats.WorkerStats {
		fmt.Fprintf(out, "  worker %-3d executed %-8d stolen %d\n", w.ID, w.Executed, w.Stolen)
	}
}
