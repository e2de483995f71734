package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vvka-141/mboxdb/internal/metrics"
)

var (
	pingFlags  connectionFlags
	probeFlags struct {
		connectionFlags
		interval       time.Duration
		count          int
		metricsAddress string
	}

	// probeClock drives the probe interval.
	probeClock quartz.Clock = quartz.NewReal()
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Connect and ping a database through the retry executor",
	Long: `Resolve the connection from flags, environment and mboxdb.yaml, open it
with the connector for the configured auth method and ping it. Transient
failures are retried; the number of retries is reported.

Examples:
  mboxdb ping --url "mysql://zimbra@localhost:3306/mboxgroup1"
  mboxdb ping --backend sqlite --path /opt/zimbra/data/mbox.db
  MBOXDB_PASSWORD=secret mboxdb ping --backend postgres --host db -U mbox -d mbox`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Ping a database periodically and serve Prometheus metrics",
	Long: `Connect once, then ping at every interval until interrupted (or --count
pings). Retries, attempts per ping and outcomes are exported on /metrics.

Examples:
  mboxdb probe --url "postgres://mbox@db/mbox" --interval 10s
  mboxdb probe --backend sqlite --path ./mbox.db --metrics-address :9102`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	addConnectionFlags(pingCmd, &pingFlags)

	addConnectionFlags(probeCmd, &probeFlags.connectionFlags)
	probeCmd.Flags().DurationVar(&probeFlags.interval, "interval", 15*time.Second, "Time between pings")
	probeCmd.Flags().IntVar(&probeFlags.count, "count", 0, "Stop after this many pings (0 runs until interrupted)")
	probeCmd.Flags().StringVar(&probeFlags.metricsAddress, "metrics-address", "", "Listen address for /metrics (default from mboxdb.yaml or :9102)")

	rootCmd.AddCommand(pingCmd, probeCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), pingFlags.timeout)
	defer cancel()

	start := time.Now()
	s, err := openSession(ctx, cmd, &pingFlags)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.store.Ping(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "OK %s (%v, %d retries)\n",
		describeTarget(s.config), time.Since(start).Round(time.Millisecond), s.counter.Load())
	return nil
}

func runProbe(cmd *cobra.Command, args []string) error {
	if probeFlags.interval <= 0 {
		return fmt.Errorf("invalid argument %v for \"--interval\": must be positive", probeFlags.interval)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, probeFlags.timeout)
	s, err := openSession(connectCtx, cmd, &probeFlags.connectionFlags)
	cancel()
	if err != nil {
		return err
	}
	defer s.Close()

	address := probeFlags.metricsAddress
	if address == "" && s.project != nil {
		address = s.project.Metrics.MetricsAddress()
	}
	m := metrics.New(address)

	backend := string(s.config.Backend)
	executor, err := m.Instrument(backend, s.store.Executor())
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	loopCtx, finish := context.WithCancel(ctx)
	defer finish()

	g.Go(func() error {
		return m.Serve(loopCtx)
	})
	g.Go(func() error {
		defer finish()
		return probeLoop(loopCtx, cmd, s, func(ctx context.Context) error {
			return executor.Execute(ctx, s.store.DB().PingContext)
		})
	})

	s.logger.Info("Probing %s every %v, metrics on %s/metrics", describeTarget(s.config), probeFlags.interval, m.Server.Addr)
	return g.Wait()
}

// probeLoop pings once immediately and then on every tick. Ping failures are
// reported and counted, not returned: the probe keeps running.
func probeLoop(ctx context.Context, cmd *cobra.Command, s *session, ping func(context.Context) error) error {
	ticker := probeClock.NewTicker(probeFlags.interval, "probe")
	defer ticker.Stop()

	out := cmd.OutOrStdout()
	for n := 1; ; n++ {
		start := probeClock.Now()
		if err := ping(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("ping %d failed: %v", n, err)
		} else {
			fmt.Fprintf(out, "ping %d ok in %v (retries so far: %d)\n",
				n, probeClock.Now().Sub(start).Round(time.Millisecond), s.counter.Load())
		}

		if probeFlags.count > 0 && n >= probeFlags.count {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
