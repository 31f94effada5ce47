package cmd

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wifi-slicing/slicectl/slicing"
	"github.com/wifi-slicing/slicectl/slicing/history"
	"github.com/wifi-slicing/slicectl/slicing/metrics"
	"github.com/wifi-slicing/slicectl/slicing/scenario"
	"github.com/wifi-slicing/slicectl/slicing/trace"
)

var (
	// CLI flags for the control loop
	logLevel     string        // Log verbosity level
	configPath   string        // Optional YAML file with control-loop parameters
	scenarioPath string        // YAML scenario replayed as the network
	cycles       int           // Number of control cycles (0 = one per scenario frame)
	period       time.Duration // Control cycle period
	accelerated  bool          // Run cycles back to back instead of on a ticker
	redisURL     string        // Redis URL for the handover history (empty = in-memory)
	metricsAddr  string        // Listen address for /metrics (empty = disabled)
	traceLevel   string        // Decision trace level
	printSummary bool          // Print the trace summary when done
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "slicectl",
	Short: "Control loop for sliced WiFi networks",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// runCmd replays a scenario through the controller
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run control cycles against a scenario network",
	Run: func(cmd *cobra.Command, args []string) {
		if scenarioPath == "" {
			logrus.Fatalf("--scenario is required")
		}
		cfg, err := loadConfig(configPath, cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Unknown trace level %q; valid: none, actions, decisions", traceLevel)
		}

		sc, err := scenario.Load(scenarioPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		network, err := scenario.NewNetwork(sc)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if sc.Interval != cfg.Period {
			logrus.Warnf("scenario interval %v differs from control period %v", sc.Interval, cfg.Period)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		hist, closeHistory, err := newHistory(ctx, redisURL, cfg.HistoryWindow())
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		defer closeHistory()

		collector, err := metrics.NewCollector(prometheus.NewRegistry())
		if err != nil {
			logrus.Fatalf("registering metrics: %v", err)
		}
		if metricsAddr != "" {
			srv := serveMetrics(metricsAddr, collector.Handler())
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		ctrl, err := slicing.NewController(cfg, slicing.Dependencies{
			Source:     network,
			Registry:   network,
			History:    hist,
			Metrics:    collector,
			TraceLevel: trace.TraceLevel(traceLevel),
			Clock:      network.Now,
		})
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		n := cycles
		if n <= 0 {
			n = network.Frames()
		}
		logrus.Infof("Starting %d control cycles over scenario %q (period=%v, accelerated=%v)",
			n, sc.Name, cfg.Period, accelerated)

		traces := runCycles(ctx, ctrl, network, loopOptions{cycles: n, period: cfg.Period, accelerated: accelerated})

		if printSummary {
			printTraceSummary(os.Stdout, trace.Summarize(traces...), network)
		}
		logrus.Info("Control loop complete.")
	},
}

// newHistory returns the Redis history when url is set, the in-memory one otherwise.
func newHistory(ctx context.Context, url string, retention time.Duration) (slicing.HandoverHistory, func(), error) {
	if url == "" {
		return history.NewMemory(retention), func() {}, nil
	}
	r, err := history.NewRedis(ctx, url, retention)
	if err != nil {
		return nil, nil, err
	}
	return r, func() { _ = r.Close() }, nil
}

func serveMetrics(addr string, handler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("metrics server: %v", err)
		}
	}()
	logrus.Infof("Serving metrics on %s/metrics", addr)
	return srv
}

func printTraceSummary(w io.Writer, s *trace.TraceSummary, network *scenario.Network) {
	fmt.Fprintf(w, "=== Control Loop Summary ===\n")
	fmt.Fprintf(w, "Cycles            : %d (no data: %d)\n", s.Cycles, s.NoDataCycles)
	fmt.Fprintf(w, "Decisions         : %d\n", s.TotalDecisions)
	for _, class := range []string{"idle", "within-promise", "over-promise", "under-promise"} {
		fmt.Fprintf(w, "  %-16s: %d\n", class, s.ByClass[class])
	}
	fmt.Fprintf(w, "Handovers         : %d\n", s.ByAction[trace.ActionHandover])
	fmt.Fprintf(w, "Quantum raises    : %d (increases: %d, decreases: %d)\n",
		s.ByAction[trace.ActionQuantum], s.Increases, s.Decreases)
	fmt.Fprintf(w, "Network too busy  : %d\n", s.ByAction[trace.ActionTooBusy])
	fmt.Fprintf(w, "Degraded stations : %d\n", s.ByAction[trace.ActionDegraded])
	for reason, n := range s.Rejections {
		fmt.Fprintf(w, "Rejected (%s): %d\n", reason, n)
	}
	if network != nil {
		fmt.Fprintf(w, "Registry upserts  : %d\n", network.Upserts())
		for _, h := range network.Handovers() {
			fmt.Fprintf(w, "  frame %d: %s %s -> %s\n", h.Frame, h.Station, h.From, h.To)
		}
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	d := slicing.DefaultConfig()

	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML file with control-loop parameters")

	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "YAML scenario replayed as the network")
	runCmd.Flags().IntVar(&cycles, "cycles", 0, "Number of control cycles (0 = one per scenario frame)")
	runCmd.Flags().DurationVar(&period, "period", d.Period, "Control cycle period")
	runCmd.Flags().BoolVar(&accelerated, "accelerated", false, "Run cycles back to back instead of on a ticker")
	runCmd.Flags().StringVar(&redisURL, "redis-url", "", "Redis URL for the handover history (default in-memory)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address for the Prometheus /metrics endpoint")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", string(trace.TraceLevelDecisions), "Decision trace level (none, actions, decisions)")
	runCmd.Flags().BoolVar(&printSummary, "summary", false, "Print the decision trace summary when done")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
