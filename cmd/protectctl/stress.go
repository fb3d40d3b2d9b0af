package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	protectbridge "github.com/wippyai/protect-bridge"
	"github.com/wippyai/protect-bridge/bridge"
	"github.com/wippyai/protect-bridge/engine"
	"github.com/wippyai/protect-bridge/guest"
	"github.com/wippyai/protect-bridge/registry"
)

type stressOptions struct {
	policy      string
	module      string
	metricsAddr string
	workers     int
	calls       int
	churn       bool
	interactive bool
}

// stressReport is a snapshot of a running stress test.
type stressReport struct {
	outcomes [bridge.OutcomeCallbackFault + 1]int64
	swaps    int64
	total    int64
	elapsed  time.Duration
}

func (r stressReport) completed() int64 {
	var n int64
	for _, c := range r.outcomes {
		n += c
	}
	return n
}

type stressCounters struct {
	outcomes [bridge.OutcomeCallbackFault + 1]atomic.Int64
	swaps    atomic.Int64
	start    time.Time
	total    int64
}

func (c *stressCounters) snapshot() stressReport {
	r := stressReport{
		swaps:   c.swaps.Load(),
		total:   c.total,
		elapsed: time.Since(c.start),
	}
	for i := range c.outcomes {
		r.outcomes[i] = c.outcomes[i].Load()
	}
	return r
}

func (a *app) stressCmd() *cobra.Command {
	var opts stressOptions

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Call protect from many goroutines while the protector is swapped",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.workers < 1 || opts.calls < 1 {
				return fmt.Errorf("--workers and --calls must be positive")
			}
			if opts.metricsAddr == "" {
				opts.metricsAddr = a.cfg.Metrics.Addr
			}
			if opts.interactive && term.IsTerminal(int(os.Stdout.Fd())) {
				return a.runDashboard(cmd.Context(), opts)
			}
			report, err := a.runStress(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.policy, "policy", "allow", "built-in policy: "+policyHelp)
	f.StringVar(&opts.module, "module", "", "load the protector from a wasm file instead")
	f.IntVar(&opts.workers, "workers", 8, "concurrent callers")
	f.IntVar(&opts.calls, "calls", 1000, "protect calls per caller")
	f.BoolVar(&opts.churn, "churn", true, "swap and reset the protector while callers run")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "show a live dashboard")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

// runStress runs the scenario. progress, if set, receives the counters once
// the callers have started.
func (a *app) runStress(ctx context.Context, opts stressOptions, progress func(*stressCounters)) (stressReport, error) {
	wasm, err := guestBytes(opts.policy, opts.module)
	if err != nil {
		return stressReport{}, err
	}

	var metrics *bridge.Metrics
	if opts.metricsAddr != "" {
		promReg := prometheus.NewRegistry()
		metrics = bridge.NewMetrics(promReg)
		stop, err := serveMetrics(opts.metricsAddr, promReg, a.logger)
		if err != nil {
			return stressReport{}, err
		}
		defer stop()
	}

	vm, err := engine.NewVM(ctx, a.cfg.EngineConfig())
	if err != nil {
		return stressReport{}, err
	}
	defer vm.Close(ctx)

	reg := registry.New(registry.WithLogger(a.logger))
	reg.OnLoad(vm)
	defer reg.OnUnload()
	b := bridge.New(reg, a.bridgeOptions(metrics)...)

	primary, err := vm.LoadProtector(ctx, wasm)
	if err != nil {
		return stressReport{}, err
	}
	defer primary.Close(ctx)
	alternate, err := vm.LoadProtector(ctx, guest.Deny().Encode())
	if err != nil {
		return stressReport{}, err
	}
	defer alternate.Close(ctx)

	if err := b.SetProtector(ctx, primary); err != nil {
		return stressReport{}, err
	}

	counters := &stressCounters{start: time.Now(), total: int64(opts.workers * opts.calls)}
	if progress != nil {
		progress(counters)
	}

	stopChurn := make(chan struct{})
	var churn errgroup.Group
	if opts.churn {
		// The churn goroutine plays the runtime's own thread and stays attached.
		env, err := vm.Attach(ctx)
		if err != nil {
			return stressReport{}, err
		}
		defer vm.Detach(env)
		owner := protectbridge.WithEnv(ctx, env)

		churn.Go(func() error {
			targets := []*engine.Protector{alternate, primary}
			for i := 0; ; i++ {
				select {
				case <-stopChurn:
					return nil
				default:
				}
				if i%3 == 2 {
					b.Reset()
				} else if err := b.SetProtector(owner, targets[i%3]); err != nil {
					return err
				}
				counters.swaps.Add(1)
			}
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.workers; w++ {
		g.Go(func() error {
			for i := 0; i < opts.calls; i++ {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				out := b.Decide(gctx, int32(w*opts.calls+i))
				counters.outcomes[out].Add(1)
			}
			return nil
		})
	}

	werr := g.Wait()
	close(stopChurn)
	cerr := churn.Wait()

	report := counters.snapshot()
	a.logger.Info("stress finished",
		zap.Int64("calls", report.completed()),
		zap.Int64("swaps", report.swaps),
		zap.Duration("elapsed", report.elapsed))
	return report, errors.Join(werr, cerr)
}

func serveMetrics(addr string, gatherer prometheus.Gatherer, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}

func printReport(w io.Writer, r stressReport) {
	fmt.Fprintf(w, "calls: %d in %s\n", r.completed(), r.elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "swaps: %d\n", r.swaps)
	for _, o := range bridge.Outcomes {
		if n := r.outcomes[o]; n > 0 {
			fmt.Fprintf(w, "  %-20s %d\n", o.String()+":", n)
		}
	}
}
