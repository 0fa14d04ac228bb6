/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command tachyond is Tachyon's process entry point: flag parsing with
// env-var fallback defaults, a single options-validate-then-inject
// step, a logging context constructed once, then collaborators (store,
// metrics, HTTP adaptor) wired and handed to the server — the same
// shape as the teacher's cmd/controller/main.go (flag.*Var bound to
// env.WithDefaultString/Int-style defaults, a context cancelled on
// signal driving symmetric shutdown).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tachyon-sched/tachyon/internal/config"
	"github.com/tachyon-sched/tachyon/internal/logging"
	"github.com/tachyon-sched/tachyon/internal/metrics"
	"github.com/tachyon-sched/tachyon/internal/simulation"
	"github.com/tachyon-sched/tachyon/internal/store"
	"github.com/tachyon-sched/tachyon/internal/store/memgraph"

	"github.com/tachyon-sched/tachyon/internal/httpapi"
)

// options are this binary's CLI surface; listen-addr and config fall
// back to an environment variable and then a coded default, the
// teacher's own cmd/controller/main.go pattern, while sweep has only a
// coded default.
type options struct {
	ListenAddr   string
	ConfigPath   string
	SweepEnabled bool
}

func (o *options) bind() {
	flag.StringVar(&o.ListenAddr, "listen-addr", envOrDefaultString("TACHYOND_LISTEN_ADDR", ":8080"), "HTTP listen address for the REST surface.")
	flag.StringVar(&o.ConfigPath, "config", envOrDefaultString("TACHYOND_CONFIG", ""), "Path to a TOML config file (spec.md §6); missing file runs on defaults.")
	flag.BoolVar(&o.SweepEnabled, "sweep", true, "Run the simulation session sweeper on simulation.sweep_interval.")
}

func (o *options) validate() error {
	if o.ListenAddr == "" {
		return errors.New("listen-addr must not be empty")
	}
	return nil
}

func envOrDefaultString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func main() {
	opts := &options{}
	opts.bind()
	flag.Parse()

	if err := opts.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid options: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, logger)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err), zap.String("path", opts.ConfigPath))
	}

	st := memgraph.New()
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("error closing store", zap.Error(err))
		}
	}()

	reg := metrics.New()

	srv := &httpapi.Server{Store: st, Config: cfg, Metrics: reg}
	router := srv.NewRouter()
	router.Handle("/metrics", metrics.Handler(reg))

	httpServer := &http.Server{Addr: opts.ListenAddr, Handler: router}

	if opts.SweepEnabled {
		go runSweeper(ctx, st, cfg.SweepInterval(), reg)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tachyond listening", zap.String("addr", opts.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error during shutdown", zap.Error(err))
	}
}

// runSweeper periodically expires stale simulation sessions (spec.md
// §4.8's periodic task), stopping when ctx is cancelled — the same
// drain-on-shutdown the teacher's controller-runtime manager performs
// for its own background reconcilers.
func runSweeper(ctx context.Context, st store.Store, interval time.Duration, reg *metrics.Metrics) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger := logging.FromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweepOnce(ctx, st, reg); err != nil {
				logger.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}

func sweepOnce(ctx context.Context, st store.Store, reg *metrics.Metrics) error {
	tx, err := st.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	expired, err := simulation.Sweep(ctx, tx, time.Now())
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	if reg != nil && len(expired) > 0 {
		reg.SessionsSwept.Add(float64(len(expired)))
	}
	return nil
}
