package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/triagewatch/internal/alert"
	"github.com/ppiankov/triagewatch/internal/audit"
	"github.com/ppiankov/triagewatch/internal/engine"
	"github.com/ppiankov/triagewatch/internal/ingest"
	"github.com/ppiankov/triagewatch/internal/model"
	"github.com/ppiankov/triagewatch/internal/sop"
)

var (
	runProcedures  string
	runDB          string
	runWatch       bool
	runMetricsAddr string
	runCategory    string
	runAuditLog    string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runProcedures, "procedures", "", "Procedure library YAML")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Reload --procedures when the file changes")
	runCmd.Flags().StringVar(&runDB, "db", "", "SQLite database holding procedures")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	runCmd.Flags().StringVar(&runCategory, "category", "", "Restrict procedures to a category")
	runCmd.Flags().StringVar(&runAuditLog, "audit-log", "", "Append decisions to this hash-chained JSONL log")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Triage a JSONL event stream from stdin",
	Long: "Reads one JSON event per line on stdin and writes one merged decision\n" +
		"per line on stdout. Matching decisions are sent to the configured alert\n" +
		"webhooks. With --watch, edits to the procedure file take effect without\n" +
		"a restart and flush the decision cache.",
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	if runWatch && runProcedures == "" {
		return fmt.Errorf("--watch requires --procedures")
	}

	procs, err := openProcedures(runProcedures, runDB)
	if err != nil {
		return err
	}
	defer procs.Close()

	reg := prometheus.NewRegistry()
	eng := newEngine(engineOptions{
		procedures: procs,
		category:   runCategory,
		cache:      true,
		registry:   reg,
	})

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runWatch {
		w, err := sop.NewWatcher(procs.library, runProcedures, logger)
		if err != nil {
			logger.Warn("hot-reload disabled", zap.Error(err))
		} else {
			w.OnReload = func(_ sop.LoadReport, err error) {
				if err == nil {
					eng.PurgeCache()
				}
			}
			go func() { _ = w.Run(ctx) }()
		}
	}

	if runMetricsAddr != "" {
		srv := metricsServer(runMetricsAddr, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics endpoint listening", zap.String("addr", runMetricsAddr))
	}

	var decisions *audit.Log
	if runAuditLog != "" {
		decisions, err = audit.Open(runAuditLog)
		if err != nil {
			return err
		}
		defer decisions.Close()
	}

	dispatcher := alert.NewDispatcher(cfg.Alerts, logger)
	logger.Info("triagewatch run started",
		zap.String("config_hash", configHash),
		zap.Bool("procedures", procs.repo != nil),
		zap.Int("alerts", len(cfg.Alerts)),
	)

	err = stream(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), eng, sinks{alerts: dispatcher, log: decisions})
	if dispatcher != nil {
		dispatcher.Wait()
	}
	return err
}

func metricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"triagewatch"}`))
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// sinks receive every decision after it is written. Both are optional.
type sinks struct {
	alerts *alert.Dispatcher
	log    *audit.Log
}

// stream triages each JSONL line from in and writes decisions to out.
// Invalid lines are logged and skipped. Returns at EOF or cancellation.
func stream(ctx context.Context, in io.Reader, out io.Writer, eng *engine.Engine, to sinks) error {
	enc := json.NewEncoder(out)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		ev, err := ingest.DecodeLine(b)
		if err != nil {
			logger.Warn("skipping invalid event", zap.Int("line", line), zap.Error(err))
			continue
		}

		d := eng.Triage(ctx, ev)
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("write decision: %w", err)
		}
		if to.log != nil {
			if err := to.log.RecordDecision(d, eventID(ev), configHash); err != nil {
				return err
			}
		}
		if to.alerts != nil {
			to.alerts.Dispatch(alert.NewEvent(d, eventID(ev), configHash, time.Now()))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	return nil
}

func eventID(ev model.Event) string {
	switch e := ev.(type) {
	case model.CVEvent:
		return e.ID
	case model.AccessEvent:
		return e.ID
	}
	return ""
}
