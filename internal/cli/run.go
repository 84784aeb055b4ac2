package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/promptpilot/promptpilot/internal/autopilot"
	"github.com/promptpilot/promptpilot/internal/daemon"
	"github.com/promptpilot/promptpilot/internal/event"
	"github.com/promptpilot/promptpilot/internal/guard"
	"github.com/promptpilot/promptpilot/internal/metrics"
	"github.com/promptpilot/promptpilot/internal/pin"
	"github.com/promptpilot/promptpilot/internal/policy"
	"github.com/promptpilot/promptpilot/internal/trace"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume prompt events on stdin and act on them",
	Long: `run reads newline-delimited JSON prompt events from stdin, decides
each one against the active policy, and emits newline-delimited JSON
effect and result lines on stdout for the PTY/channel adapter to act
on. A control socket accepts pause/resume/stop while running.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine(cmd.Context())
	},
}

// outputLine is one stdout message: an effect the adapter must apply,
// or the final result of a handled prompt.
type outputLine struct {
	Type     string                  `json:"type"`
	PromptID string                  `json:"prompt_id,omitempty"`
	Value    string                  `json:"value,omitempty"`
	Message  string                  `json:"message,omitempty"`
	Result   *autopilot.ActionResult `json:"result,omitempty"`
}

func runEngine(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	p, err := loadActivePolicy()
	if err != nil {
		return err
	}
	logger.Info("policy loaded", "name", p.PolicyName(), "version", p.Version(),
		"mode", p.AutonomyMode(), "hash", p.ContentHash())

	if _, err := trace.Rotate(cfg.Trace.Path, int64(cfg.Trace.MaxSizeMB)<<20, cfg.Trace.MaxArchives); err != nil {
		logger.Warn("trace rotation failed", "error", err)
	}
	tr, err := trace.New(cfg.Trace.Path)
	if err != nil {
		return err
	}
	var chain *trace.Chain
	if cfg.Trace.Chained {
		if chain, err = trace.NewChain(chainPath(cfg.Trace.Path)); err != nil {
			return err
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	guards := guard.NewSet(guard.Hardcoded()...)
	if len(cfg.Guards.DenySubstrings) > 0 {
		guards.AddConfig(guard.DenySubstrings(cfg.Guards.DenySubstrings))
	}

	out := &outputWriter{enc: json.NewEncoder(os.Stdout)}
	engine := autopilot.New(autopilot.Options{
		Policy:      p,
		Inject:      out.inject,
		Route:       out.route,
		Notify:      out.notify,
		Trace:       tr,
		Chain:       chain,
		HistoryPath: cfg.History.Path,
		Pins:        pin.NewManager(),
		Guards:      guards,
		Metrics:     m,
		Logger:      logger,
		Branch:      cfg.Branch,
		CIStatus:    cfg.CIStatus,
	})

	srv := daemon.New(engine, logger)
	srv.OnStop = cancel
	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Run(ctx) }()

	if cfg.Metrics.Addr != "" {
		go serveMetrics(ctx, cfg.Metrics.Addr, logger)
	}

	err = consumeEvents(ctx, engine, out, logger)

	cancel()
	if serr := <-serveDone; serr != nil {
		logger.Error("control server failed", "error", serr)
	}
	return err
}

func loadActivePolicy() (policy.Policy, error) {
	if cfg.PolicyPath == "" {
		slog.Warn("no policy configured, using the built-in safe default")
		return policy.Default(), nil
	}
	return policy.Load(cfg.PolicyPath)
}

// consumeEvents decodes prompt events line by line until stdin closes
// or ctx is cancelled. A malformed line is logged and skipped, never
// fatal: one bad event must not take the bridge down.
func consumeEvents(ctx context.Context, engine *autopilot.Engine, out *outputWriter, logger *slog.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev event.PromptEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			logger.Warn("skipping malformed event", "error", err)
			continue
		}
		if ev.PromptID == "" {
			ev.PromptID = uuid.NewString()
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = time.Now().UTC()
		}
		if ev.SessionTag == "" {
			ev.SessionTag = cfg.SessionTag
		}

		res := engine.HandlePrompt(ctx, ev)
		out.result(ev.PromptID, res)

		if engine.State() == autopilot.StateStopped {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	return nil
}

// outputWriter serializes all stdout lines; effects and results from
// concurrent handlers must never interleave mid-line.
type outputWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (w *outputWriter) emit(l outputLine) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(l)
}

func (w *outputWriter) inject(ctx context.Context, value string) error {
	return w.emit(outputLine{Type: "inject", Value: value})
}

func (w *outputWriter) route(ctx context.Context, ev event.PromptEvent) error {
	return w.emit(outputLine{Type: "route", PromptID: ev.PromptID, Message: ev.Text})
}

func (w *outputWriter) notify(ctx context.Context, message string) error {
	return w.emit(outputLine{Type: "notify", Message: message})
}

func (w *outputWriter) result(promptID string, res autopilot.ActionResult) {
	w.emit(outputLine{Type: "result", PromptID: promptID, Result: &res})
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "error", err)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
