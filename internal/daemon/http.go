package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/relforge/internal/config"
	rferrors "git.home.luguber.info/inful/relforge/internal/errors"
	"git.home.luguber.info/inful/relforge/internal/logfields"
	"git.home.luguber.info/inful/relforge/internal/trigger"
	"git.home.luguber.info/inful/relforge/internal/version"
)

// HTTPServer exposes the daemon's API: webhook intake, manual dispatch, run
// history and health/metrics endpoints.
type HTTPServer struct {
	daemon       *Daemon
	errorAdapter *rferrors.HTTPErrorAdapter
	server       *http.Server
}

func NewHTTPServer(d *Daemon) *HTTPServer {
	return &HTTPServer{
		daemon:       d,
		errorAdapter: rferrors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// Handler builds the route table. Split out so tests can exercise routes
// without binding a port.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /webhook/{forge}", s.handleWebhook)
	mux.HandleFunc("POST /dispatch", s.handleDispatch)
	mux.HandleFunc("GET /runs", s.handleRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	mux.Handle("GET /metrics", s.daemon.recorder.Handler())
	return s.logRequests(mux)
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			slog.String("method", r.Method),
			logfields.Path(r.URL.Path),
			logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	})
}

// Start binds the listener and serves in the background.
func (s *HTTPServer) Start(ctx context.Context, listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", listen, err)
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if serveErr := s.server.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("HTTP server terminated", logfields.Error(serveErr))
		}
	}()

	slog.Info("HTTP API listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Stop drains in-flight requests.
func (s *HTTPServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Response encoding failed", logfields.Error(err))
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(s.daemon.startTime).String(),
		"queued":  s.daemon.queue.Depth(),
		"project": s.daemon.Config().Project.Name,
	})
}

// handleWebhook accepts forge push webhooks. Only tag pushes start runs;
// pushes to other refs are acknowledged and ignored.
func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	forgeName := r.PathValue("forge")

	s.daemon.mu.RLock()
	publisher := s.daemon.publisher
	cfg := s.daemon.cfg
	s.daemon.mu.RUnlock()

	if publisher == nil || string(publisher.GetType()) != forgeName {
		s.errorAdapter.WriteErrorResponse(w, rferrors.NotFoundError("no such forge configured").
			WithContext("forge", forgeName).Build())
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, rferrors.ValidationError("unreadable webhook payload").
			WithCause(err).Build())
		return
	}

	if cfg.Daemon.WebhookSecret != "" {
		signature := webhookSignature(r, config.ForgeType(forgeName))
		if !publisher.ValidateWebhook(payload, signature, cfg.Daemon.WebhookSecret) {
			s.errorAdapter.WriteErrorResponse(w, rferrors.AuthorizationError("webhook signature mismatch").Build())
			return
		}
	}

	ref, err := publisher.ParsePushRef(payload)
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, rferrors.ValidationError("malformed push payload").
			WithCause(err).Build())
		return
	}

	if !strings.HasPrefix(ref, "refs/tags/") {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "not a tag push"})
		return
	}

	ev := trigger.NewTagPush(ref)
	if eval, err := trigger.NewEvaluator(cfg.Trigger.TagPattern); err == nil && !eval.Matches(ev.Tag()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "tag does not match pattern"})
		return
	}

	job, err := s.daemon.Enqueue(ev)
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, rferrors.DaemonError("run not accepted").
			WithCause(err).Build())
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

// handleDispatch starts a manual run. Manual runs build and upload but never
// publish.
func (s *HTTPServer) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if !s.daemon.Config().Trigger.AllowManual {
		s.errorAdapter.WriteErrorResponse(w, rferrors.ConfigError("manual dispatch is disabled").Build())
		return
	}

	job, err := s.daemon.Enqueue(trigger.NewManualDispatch())
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, rferrors.DaemonError("run not accepted").
			WithCause(err).Build())
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"jobs": s.daemon.queue.Jobs(),
	}
	if s.daemon.projection != nil {
		response["history"] = s.daemon.projection.History()
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if job, ok := s.daemon.queue.JobSnapshot(id); ok {
		s.writeJSON(w, http.StatusOK, job)
		return
	}
	if s.daemon.projection != nil {
		if run := s.daemon.projection.GetRun(id); run != nil {
			s.writeJSON(w, http.StatusOK, run)
			return
		}
	}
	s.errorAdapter.WriteErrorResponse(w, rferrors.NotFoundError("run not found").
		WithContext("run_id", id).Build())
}

// webhookSignature pulls the signature header for the forge's scheme.
func webhookSignature(r *http.Request, forge config.ForgeType) string {
	switch forge {
	case config.ForgeGitHub:
		if sig := r.Header.Get("X-Hub-Signature-256"); sig != "" {
			return sig
		}
		return r.Header.Get("X-Hub-Signature")
	case config.ForgeGitLab:
		return r.Header.Get("X-Gitlab-Token")
	case config.ForgeForgejo:
		return r.Header.Get("X-Gitea-Signature")
	default:
		return ""
	}
}
