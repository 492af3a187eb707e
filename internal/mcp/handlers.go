package mcp

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/domscout/internal/config"
	"github.com/xkilldash9x/domscout/internal/descriptor"
	"github.com/xkilldash9x/domscout/internal/engine"
	"github.com/xkilldash9x/domscout/internal/observability"
)

// maxBodyBytes caps a command body. Tool inputs are a few hundred bytes.
const maxBodyBytes = 1 << 20

// Handlers serves the agent-facing command API.
type Handlers struct {
	log     *zap.Logger
	exec    Executor
	limiter *rate.Limiter
	metrics bool
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg config.Interface, exec Executor, logger *zap.Logger) *Handlers {
	sc := cfg.Server()
	return &Handlers{
		log:     logger.Named("mcp_handlers"),
		exec:    exec,
		limiter: rate.NewLimiter(rate.Limit(sc.RateLimit), sc.RateBurst),
		metrics: cfg.Observability().MetricsEnabled,
	}
}

// RegisterRoutes mounts the health, metrics and command endpoints on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthCheck)
	if h.metrics {
		r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(h.rateLimit).Post("/command", h.HandleCommand)
	})
}

// HandleHealthCheck reports that the process is up. It does not touch the
// browser.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow() {
			h.respondWithError(w, http.StatusTooManyRequests, "Too many requests; retry shortly.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleCommand is the main entry point for commands from the agent.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	h.log.Info("Received command", zap.String("command", req.Command))

	switch strings.ToLower(strings.TrimSpace(req.Command)) {
	case "get_dom_selectors", "scan", "resolve":
		h.handleResolve(w, r, req.Params)
	case "cleanup":
		h.handleCleanup(w, r)
	case "ping":
		h.respondWithSuccess(w, http.StatusOK, map[string]string{"message": "pong"})
	default:
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func (h *Handlers) handleResolve(w http.ResponseWriter, r *http.Request, params json.RawMessage) {
	d, err := decodeParams(params)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid parameters for get_dom_selectors: %v", err))
		return
	}

	out, err := h.exec.Execute(r.Context(), d)
	if err != nil {
		h.log.Error("Browser session could not be started", zap.Error(err))
		if errors.Is(err, engine.ErrSessionLaunch) {
			h.respondWithError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Diagnostics are a normal answer for the agent, not a transport error.
	h.respondWithSuccess(w, http.StatusOK, out)
}

func (h *Handlers) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if err := h.exec.Cleanup(r.Context()); err != nil {
		h.log.Warn("Cleanup reported errors", zap.Error(err))
	}
	h.respondWithSuccess(w, http.StatusOK, map[string]string{"message": "session released"})
}

// decodeParams builds a descriptor from either {input: "..."} or the
// structured fields. Missing params mean discovery on the current page.
func decodeParams(raw json.RawMessage) (descriptor.Descriptor, error) {
	var d descriptor.Descriptor
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return d, nil
	}

	var in rawInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return d, err
	}
	if in.Input != nil {
		return descriptor.DecodeToolInput(*in.Input)
	}
	err := json.Unmarshal(raw, &d)
	return d, err
}

func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respond(w, statusCode, CommandResponse{Status: "error", Error: message})
}

func (h *Handlers) respondWithSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	h.respond(w, statusCode, CommandResponse{Status: "success", Data: data})
}

func (h *Handlers) respond(w http.ResponseWriter, statusCode int, resp CommandResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
