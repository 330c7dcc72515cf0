package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/josephblackelite/spur-protocol/pkg/artifacts"
	"github.com/josephblackelite/spur-protocol/pkg/compiler"
	"github.com/josephblackelite/spur-protocol/pkg/observability"
	"github.com/josephblackelite/spur-protocol/pkg/registry"
	"github.com/josephblackelite/spur-protocol/pkg/schema"
	"github.com/josephblackelite/spur-protocol/pkg/store"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed requests.
var errBadRequest = errors.New("bad request")

// Options configures a Server. Only Registry is required.
type Options struct {
	Registry  registry.Lookup
	Store     store.PlanStore
	Artifacts artifacts.Store
	Telemetry *observability.Provider
	Limiter   *RateLimiter
	Logger    *slog.Logger
}

// Server holds the API dependencies.
type Server struct {
	registry  registry.Lookup
	store     store.PlanStore
	artifacts artifacts.Store
	telemetry *observability.Provider
	limiter   *RateLimiter
	logger    *slog.Logger
}

// NewServer validates opts and fills defaults.
func NewServer(opts Options) (*Server, error) {
	if opts.Registry == nil {
		return nil, errors.New("api: registry is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = observability.Noop()
	}
	return &Server{
		registry:  opts.Registry,
		store:     opts.Store,
		artifacts: opts.Artifacts,
		telemetry: opts.Telemetry,
		limiter:   opts.Limiter,
		logger:    opts.Logger.With("component", "api"),
	}, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /v1/explain", s.handleExplain)
	mux.HandleFunc("POST /v1/compile", s.handleCompile)
	mux.HandleFunc("POST /v1/verify", s.handleVerify)
	mux.HandleFunc("GET /v1/adapters", s.handleListAdapters)
	mux.HandleFunc("GET /v1/adapters/{id}", s.handleGetAdapter)
	mux.HandleFunc("GET /v1/plans", s.handleListPlans)
	mux.HandleFunc("GET /v1/plans/{id}", s.handleGetPlan)

	var h http.Handler = mux
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = AccessLog(s.logger, h)
	return RequestID(h)
}

// fail maps err to a problem response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *schema.ValidationError
		ce *compiler.CompilationError
	)
	switch {
	case errors.As(err, &ve):
		WriteValidation(w, r, ve)
	case errors.As(err, &ce):
		p := newProblem(r, w, http.StatusUnprocessableEntity, "Compilation Failed", ce.Error())
		p.Kind = string(ce.Kind)
		WriteProblem(w, p)
	case errors.Is(err, errBadRequest):
		WriteBadRequest(w, r, err.Error())
	case errors.Is(err, registry.ErrAdapterNotFound), errors.Is(err, store.ErrPlanNotFound):
		WriteNotFound(w, r, err.Error())
	case errors.Is(err, store.ErrPlanConflict):
		WriteConflict(w, r, err.Error())
	default:
		WriteInternal(w, r, err)
	}
}
