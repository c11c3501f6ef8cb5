package http

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"budgetapp/internal/budget"
	"budgetapp/internal/cache"
	"budgetapp/internal/core"
	"budgetapp/internal/export"
	"budgetapp/internal/log"
	"budgetapp/internal/middleware/ratelimit"
	"budgetapp/internal/middleware/security"
	"budgetapp/internal/middleware/trace"
	"budgetapp/internal/query"
	appweb "budgetapp/web"
)

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

// Server is the budget HTTP surface. All state goes through the engine.
type Server struct {
	http.Server
	engine    *budget.Engine
	templates *template.Template
	summaries *cache.Summaries
	logger    *log.Logger
	now       func() time.Time

	sinks         []export.Sink
	exportTimeout time.Duration
	readyChecks   map[string]ReadyCheck

	ips         *security.IPResolver
	rateLimiter *ratelimit.Limiter
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

type Option func(*Server)

func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger.WithComponent(log.ComponentHTTP) }
}

// WithSummaryCache memoizes dashboard summaries per engine revision.
func WithSummaryCache(c *cache.Summaries) Option {
	return func(s *Server) { s.summaries = c }
}

// WithExportSinks sets where POST /api/export delivers rows.
func WithExportSinks(timeout time.Duration, sinks ...export.Sink) Option {
	return func(s *Server) {
		s.sinks = sinks
		s.exportTimeout = timeout
	}
}

// WithReadyCheck adds a named check to /readyz.
func WithReadyCheck(name string, check ReadyCheck) Option {
	return func(s *Server) { s.readyChecks[name] = check }
}

// WithRateLimit limits state-changing requests per client per minute.
func WithRateLimit(requestsPerMinute int) Option {
	return func(s *Server) {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: requestsPerMinute})
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, engine *budget.Engine, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine:        engine,
		logger:        log.Discard().WithComponent(log.ComponentHTTP),
		now:           time.Now,
		exportTimeout: 30 * time.Second,
		readyChecks:   make(map[string]ReadyCheck),
		ips:           security.NewIPResolver(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracer = trace.NewMiddleware(s.ips.ClientIP)

	t, err := export.ParseTemplates()
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err.Error())
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err.Error())
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	// Dashboard
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /ui/expenses", s.requireLoaded(s.handleFormSubmit))
	mux.HandleFunc("POST /ui/expenses/{id}/delete", s.requireLoaded(s.handleFormDelete))

	// Reads
	mux.HandleFunc("GET /api/state", s.requireLoaded(s.handleState))
	mux.HandleFunc("GET /api/summary", s.requireLoaded(s.handleSummary))
	mux.HandleFunc("GET /api/accounts/summary", s.requireLoaded(s.handleAccountSummaries))
	mux.HandleFunc("GET /api/expenses", s.requireLoaded(s.handleListExpenses))

	// Expenses
	mux.HandleFunc("POST /api/expenses", s.requireLoaded(s.handleCreateExpense))
	mux.HandleFunc("PATCH /api/expenses/{id}", s.requireLoaded(s.handleEditExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.requireLoaded(s.handleDeleteExpense))

	// Income, budgets, categories
	mux.HandleFunc("PUT /api/income", s.requireLoaded(s.handleSetIncome))
	mux.HandleFunc("PUT /api/budgets", s.requireLoaded(s.handleSetBudgets))
	mux.HandleFunc("PUT /api/budgets/{category}", s.requireLoaded(s.handleSetBudget))
	mux.HandleFunc("POST /api/categories", s.requireLoaded(s.handleAddCategory))
	mux.HandleFunc("DELETE /api/categories/{name}", s.requireLoaded(s.handleDeleteCategory))

	// Accounts
	mux.HandleFunc("POST /api/accounts", s.requireLoaded(s.handleAddAccount))
	mux.HandleFunc("PATCH /api/accounts/{id}", s.requireLoaded(s.handleRenameAccount))
	mux.HandleFunc("POST /api/accounts/{id}/archive", s.requireLoaded(s.handleArchiveAccount))

	// Month, view, settings
	mux.HandleFunc("PUT /api/month", s.requireLoaded(s.handleChangeMonth))
	mux.HandleFunc("POST /api/month/reset", s.requireLoaded(s.handleResetMonth))
	mux.HandleFunc("PUT /api/view", s.requireLoaded(s.handleSwitchView))
	mux.HandleFunc("PUT /api/currency", s.requireLoaded(s.handleSetCurrency))
	mux.HandleFunc("PUT /api/profile", s.requireLoaded(s.handleUpdateProfile))

	// Exports and data
	mux.HandleFunc("GET /api/export/json", s.requireLoaded(s.handleExportJSON))
	mux.HandleFunc("GET /api/export/csv", s.requireLoaded(s.handleExportCSV))
	mux.HandleFunc("GET /api/export/report", s.requireLoaded(s.handleExportReport))
	mux.HandleFunc("POST /api/export", s.requireLoaded(s.handleExportSinks))
	mux.HandleFunc("POST /api/reload", s.handleReload)
	mux.HandleFunc("DELETE /api/data", s.requireLoaded(s.handleClearAll))

	var handler http.Handler = mux
	if s.rateLimiter != nil {
		handler = s.rateLimiter.Middleware(s.ips.ClientIP, ratelimit.Mutating, func(w http.ResponseWriter, r *http.Request) {
			s.logger.WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, s.ips.ClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
		})(handler)
	}
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestIDFromRequest)(handler)
	handler = log.Middleware(s.logger)(handler)
	handler = s.tracer.Middleware(handler)
	s.Handler = handler

	return s
}

// Shutdown gracefully shuts down the server. It is safe to call twice.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// requireLoaded answers 503 until the engine has loaded its state.
func (s *Server) requireLoaded(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.engine.Loaded() {
			ServiceUnavailableError("budget state not loaded").Write(w)
			return
		}
		next(w, r)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type readiness struct {
	Ready    bool              `json:"ready"`
	Revision uint64            `json:"revision"`
	Checks   map[string]string `json:"checks"`
	Requests trace.Metrics     `json:"requests"`
	Cache    cache.Stats       `json:"summaryCache"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	body := readiness{
		Ready:    s.engine.Loaded(),
		Revision: s.engine.Revision(),
		Checks:   map[string]string{"engine": "ok"},
		Requests: s.tracer.GetMetrics(),
		Cache:    s.summaries.Stats(),
	}
	if !body.Ready {
		body.Checks["engine"] = "not loaded"
	}
	for name, check := range s.readyChecks {
		if err := check(ctx); err != nil {
			body.Ready = false
			body.Checks[name] = err.Error()
			continue
		}
		body.Checks[name] = "ok"
	}

	status := http.StatusOK
	if !body.Ready {
		status = http.StatusServiceUnavailable
	}
	NewResponse().Status(status).JSON(body).Write(w)
}

// snapshot returns the state together with a revision no newer than it.
// Reading the revision first means a cached summary is never filed under
// a revision later than the state it was computed from.
func (s *Server) snapshot() (core.BudgetState, uint64) {
	rev := s.engine.Revision()
	state, _ := s.engine.State()
	return state, rev
}

func (s *Server) summary(state core.BudgetState, rev uint64, key core.MonthKey, view core.View) query.Summary {
	return s.summaries.Get(cache.SummaryKey{Revision: rev, Month: key, View: view}, func() query.Summary {
		return query.Summarize(state, key, view)
	})
}

// respond writes v stamped with the current engine revision.
func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	NewResponse().Status(status).Revision(s.engine.Revision()).JSON(v).Write(w)
}

// respondChanged reports the outcome of a mutation with no entity to echo.
func (s *Server) respondChanged(w http.ResponseWriter, ok bool) {
	rev := s.engine.Revision()
	NewResponse().Revision(rev).JSON(changed{Changed: ok, Revision: rev}).Write(w)
}

// fail maps a boundary error to a JSON error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, budget.ErrLastActiveAccount):
		ConflictError(err.Error()).Write(w)
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyTitle),
		errors.Is(err, core.ErrTitleTooLong),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrUnknownCurrency),
		errors.Is(err, core.ErrInvalidMonthKey),
		errors.Is(err, core.ErrInvalidAccountID),
		errors.Is(err, errMissingField):
		UnprocessableEntityError(err.Error()).Write(w)
	default:
		s.logger.ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path, log.FieldError, err.Error())
		InternalServerError("internal error").Write(w)
	}
}

// parseBody reads the request body, writing a 400 on failure.
func parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		slog.DebugContext(r.Context(), "Malformed request body", log.FieldError, err.Error())
		BadRequestError("malformed request body").Write(w)
		return nil, false
	}
	return p, true
}
