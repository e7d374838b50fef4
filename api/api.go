package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"sessioncore/activity"
	"sessioncore/auth"
	"sessioncore/csrf"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	core   *auth.Authenticator
	bus    *activity.Bus
	csrf   *csrf.Service
	resets PasswordResetCompleter
	logger *slog.Logger
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithResetCompleter enables POST /auth/reset-password/complete for
// providers that issue one-time reset tokens.
func WithResetCompleter(rc PasswordResetCompleter) Option {
	return func(a *API) {
		a.resets = rc
	}
}

// New creates a new API instance.
func New(core *auth.Authenticator, bus *activity.Bus, csrfSvc *csrf.Service, opts ...Option) *API {
	a := &API{
		core: core,
		bus:  bus,
		csrf: csrfSvc,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Get("/csrf", a.IssueCSRF)

	r.Route("/auth", func(r chi.Router) {
		r.Use(a.CSRFMiddleware)
		r.Post("/signin", a.SignIn)
		r.Post("/signup", a.SignUp)
		r.Post("/signout", a.SignOut)
		r.Post("/reset-password", a.ResetPassword)
		r.Post("/reset-password/complete", a.CompleteReset)
		r.Post("/update-password", a.UpdatePassword)
	})

	// Activity and visibility beacons are deliberately outside the CSRF
	// middleware: they carry no credentials and mutate nothing a forger
	// could profit from.
	r.Route("/session", func(r chi.Router) {
		r.Get("/", a.GetSession)
		r.Get("/watch", a.Watch)
		r.Post("/refresh", a.Refresh)
		r.Post("/activity", a.ReportActivity)
		r.Post("/visibility", a.ReportVisibility)
	})

	return r
}
