// Package web assembles the HTTP surface of the microblog.
package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/microblog/internal/auth/google"
	"github.com/pysugar/microblog/internal/config"
	"github.com/pysugar/microblog/internal/logging"
	"github.com/pysugar/microblog/internal/metrics"
	"github.com/pysugar/microblog/internal/search"
	"github.com/pysugar/microblog/internal/session"
	"github.com/pysugar/microblog/internal/store"
	"github.com/pysugar/microblog/internal/web/handlers"
	"github.com/pysugar/microblog/internal/web/middleware"
	"github.com/pysugar/microblog/internal/web/render"
	"go.uber.org/zap"
)

const lastSeenInterval = time.Minute

// Deps are the services the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Store    *store.Store
	Sessions *session.Manager
	Search   *search.Posts
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// NewRouter builds the chi router with every route and middleware.
func NewRouter(d Deps) (http.Handler, error) {
	log := d.Logger.Sugar()
	renderer, err := render.New(d.Search.Enabled(), d.Config.GoogleEnabled(), log)
	if err != nil {
		return nil, err
	}
	env := &handlers.Env{
		Store:    d.Store,
		Sessions: d.Sessions,
		Search:   d.Search,
		Render:   renderer,
		Metrics:  d.Metrics,
		Log:      log,
		PerPage:  d.Config.PostsPerPage,
	}
	limiter := middleware.NewClientLimiter(d.Config.LoginRatePerMinute)

	r := chi.NewRouter()
	r.Use(logging.RequestID)
	r.Use(logging.AccessLog(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(d.Metrics.Middleware)
	r.Use(d.Sessions.Middleware)
	r.Use(middleware.TrackLastSeen(d.Store, lastSeenInterval, log))

	r.Get("/healthz", handlers.HealthHandler(env))
	r.With(middleware.OptionalBasicAuth("microblog metrics", d.Config.MetricsPassword)).
		Handle("/metrics", d.Metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", handlers.LoginPageHandler(env))
		r.With(limiter.Middleware).Post("/login", handlers.LoginHandler(env))
		r.Post("/logout", handlers.LogoutHandler(env))
		r.Get("/register", handlers.RegisterPageHandler(env))
		r.Post("/register", handlers.RegisterHandler(env))

		if d.Config.GoogleEnabled() {
			log.Infow("google sign-in enabled")
			r.Get("/google/login", google.HandleLogin(d.Config.Google))
			r.Get("/google/callback", google.HandleCallback(d.Config.Google, d.Store, d.Sessions, log))
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(session.RequireLogin)

		r.Get("/", handlers.IndexHandler(env))
		r.Get("/index", handlers.IndexHandler(env))
		r.Post("/", handlers.CreatePostHandler(env))
		r.Get("/explore", handlers.ExploreHandler(env))
		r.Get("/user/{username}", handlers.UserHandler(env))
		r.Post("/follow/{username}", handlers.FollowHandler(env))
		r.Post("/unfollow/{username}", handlers.UnfollowHandler(env))
		r.Get("/edit_profile", handlers.EditProfilePageHandler(env))
		r.Post("/edit_profile", handlers.EditProfileHandler(env))
		r.Get("/search", handlers.SearchHandler(env))
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		renderer.Error(w, req, http.StatusNotFound)
	})

	return r, nil
}
