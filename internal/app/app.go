// Package app is the application factory: it turns a Config into a fully
// wired http.Handler plus the background jobs that go with it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pysugar/microblog/internal/config"
	"github.com/pysugar/microblog/internal/db"
	"github.com/pysugar/microblog/internal/logging"
	"github.com/pysugar/microblog/internal/metrics"
	"github.com/pysugar/microblog/internal/search"
	"github.com/pysugar/microblog/internal/session"
	"github.com/pysugar/microblog/internal/store"
	"github.com/pysugar/microblog/internal/web"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const sweepTimeout = time.Minute

type App struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *gorm.DB
	store    *store.Store
	search   *search.Posts
	sessions *session.Manager
	metrics  *metrics.Metrics
	handler  http.Handler
	cron     *cron.Cron
}

// New builds an App from cfg. The database schema is migrated on start.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Testing)
	if err != nil {
		return nil, err
	}
	log := logger.Sugar()

	gdb, err := db.Open(cfg.DatabaseURL, cfg.Testing, logger)
	if err != nil {
		return nil, err
	}

	st := store.New(gdb)
	if cfg.Testing {
		st.PasswordCost = bcrypt.MinCost
	}

	index, err := search.New(cfg)
	if err != nil {
		closeDB(gdb)
		return nil, fmt.Errorf("search: %w", err)
	}
	posts := search.NewPosts(index, st, cfg.SearchIndexPrefix, log)

	sessionStore, err := session.NewStore(cfg, gdb)
	if err != nil {
		closeDB(gdb)
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		log:      logger,
		db:       gdb,
		store:    st,
		search:   posts,
		sessions: session.NewManager(sessionStore, st, cfg.SessionTTL, cfg.RememberTTL, log),
		metrics:  metrics.New(),
	}

	a.handler, err = web.NewRouter(web.Deps{
		Config:   cfg,
		Store:    st,
		Sessions: a.sessions,
		Search:   posts,
		Metrics:  a.metrics,
		Logger:   logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if !cfg.Testing && cfg.SessionSweepSchedule != "" {
		a.cron = cron.New()
		if _, err := a.cron.AddFunc(cfg.SessionSweepSchedule, a.sweep); err != nil {
			a.Close()
			return nil, fmt.Errorf("%w: session_sweep_schedule: %v", config.ErrInvalid, err)
		}
		a.cron.Start()
	}

	log.Infow("application ready",
		"database", cfg.DatabaseURL,
		"search", posts.Enabled(),
		"session_store", cfg.SessionStore,
		"google", cfg.GoogleEnabled(),
	)
	return a, nil
}

func (a *App) Handler() http.Handler { return a.handler }
func (a *App) DB() *gorm.DB          { return a.db }
func (a *App) Store() *store.Store   { return a.store }
func (a *App) Search() *search.Posts { return a.search }
func (a *App) Logger() *zap.Logger   { return a.log }
func (a *App) Config() *config.Config {
	return a.cfg
}

// SweepSessions deletes expired sessions and returns how many went.
func (a *App) SweepSessions(ctx context.Context) (int64, error) {
	return a.sessions.Store().DeleteExpired(ctx)
}

func (a *App) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	n, err := a.SweepSessions(ctx)
	if err != nil {
		a.log.Warn("session sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		a.log.Info("expired sessions removed", zap.Int64("count", n))
	}
}

// Close stops background jobs and releases the session store and database.
func (a *App) Close() error {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	var errs []error
	if err := a.sessions.Store().Close(); err != nil {
		errs = append(errs, err)
	}
	if err := closeDB(a.db); err != nil {
		errs = append(errs, err)
	}
	a.log.Sync()
	return errors.Join(errs...)
}

func closeDB(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
