// Package handlers holds the HTTP handlers behind the microblog routes.
package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/pysugar/microblog/internal/db/models"
	"github.com/pysugar/microblog/internal/metrics"
	"github.com/pysugar/microblog/internal/search"
	"github.com/pysugar/microblog/internal/session"
	"github.com/pysugar/microblog/internal/store"
	"github.com/pysugar/microblog/internal/web/render"
	"go.uber.org/zap"
)

// Env is what every handler needs.
type Env struct {
	Store    *store.Store
	Sessions *session.Manager
	Search   *search.Posts
	Render   *render.Renderer
	Metrics  *metrics.Metrics
	Log      *zap.SugaredLogger
	PerPage  int
}

// postList is embedded by every page that shows posts with a pager.
type postList struct {
	Posts   []models.Post
	PrevURL string
	NextURL string
}

func newPostList(r *http.Request, page store.Page[models.Post]) postList {
	list := postList{Posts: page.Items}
	if page.HasPrev {
		list.PrevURL = pageURL(r, page.PrevNumber())
	}
	if page.HasNext {
		list.NextURL = pageURL(r, page.NextNumber())
	}
	return list
}

// pageURL is the current URL with its page parameter replaced.
func pageURL(r *http.Request, n int) string {
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(n))
	u := url.URL{Path: r.URL.Path, RawQuery: q.Encode()}
	return u.String()
}

func pageNumber(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// fail logs an unexpected error and renders a 500.
func (e *Env) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	e.Log.Errorw(msg, "path", r.URL.Path, "error", err)
	e.Render.Error(w, r, http.StatusInternalServerError)
}
