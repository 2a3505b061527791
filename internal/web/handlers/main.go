package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/microblog/internal/db/models"
	"github.com/pysugar/microblog/internal/session"
	"github.com/pysugar/microblog/internal/store"
)

type indexContent struct {
	postList
	ShowForm bool
	Body     string
	Error    string
}

type userContent struct {
	postList
	Profile     *models.User
	IsMe        bool
	IsFollowing bool
	Followers   int64
	Following   int64
}

type profileForm struct {
	Username string
	AboutMe  string
	Error    string
}

type searchContent struct {
	postList
	Disabled bool
	Query    string
	Total    int64
}

// IndexHandler shows the signed-in user's feed with the post form.
func IndexHandler(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		env.renderFeed(w, r, http.StatusOK, indexContent{ShowForm: true})
	}
}

func (e *Env) renderFeed(w http.ResponseWriter, r *http.Request, status int, content indexContent) {
	user := session.CurrentUser(r.Context())
	page, err := e.Store.Feed(r.Context(), user.ID, pageNumber(r), e.PerPage)
	if err != nil {
		e.fail(w, r, "failed to load feed", err)
		return
	}
	content.postList = newPostList(r, page)
	e.Render.HTML(w, r, status, "index", "Home", content)
}

// CreatePostHandler publishes a post and indexes it for search.
func CreatePostHandler(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form", http.StatusBadRequest)
			return
		}
		user := session.CurrentUser(r.Context())
		body := r.PostForm.Get("post")

		post, err := env.Store.CreatePost(r.Context(), user.ID, body)
		if errors.Is(err, store.ErrInvalidPost) {
			env.renderFeed(w, r, http.StatusBadRequest, indexContent{ShowForm: true, Body: body, Error: err.Error()})
			return
		}
		if err != nil {
			env.fail(w, r, "failed to create post", err)
			return
		}

		env.Metrics.PostsCreated.Inc()
		env.Search.IndexPost(r.Context(), post)
		session.Flash(w, r, "Your post is now live!")
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// ExploreHandler lists every post, newest first.
func ExploreHandler(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := env.Store.Explore(r.Context(), pageNumber(r), env.PerPage)
		if err != nil {
			env.fail(w, r, "failed to load posts", err)
			return
		}
		env.Render.HTML(w, r, http.StatusOK, "index", "Explore", indexContent{postList: newPostList(r, page)})
	}
}

// UserHandler shows a profile and the user's posts.
func UserHandler(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, ok := env.lookupUser(w, r)
		if !ok {
			return
		}
		me := session.CurrentUser(r.Context())
		ctx := r.Context()

		page, err := env.Store.PostsByUser(ctx, profile.ID, pageNumber(r), env.PerPage)
		if err != nil {
			env.fail(w, r, "failed to load posts", err)
			return
		}
		content := userContent{
			postList: newPostList(r, page),
			Profile:  profile,
			IsMe:     me.ID == profile.ID,
		}
		if !content.IsMe {
			if content.IsFollowing, err = env.Store.IsFollowing(ctx, me.ID, profile.ID); err != nil {
				env.fail(w, r, "failed to load follow state", err)
				return
			}
		}
		if content.Followers, err = env.Store.FollowerCount(ctx, profile.ID); err != nil {
			env.fail(w, r, "failed to count followers", err)
			return
		}
		if content.Following, err = env.Store.FollowingCount(ctx, profile.ID); err != nil {
			env.fail(w, r, "failed to count followed users", err)
			return
		}
		env.Render.HTML(w, r, http.StatusOK, "user", profile.Username, content)
	}
}

func (e *Env) lookupUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, err := e.Store.UserByUsername(r.Context(), chi.URLParam(r, "username"))
	if errors.Is(err, store.ErrNotFound) {
		e.Render.Error(w, r, http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		e.fail(w, r, "failed to load user", err)
		return nil, false
	}
	return user, true
}

// FollowHandler makes the current user follow {username}.
func FollowHandler(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, ok := env.lookupUser(w, r)
		if !ok {
			return
		}
		err := env.Store.Follow(r.Context(), session.CurrentUser(r.Context()), target)
		switch {
		case errors.Is(err, store.ErrSelfFollow):
			session.Flash(w, r, "You cannot follow yourself!")
		case err != nil:
			env.fail(w, r, "failed to follow", err)
			return
		default:
			session.Flash(w, r, "You are following "+target.Username+"!")
		}
		http.Redirect(w, r, "/user/"+target.Username, http.StatusSeeOther)
	}
}

// UnfollowHandler reverses FollowHandler.
func UnfollowHandler(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, ok := env.lookupUser(w, r)
		if !ok {
			return
		}
		if err := env.Store.Unfollow(r.Context(), session.CurrentUser(r.Context()), target); err != nil {
			env.fail(w, r, "failed to unfollow", err)
			return
		}
		session.Flash(w, r, "You are not following "+target.Username+".")
		http.Redirect(w, r, "/user/"+target.Username, http.StatusSeeOther)
	}
}

// EditProfilePageHandler shows the profile form prefilled.
func EditProfilePageHandler(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := session.CurrentUser(r.Context())
		env.Render.HTML(w, r, http.StatusOK, "edit_profile", "Edit Profile", profileForm{
			Username: user.Username,
			AboutMe:  user.AboutMe,
		})
	}
}

// EditProfileHandler saves the profile form.
func EditProfileHandler(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form", http.StatusBadRequest)
			return
		}
		user := session.CurrentUser(r.Context())
		form := profileForm{
			Username: strings.TrimSpace(r.PostForm.Get("username")),
			AboutMe:  strings.TrimSpace(r.PostForm.Get("about_me")),
		}

		if len([]rune(form.AboutMe)) > store.MaxPostLength {
			form.Error = "About me is limited to 140 characters."
		} else {
			err := env.Store.UpdateProfile(r.Context(), user.ID, form.Username, form.AboutMe)
			switch {
			case errors.Is(err, store.ErrInvalidUsername):
				form.Error = invalidUsernameMessage
			case errors.Is(err, store.ErrUsernameTaken):
				form.Error = "Please use a different username."
			case err != nil:
				env.fail(w, r, "failed to update profile", err)
				return
			}
		}
		if form.Error != "" {
			env.Render.HTML(w, r, http.StatusBadRequest, "edit_profile", "Edit Profile", form)
			return
		}

		session.Flash(w, r, "Your changes have been saved.")
		http.Redirect(w, r, "/edit_profile", http.StatusSeeOther)
	}
}

// SearchHandler runs a full-text query. With search unavailable the page
// still renders, with a notice instead of results.
func SearchHandler(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			http.Redirect(w, r, "/explore", http.StatusSeeOther)
			return
		}
		if !env.Search.Enabled() {
			env.Render.HTML(w, r, http.StatusOK, "search", "Search", searchContent{Disabled: true, Query: q})
			return
		}

		res, err := env.Search.SearchPosts(r.Context(), q, pageNumber(r), env.PerPage)
		if err != nil {
			env.Log.Warnw("search failed", "query", q, "error", err)
			env.Render.HTML(w, r, http.StatusOK, "search", "Search", searchContent{Disabled: true, Query: q})
			return
		}
		content := searchContent{
			postList: postList{Posts: res.Posts},
			Query:    res.Query,
			Total:    res.Total,
		}
		if res.HasPrev {
			content.PrevURL = pageURL(r, res.PrevNumber())
		}
		if res.HasNext {
			content.NextURL = pageURL(r, res.NextNumber())
		}
		env.Render.HTML(w, r, http.StatusOK, "search", "Search", content)
	}
}
