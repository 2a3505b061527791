package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pysugar/microblog/internal/session"
	"github.com/pysugar/microblog/internal/store"
)

const invalidUsernameMessage = "Usernames may only contain letters, numbers, dots, dashes and underscores."

type loginForm struct {
	Next       string
	Username   string
	RememberMe bool
	Error      string
}

type registerForm struct {
	Username string
	Email    string
	Error    string
}

// LoginPageHandler shows the sign-in form. Signed-in users go home.
func LoginPageHandler(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session.CurrentUser(r.Context()) != nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		env.Render.HTML(w, r, http.StatusOK, "login", "Sign In", loginForm{
			Next: r.URL.Query().Get("next"),
		})
	}
}

// LoginHandler checks the submitted credentials and starts a session.
func LoginHandler(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form", http.StatusBadRequest)
			return
		}
		form := loginForm{
			Next:       r.PostForm.Get("next"),
			Username:   strings.TrimSpace(r.PostForm.Get("username")),
			RememberMe: r.PostForm.Get("remember_me") != "",
		}

		user, err := env.Store.Authenticate(r.Context(), form.Username, r.PostForm.Get("password"))
		if errors.Is(err, store.ErrInvalidCredentials) {
			env.Metrics.Logins.WithLabelValues("failure").Inc()
			form.Error = "Invalid username or password"
			env.Render.HTML(w, r, http.StatusBadRequest, "login", "Sign In", form)
			return
		}
		if err != nil {
			env.fail(w, r, "failed to authenticate", err)
			return
		}

		if err := env.Sessions.Start(w, r, user.ID, form.RememberMe); err != nil {
			env.fail(w, r, "failed to start session", err)
			return
		}
		env.Metrics.Logins.WithLabelValues("success").Inc()
		env.Log.Infow("user logged in", "user_id", user.ID, "username", user.Username)
		http.Redirect(w, r, session.SanitizeNext(form.Next), http.StatusSeeOther)
	}
}

// LogoutHandler ends the session and goes home, which bounces to the login
// page.
func LogoutHandler(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		env.Sessions.End(w, r)
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

// RegisterPageHandler shows the registration form.
func RegisterPageHandler(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session.CurrentUser(r.Context()) != nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		env.Render.HTML(w, r, http.StatusOK, "register", "Register", registerForm{})
	}
}

// RegisterHandler creates a password account.
func RegisterHandler(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form", http.StatusBadRequest)
			return
		}
		form := registerForm{
			Username: strings.TrimSpace(r.PostForm.Get("username")),
			Email:    strings.TrimSpace(r.PostForm.Get("email")),
		}
		password := r.PostForm.Get("password")

		if form.Error = validateRegistration(form, password, r.PostForm.Get("password2")); form.Error == "" {
			_, err := env.Store.CreateUser(r.Context(), form.Username, form.Email, password)
			switch {
			case errors.Is(err, store.ErrInvalidUsername):
				form.Error = invalidUsernameMessage
			case errors.Is(err, store.ErrInvalidEmail):
				form.Error = "Please enter a valid email address."
			case errors.Is(err, store.ErrUsernameTaken):
				form.Error = "Please use a different username."
			case errors.Is(err, store.ErrEmailTaken):
				form.Error = "Please use a different email address."
			case err != nil:
				env.fail(w, r, "failed to register user", err)
				return
			}
		}
		if form.Error != "" {
			env.Render.HTML(w, r, http.StatusBadRequest, "register", "Register", form)
			return
		}

		env.Log.Infow("user registered", "username", form.Username)
		session.Flash(w, r, "Congratulations, you are now a registered user!")
		http.Redirect(w, r, session.LoginPath, http.StatusSeeOther)
	}
}

// validateRegistration covers the form-only fields. Username and email
// rules live in the store.
func validateRegistration(form registerForm, password, repeat string) string {
	switch {
	case form.Username == "":
		return "Username is required."
	case form.Email == "":
		return "Email is required."
	case password == "":
		return "Password is required."
	case password != repeat:
		return "Passwords must match."
	}
	return ""
}
