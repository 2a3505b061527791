// Package apptest drives a real App in-process for tests. Requests go
// straight into the app's handler without a network socket. The client keeps
// cookies between requests and never follows redirects, so tests can assert
// on 3xx responses directly.
package apptest

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/pysugar/microblog/internal/app"
	"github.com/pysugar/microblog/internal/config"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
}

// Location is the redirect target, if any.
func (r *Response) Location() string {
	return r.Header.Get("Location")
}

// BaseURL is the origin every test request is addressed to.
const BaseURL = "http://microblog.test"

// clientAddr is the RemoteAddr the app sees for test requests.
const clientAddr = "192.0.2.10:40000"

// handlerTransport serves each request with handler into a recorder.
type handlerTransport struct {
	handler http.Handler
}

func (t handlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	in := req.Clone(req.Context())
	in.RemoteAddr = clientAddr
	in.RequestURI = req.URL.RequestURI()
	in.Host = req.URL.Host
	if in.Body == nil {
		in.Body = http.NoBody
	}

	rec := httptest.NewRecorder()
	t.handler.ServeHTTP(rec, in)

	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

type Client struct {
	App  *app.App
	t    testing.TB
	http *http.Client
}

// New starts an App built from cfg (config.Testing() when nil) and returns a
// client bound to it. Everything is torn down with the test.
func New(t testing.TB, cfg *config.Config) *Client {
	t.Helper()
	if cfg == nil {
		cfg = config.Testing()
	}
	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}
	c := &Client{
		App: a,
		t:   t,
		http: &http.Client{
			Transport: handlerTransport{handler: a.Handler()},
			Jar:       jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	t.Cleanup(func() {
		a.Close()
	})
	return c
}

// URL is the absolute URL for path.
func (c *Client) URL(path string) string {
	return BaseURL + path
}

func (c *Client) Get(path string) *Response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.URL(path), nil)
	if err != nil {
		c.t.Fatalf("GET %s: %v", path, err)
	}
	return c.Do(req)
}

func (c *Client) PostForm(path string, values url.Values) *Response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.URL(path), strings.NewReader(values.Encode()))
	if err != nil {
		c.t.Fatalf("POST %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.Do(req)
}

// Do sends req with the client's cookies and reads the whole response.
func (c *Client) Do(req *http.Request) *Response {
	c.t.Helper()
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read %s body: %v", req.URL.Path, err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: string(body)}
}

// Register creates an account through the registration form.
func (c *Client) Register(username, email, password string) *Response {
	c.t.Helper()
	return c.PostForm("/auth/register", url.Values{
		"username":  {username},
		"email":     {email},
		"password":  {password},
		"password2": {password},
	})
}

// Login submits the login form.
func (c *Client) Login(username, password string) *Response {
	c.t.Helper()
	return c.PostForm("/auth/login", url.Values{
		"username": {username},
		"password": {password},
	})
}

// Logout ends the client's session.
func (c *Client) Logout() *Response {
	c.t.Helper()
	return c.PostForm("/auth/logout", nil)
}

// Cookie returns the named cookie the jar would send to the app.
func (c *Client) Cookie(name string) *http.Cookie {
	u, _ := url.Parse(BaseURL)
	for _, cookie := range c.http.Jar.Cookies(u) {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// WithoutCookies returns a second client on the same app with an empty jar.
func (c *Client) WithoutCookies() *Client {
	jar, _ := cookiejar.New(nil)
	clone := *c
	httpClient := *c.http
	httpClient.Jar = jar
	clone.http = &httpClient
	return &clone
}
