package forum

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	errs "gmdaily/pkg/errors"
	"gmdaily/pkg/logger"
)

// Session is the per-account HTTP context: a cookie-bearing Doer plus the
// most recent anti-forgery token. It is owned by one account run and is not
// safe for concurrent use.
type Session struct {
	FormHash      string
	Authenticated bool

	doer Doer
	jar  http.CookieJar
	base *url.URL
	log  logger.Logger
}

// NewSession creates a session against baseURL. jar must be the jar the
// Doer sends cookies from; a nil jar gets a fresh in-memory one.
func NewSession(doer Doer, jar http.CookieJar, baseURL string, log logger.Logger) (*Session, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid forum base URL %q", baseURL)
	}
	if jar == nil {
		jar, _ = cookiejar.New(nil)
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Session{doer: doer, jar: jar, base: base, log: log}, nil
}

// BaseURL returns the forum root
func (s *Session) BaseURL() *url.URL {
	u := *s.base
	return &u
}

// URL resolves a forum-relative path
func (s *Session) URL(path string) string {
	return Resolve(s.base, path)
}

// LoadCookie stores a browser "name=value; name2=value2" cookie string in
// the jar for the forum host. Malformed pairs are skipped.
func (s *Session) LoadCookie(raw string) int {
	var cookies []*http.Cookie
	for _, part := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:  name,
			Value: strings.TrimSpace(value),
			Path:  "/",
		})
	}
	if len(cookies) > 0 {
		s.jar.SetCookies(s.base, cookies)
	}
	return len(cookies)
}

// Cookies returns the cookies the jar would send to the forum
func (s *Session) Cookies() []*http.Cookie {
	return s.jar.Cookies(s.base)
}

// RequestOption customises a single request
type RequestOption func(*Request)

// WithReferer sets the Referer header. Relative references are resolved.
func WithReferer(ref string) RequestOption {
	return func(r *Request) {
		r.Header.Set("Referer", ref)
	}
}

// WithAJAX marks the request as a background XMLHttpRequest so the forum
// replies with its short machine-readable form.
func WithAJAX() RequestOption {
	return func(r *Request) {
		r.Header.Set("X-Requested-With", "XMLHttpRequest")
	}
}

// WithoutRedirects returns 3xx responses instead of following them
func WithoutRedirects() RequestOption {
	return func(r *Request) {
		r.NoRedirect = true
	}
}

// WithoutRetry marks a GET as state-changing so the transport sends it once
func WithoutRetry() RequestOption {
	return func(r *Request) {
		r.NoRetry = true
	}
}

// Get fetches a forum page
func (s *Session) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return s.Do(ctx, http.MethodGet, path, nil, opts...)
}

// Head issues a HEAD request
func (s *Session) Head(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return s.Do(ctx, http.MethodHead, path, nil, opts...)
}

// Post submits a form
func (s *Session) Post(ctx context.Context, path string, form url.Values, opts ...RequestOption) (*Response, error) {
	return s.Do(ctx, http.MethodPost, path, form, opts...)
}

// Do sends a request through the Doer. Non-2xx statuses other than the
// redirects a caller asked to see are returned as typed errors. Every
// successful body is scanned for a newer formhash.
func (s *Session) Do(ctx context.Context, method, path string, form url.Values, opts ...RequestOption) (*Response, error) {
	req := &Request{
		Method: method,
		URL:    s.URL(path),
		Header: http.Header{},
		Form:   form,
	}
	req.Header.Set("Referer", s.URL(ForumIndexPath))
	for _, opt := range opts {
		opt(req)
	}

	start := time.Now()
	resp, err := s.doer.Do(ctx, req)
	if err != nil {
		s.log.WithError(err).DebugWithFields("forum request failed", map[string]interface{}{
			"method": method,
			"url":    req.URL,
		})
		return nil, err
	}
	logger.LogRequest(s.log, method, req.URL, resp.StatusCode, time.Since(start))

	redirect := req.NoRedirect && resp.StatusCode >= 300 && resp.StatusCode < 400
	if !resp.OK() && !redirect {
		return resp, errs.FromStatus(resp.StatusCode, req.URL)
	}

	s.observe(resp.Text())
	return resp, nil
}

func (s *Session) observe(body string) {
	if fh := ExtractFormHash(body); fh != "" && fh != s.FormHash {
		s.FormHash = fh
	}
}

// RefreshFormHash loads the control panel and requires a formhash on it.
// A missing formhash or an embedded login form means the session is not
// actually authenticated.
func (s *Session) RefreshFormHash(ctx context.Context) error {
	resp, err := s.Get(ctx, ControlPanelPath)
	if err != nil {
		return err
	}
	body := resp.Text()
	doc, err := parseHTML(body)
	if err != nil {
		return err
	}
	if HasLoginForm(doc) {
		s.Authenticated = false
		return errs.Parsing("control panel asks for a login; session is a guest")
	}
	fh := ExtractFormHash(body)
	if fh == "" {
		return errs.Parsing("control panel has no formhash")
	}
	s.FormHash = fh
	return nil
}
