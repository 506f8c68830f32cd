package forum

import (
	"context"
	"net/http"
	"net/url"
)

// Request is a transport-neutral HTTP request. URL must be absolute.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Form   url.Values
	// NoRedirect returns 3xx responses as-is instead of following them
	NoRedirect bool
	// NoRetry sends a GET exactly once. Forum GETs that change state
	// (reactions, check-in, lottery draws) must not be repeated.
	NoRetry bool
}

// Response carries only what the forum logic inspects
type Response struct {
	StatusCode int
	Body       []byte
}

// Text returns the body as a string
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Doer performs one HTTP round-trip. Implementations own cookies and
// timeouts; transport failures are returned as *errors.Error with type
// ErrorTypeNetwork.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// DoerFunc adapts a function to the Doer interface
type DoerFunc func(ctx context.Context, req *Request) (*Response, error)

func (f DoerFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
