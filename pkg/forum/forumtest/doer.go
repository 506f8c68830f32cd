// Package forumtest provides a scripted forum.Doer for tests.
package forumtest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"gmdaily/pkg/forum"
	"gmdaily/pkg/logger"
)

// Reply is one canned response. A non-nil Err is returned instead of a response.
type Reply struct {
	Status int
	Body   string
	Err    error
}

// OK replies 200 with body
func OK(body string) Reply { return Reply{Status: http.StatusOK, Body: body} }

// Status replies with an arbitrary status
func Status(code int, body string) Reply { return Reply{Status: code, Body: body} }

// Fail makes the request fail at the transport level
func Fail(err error) Reply { return Reply{Err: err} }

type route struct {
	method   string
	fragment string
	replies  []Reply
	served   int
}

// Doer matches requests against registered routes in registration order.
// A route's replies are served in sequence; the last one repeats.
type Doer struct {
	mu       sync.Mutex
	routes   []*route
	requests []forum.Request
}

// New creates an empty scripted Doer
func New() *Doer {
	return &Doer{}
}

// On registers replies for requests whose method matches (empty matches
// any) and whose URL contains fragment.
func (d *Doer) On(method, fragment string, replies ...Reply) *Doer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes = append(d.routes, &route{method: method, fragment: fragment, replies: replies})
	return d
}

// Do implements forum.Doer
func (d *Doer) Do(ctx context.Context, req *forum.Request) (*forum.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.requests = append(d.requests, *req)
	for _, r := range d.routes {
		if r.method != "" && r.method != req.Method {
			continue
		}
		if !strings.Contains(req.URL, r.fragment) || len(r.replies) == 0 {
			continue
		}
		idx := r.served
		if idx >= len(r.replies) {
			idx = len(r.replies) - 1
		}
		r.served++
		reply := r.replies[idx]
		if reply.Err != nil {
			return nil, reply.Err
		}
		return &forum.Response{StatusCode: reply.Status, Body: []byte(reply.Body)}, nil
	}
	return nil, fmt.Errorf("forumtest: no route for %s %s", req.Method, req.URL)
}

// Requests returns every request seen so far
func (d *Doer) Requests() []forum.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]forum.Request, len(d.requests))
	copy(out, d.requests)
	return out
}

// Count returns how many requests had a URL containing fragment
func (d *Doer) Count(fragment string) int {
	n := 0
	for _, req := range d.Requests() {
		if strings.Contains(req.URL, fragment) {
			n++
		}
	}
	return n
}

// Session returns an unauthenticated session on https://forum.test backed by d
func (d *Doer) Session() *forum.Session {
	sess, err := forum.NewSession(d, nil, "https://forum.test", logger.NewNopLogger())
	if err != nil {
		panic(err)
	}
	return sess
}
