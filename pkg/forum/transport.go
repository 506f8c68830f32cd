package forum

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"

	errs "gmdaily/pkg/errors"
	"gmdaily/pkg/logger"
	"gmdaily/pkg/ratelimit"
	"gmdaily/pkg/retry"
)

// TransportOptions configures the resty-backed Doer
type TransportOptions struct {
	BaseURL          string
	UserAgent        string
	Timeout          time.Duration
	CloudflareBypass bool
	Limiter          ratelimit.Limiter
	// Attempts bounds retries of idempotent requests on network and 5xx errors
	Attempts int
	Logger   logger.Logger
}

// RestyTransport is the production Doer. Two resty clients share one
// cookie jar and http.Transport; the second never follows redirects.
type RestyTransport struct {
	client     *resty.Client
	noRedirect *resty.Client
	jar        http.CookieJar
	retry      *retry.Config
	log        logger.Logger
}

// NewRestyTransport creates the forum HTTP client
func NewRestyTransport(opts TransportOptions) (*RestyTransport, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Host == "" {
		return nil, errs.Parsing("invalid base URL %q", opts.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited{}
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}

	httpTransport := http.DefaultTransport.(*http.Transport).Clone()
	var rt http.RoundTripper = httpTransport
	if opts.CloudflareBypass {
		rt = cloudflarebp.AddCloudFlareByPass(rt)
	}

	newClient := func(policy resty.RedirectPolicy) *resty.Client {
		c := resty.New()
		c.SetTransport(rt)
		c.SetCookieJar(jar)
		c.SetTimeout(opts.Timeout)
		if opts.UserAgent != "" {
			c.SetHeader("User-Agent", opts.UserAgent)
		}
		c.SetHeader("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
		c.SetRedirectPolicy(policy)
		c.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return opts.Limiter.Wait(req.Context())
		})
		return c
	}

	return &RestyTransport{
		client:     newClient(resty.DomainCheckRedirectPolicy(base.Hostname())),
		noRedirect: newClient(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		})),
		jar:        jar,
		retry:      retry.ForTransport(opts.Attempts, opts.Logger),
		log:        opts.Logger,
	}, nil
}

// Jar returns the cookie jar shared by every request
func (t *RestyTransport) Jar() http.CookieJar {
	return t.jar
}

// Do implements Doer. GET and HEAD are retried on retryable failures unless
// marked NoRetry; state-changing requests are sent exactly once.
func (t *RestyTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.NoRetry || (req.Method != http.MethodGet && req.Method != http.MethodHead) {
		return t.once(ctx, req)
	}
	return retry.DoWithResult(ctx, t.retry, func(ctx context.Context, _ int) (*Response, error) {
		resp, err := t.once(ctx, req)
		if err != nil {
			return nil, err
		}
		if errs.IsRetryableStatusCode(resp.StatusCode) {
			return resp, errs.FromStatus(resp.StatusCode, req.URL)
		}
		return resp, nil
	})
}

func (t *RestyTransport) once(ctx context.Context, req *Request) (*Response, error) {
	client := t.client
	if req.NoRedirect {
		client = t.noRedirect
	}

	r := client.R().SetContext(ctx)
	for key, values := range req.Header {
		for _, v := range values {
			r.SetHeader(key, v)
		}
	}
	if req.Form != nil {
		r.SetFormDataFromValues(req.Form)
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.Network(err)
	}

	return &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}, nil
}
