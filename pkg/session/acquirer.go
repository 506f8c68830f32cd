package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gmdaily/pkg/captcha"
	errs "gmdaily/pkg/errors"
	"gmdaily/pkg/forum"
	"gmdaily/pkg/logger"
	"gmdaily/pkg/retry"
)

// Factory creates the empty per-account session the acquirer fills in
type Factory func() (*forum.Session, error)

// Options bounds the password login loop
type Options struct {
	RetryBudget int
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

// DefaultOptions matches the config defaults
func DefaultOptions() Options {
	return Options{RetryBudget: 5, MinDelay: 2 * time.Second, MaxDelay: 5 * time.Second}
}

// Report describes how a session was obtained
type Report struct {
	Session *forum.Session
	State   State
	// Path is the outcome that authenticated: CookieValid,
	// AlreadyAuthenticated or NeedsCaptchaLogin (a solved captcha).
	Path     Outcome
	Attempts int
}

// Acquirer runs the session acquisition state machine
type Acquirer struct {
	newSession Factory
	recognizer captcha.Recognizer
	opts       Options
	log        logger.Logger
}

// NewAcquirer creates an acquirer. A nil recognizer submits empty answers.
func NewAcquirer(newSession Factory, recognizer captcha.Recognizer, opts Options, log logger.Logger) *Acquirer {
	if recognizer == nil {
		recognizer = captcha.Disabled{}
	}
	if opts.RetryBudget <= 0 {
		opts.RetryBudget = DefaultOptions().RetryBudget
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Acquirer{newSession: newSession, recognizer: recognizer, opts: opts, log: log}
}

// Acquire returns an authenticated session or an *errors.AuthError
func (a *Acquirer) Acquire(ctx context.Context, creds Credentials) (*forum.Session, error) {
	report, err := a.AcquireWithReport(ctx, creds)
	if err != nil {
		return nil, err
	}
	return report.Session, nil
}

// AcquireWithReport is Acquire plus the path that succeeded. Every failure
// is returned as an *errors.AuthError.
func (a *Acquirer) AcquireWithReport(ctx context.Context, creds Credentials) (*Report, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	sess, err := a.newSession()
	if err != nil {
		return nil, &errs.AuthError{Reason: fmt.Sprintf("cannot create session: %v", err)}
	}

	m := &machine{Acquirer: a, sess: sess, creds: creds, state: StateIdle}
	return m.run(ctx)
}

type machine struct {
	*Acquirer
	sess     *forum.Session
	creds    Credentials
	state    State
	attempts int
	consumed map[string]bool
}

func (m *machine) transition(to State) {
	m.log.DebugWithFields("session state change", map[string]interface{}{
		"from": m.state.String(),
		"to":   to.String(),
	})
	m.state = to
}

func (m *machine) run(ctx context.Context) (*Report, error) {
	var reasons []string

	if m.creds.HasCookie() {
		m.transition(StateCookieAttempted)
		switch out := m.probeCookie(ctx).(type) {
		case CookieValid:
			return m.authenticated(out), nil
		case Failed:
			m.log.WithField("reason", out.Reason).Info("cookie login failed")
			reasons = append(reasons, "cookie: "+out.Reason)
		}
	}

	if ctx.Err() == nil && m.creds.HasPassword() {
		m.transition(StatePasswordAttempted)
		path, err := m.passwordLogin(ctx)
		if err == nil {
			return m.authenticated(path), nil
		}
		reasons = append(reasons, "password: "+err.Error())
	} else if m.creds.HasCookie() && !m.creds.HasPassword() {
		reasons = append(reasons, "no username and password to fall back to")
	}

	if err := ctx.Err(); err != nil {
		reasons = append(reasons, err.Error())
	}

	m.transition(StateFailed)
	m.sess.Authenticated = false
	return nil, &errs.AuthError{Reason: joinReasons(reasons), Attempts: m.attempts}
}

func (m *machine) authenticated(path Outcome) *Report {
	m.transition(StateAuthenticated)
	m.sess.Authenticated = true
	m.log.WithField("path", path.String()).Info("session authenticated")
	return &Report{Session: m.sess, State: m.state, Path: path, Attempts: m.attempts}
}

// probeCookie loads the cookie and checks the profile page without
// following redirects.
func (m *machine) probeCookie(ctx context.Context) Outcome {
	if n := m.sess.LoadCookie(m.creds.Cookie); n == 0 {
		return Failed{Reason: "cookie string has no name=value pairs"}
	}

	resp, err := m.sess.Get(ctx, forum.ProfilePath, forum.WithoutRedirects())
	if err != nil {
		return Failed{Reason: fmt.Sprintf("profile probe: %v", err)}
	}
	if !forum.IsAuthenticatedProfile(resp.StatusCode, resp.Text(), m.creds.Username) {
		if resp.StatusCode != 200 {
			return Failed{Reason: fmt.Sprintf("profile probe returned status %d", resp.StatusCode)}
		}
		return Failed{Reason: "profile page is not authenticated for this account"}
	}

	// the probe page may already carry a formhash; the control panel is
	// authoritative but its absence does not invalidate the cookie
	if err := m.sess.RefreshFormHash(ctx); err != nil {
		m.log.WithError(err).Warn("could not refresh formhash after cookie login")
	}
	return CookieValid{}
}

var errStaleChallenge = errors.New("captcha challenge already used")

// loginRejected is a submission the server answered without success
type loginRejected struct {
	reason string
}

func (e *loginRejected) Error() string {
	if e.reason == "" {
		return "login rejected without a reason"
	}
	return "login rejected: " + e.reason
}

// passwordLogin runs up to RetryBudget attempts with jittered pauses
func (m *machine) passwordLogin(ctx context.Context) (Outcome, error) {
	m.consumed = make(map[string]bool)

	cfg := &retry.Config{
		MaxAttempts: m.opts.RetryBudget,
		Backoff:     retry.NewUniformJitter(m.opts.MinDelay, m.opts.MaxDelay, nil),
		RetryIf: func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
		Logger: m.log,
	}

	return retry.DoWithResult(ctx, cfg, func(ctx context.Context, attempt int) (Outcome, error) {
		m.attempts = attempt
		out, err := m.attempt(ctx)
		if err != nil {
			m.log.WithError(err).WarnWithFields("login attempt failed", map[string]interface{}{
				"attempt": attempt,
				"budget":  m.opts.RetryBudget,
			})
		}
		return out, err
	})
}

// attempt performs one popup → captcha → submit round
func (m *machine) attempt(ctx context.Context) (Outcome, error) {
	out, err := m.probeLoginPopup(ctx)
	if err != nil {
		return nil, err
	}

	switch probe := out.(type) {
	case AlreadyAuthenticated:
		if err := m.sess.RefreshFormHash(ctx); err != nil {
			return nil, fmt.Errorf("popup reported a session but control panel disagrees: %w", err)
		}
		return probe, nil
	case Failed:
		return nil, errors.New(probe.Reason)
	case NeedsCaptchaLogin:
		return m.submit(ctx, probe)
	default:
		return nil, fmt.Errorf("unexpected popup outcome %s", out)
	}
}

func (m *machine) probeLoginPopup(ctx context.Context) (Outcome, error) {
	resp, err := m.sess.Get(ctx, forum.LoginPopupPath, forum.WithAJAX())
	if err != nil {
		return nil, err
	}
	params, authed, err := forum.ParseLoginPopup(resp.Text())
	if authed {
		return AlreadyAuthenticated{}, nil
	}
	if err != nil {
		return Failed{Reason: err.Error()}, nil
	}
	return NeedsCaptchaLogin{Params: params}, nil
}

func (m *machine) submit(ctx context.Context, probe NeedsCaptchaLogin) (Outcome, error) {
	params := probe.Params
	if m.consumed[params.SecCodeHash] {
		return nil, fmt.Errorf("%w: %s", errStaleChallenge, params.SecCodeHash)
	}
	m.consumed[params.SecCodeHash] = true

	img, err := m.sess.Get(ctx, forum.CaptchaPath(params.SecCodeHash))
	if err != nil {
		return nil, fmt.Errorf("fetch captcha image: %w", err)
	}

	answer, err := m.recognizer.Recognize(ctx, img.Body)
	if err != nil || answer == "" {
		// the server decides; an empty guess is still submitted
		m.log.WithError(err).Warn("captcha recognizer returned no answer")
	}
	params.Answer = answer

	form := forum.LoginForm(params, m.creds.Username, m.creds.Password,
		m.creds.QuestionID, m.creds.Answer, m.sess.URL(forum.ForumIndexPath))
	resp, err := m.sess.Post(ctx, forum.LoginSubmitPath(params.LoginHash), form, forum.WithAJAX())
	if err != nil {
		return nil, fmt.Errorf("submit login: %w", err)
	}

	body := resp.Text()
	if !forum.LoginSucceeded(body) {
		return nil, &loginRejected{reason: forum.LoginErrorReason(body)}
	}

	if err := m.sess.RefreshFormHash(ctx); err != nil {
		return nil, fmt.Errorf("login accepted but control panel has no formhash: %w", err)
	}
	return NeedsCaptchaLogin{Params: params}, nil
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "no login path succeeded"
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
