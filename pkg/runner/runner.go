package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gmdaily/pkg/auth"
	"gmdaily/pkg/captcha"
	"gmdaily/pkg/checkpoint"
	"gmdaily/pkg/config"
	errs "gmdaily/pkg/errors"
	"gmdaily/pkg/feed"
	"gmdaily/pkg/forum"
	"gmdaily/pkg/logger"
	"gmdaily/pkg/notify"
	"gmdaily/pkg/ratelimit"
	"gmdaily/pkg/report"
	"gmdaily/pkg/retry"
	"gmdaily/pkg/session"
	"gmdaily/pkg/tasks"
)

// AccountStore supplies credentials for accounts the config only names
type AccountStore interface {
	Retrieve(name string) (*auth.Account, error)
	List() ([]*auth.Account, error)
}

// Runner is the task orchestrator. Accounts are processed one at a time,
// each with its own session.
type Runner struct {
	cfg         *config.Config
	newSession  session.Factory
	recognizer  captcha.Recognizer
	notifier    notify.Sender
	checkpoints *checkpoint.Manager
	store       AccountStore
	log         logger.Logger
	newRunID    func() string
}

// Option customises a Runner
type Option func(*Runner)

// WithSessionFactory replaces the resty-backed session factory
func WithSessionFactory(f session.Factory) Option {
	return func(r *Runner) { r.newSession = f }
}

// WithRecognizer sets the captcha recognizer
func WithRecognizer(rec captcha.Recognizer) Option {
	return func(r *Runner) { r.recognizer = rec }
}

// WithNotifier sets where reports are sent
func WithNotifier(s notify.Sender) Option {
	return func(r *Runner) { r.notifier = s }
}

// WithCheckpoints enables skipping accounts already done today
func WithCheckpoints(m *checkpoint.Manager) Option {
	return func(r *Runner) { r.checkpoints = m }
}

// WithAccountStore fills missing credentials from stored accounts
func WithAccountStore(s AccountStore) Option {
	return func(r *Runner) { r.store = s }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// New creates a runner for cfg
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		notifier: notify.Nop{},
		log:      logger.GetLogger(),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.newSession == nil {
		limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
		r.newSession = NewSessionFactory(cfg, limiter, r.log)
	}
	if r.recognizer == nil {
		r.recognizer = RecognizerFor(cfg.Captcha)
	}
	return r
}

// NewSessionFactory builds sessions over a fresh resty transport and cookie
// jar. The limiter is shared so all accounts together respect one budget.
func NewSessionFactory(cfg *config.Config, limiter ratelimit.Limiter, log logger.Logger) session.Factory {
	return func() (*forum.Session, error) {
		transport, err := forum.NewRestyTransport(forum.TransportOptions{
			BaseURL:          cfg.Forum.BaseURL,
			UserAgent:        cfg.Forum.UserAgent,
			Timeout:          cfg.Forum.Timeout,
			CloudflareBypass: cfg.Forum.CloudflareBypass,
			Limiter:          limiter,
			Attempts:         cfg.Forum.Attempts,
			Logger:           log,
		})
		if err != nil {
			return nil, err
		}
		return forum.NewSession(transport, transport.Jar(), cfg.Forum.BaseURL, log)
	}
}

// RecognizerFor returns the HTTP recognizer when an endpoint is configured
func RecognizerFor(cfg config.CaptchaConfig) captcha.Recognizer {
	if cfg.Endpoint == "" {
		return captcha.Disabled{}
	}
	return captcha.NewHTTPRecognizer(cfg.Endpoint, cfg.Token, cfg.Timeout)
}

// Options selects what a run covers
type Options struct {
	// Account limits the run to one named account
	Account string
	// Force ignores today's checkpoints
	Force bool
}

// Outcome is what happened to one account
type Outcome struct {
	Account string
	Skipped bool
	// Err is an *errors.AuthError when no session could be obtained, or the
	// context error when the run was interrupted.
	Err    error
	Path   string
	Feed   feed.Result
	Report *report.Report
}

// Summary collects the outcomes of a run
type Summary struct {
	RunID    string
	Outcomes []Outcome
}

// AuthFailures lists accounts that could not log in
func (s *Summary) AuthFailures() []string {
	var names []string
	for _, o := range s.Outcomes {
		if errs.IsAuthError(o.Err) {
			names = append(names, o.Account)
		}
	}
	return names
}

// Err is non-nil when any account failed to authenticate
func (s *Summary) Err() error {
	var all []error
	for _, o := range s.Outcomes {
		if errs.IsAuthError(o.Err) {
			all = append(all, fmt.Errorf("%s: %w", o.Account, o.Err))
		}
	}
	return errors.Join(all...)
}

// Accounts resolves the accounts a run covers, filling credentials from the
// account store. With nothing configured every stored account is used.
func (r *Runner) Accounts(name string) ([]config.AccountConfig, error) {
	accounts := r.cfg.Accounts
	if len(accounts) == 0 && r.store != nil {
		stored, err := r.store.List()
		if err != nil {
			return nil, fmt.Errorf("list stored accounts: %w", err)
		}
		for _, a := range stored {
			accounts = append(accounts, config.AccountConfig{Name: a.Name})
		}
	}

	if name != "" {
		acct, ok := findAccount(accounts, name)
		if !ok {
			acct = config.AccountConfig{Name: name}
		}
		accounts = []config.AccountConfig{acct}
	}
	if len(accounts) == 0 {
		return nil, errors.New("no accounts configured")
	}

	resolved := make([]config.AccountConfig, 0, len(accounts))
	for _, acct := range accounts {
		acct = r.fill(acct)
		if name != "" && !acct.HasCredentials() {
			return nil, fmt.Errorf("account %q has no credentials configured or stored", name)
		}
		resolved = append(resolved, acct)
	}
	return resolved, nil
}

func findAccount(accounts []config.AccountConfig, name string) (config.AccountConfig, bool) {
	for _, a := range accounts {
		if a.Name == name {
			return a, true
		}
	}
	return config.AccountConfig{}, false
}

func (r *Runner) fill(acct config.AccountConfig) config.AccountConfig {
	if r.store == nil || (acct.Cookie != "" && acct.Username != "" && acct.Password != "") {
		return acct
	}
	stored, err := r.store.Retrieve(acct.Name)
	if err != nil {
		if !acct.HasCredentials() {
			r.log.WithError(err).WithField("account", acct.Name).Debug("no stored credentials")
		}
		return acct
	}
	stored.Fill(&acct)
	return acct
}

func credentials(acct config.AccountConfig) session.Credentials {
	return session.Credentials{
		Cookie:     acct.Cookie,
		Username:   acct.Username,
		Password:   acct.Password,
		QuestionID: acct.QuestionID,
		Answer:     acct.Answer,
	}
}

// Run processes the selected accounts sequentially. It returns an error
// only when no account could be selected; per-account failures are in the
// Summary.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	accounts, err := r.Accounts(opts.Account)
	if err != nil {
		return nil, err
	}

	summary := &Summary{RunID: r.newRunID()}
	log := r.log.WithField("run_id", summary.RunID)
	log.WithField("accounts", len(accounts)).Info("daily run started")

	for _, acct := range accounts {
		if ctx.Err() != nil {
			break
		}
		summary.Outcomes = append(summary.Outcomes, r.runAccount(ctx, acct, summary.RunID, opts.Force))
	}

	log.WithField("auth_failures", len(summary.AuthFailures())).Info("daily run finished")
	return summary, ctx.Err()
}

// Login acquires a session for one account without running any task
func (r *Runner) Login(ctx context.Context, acct config.AccountConfig) (*session.Report, error) {
	acquirer := session.NewAcquirer(r.newSession, r.recognizer, session.Options{
		RetryBudget: r.cfg.Login.RetryBudget,
		MinDelay:    r.cfg.Login.MinDelay,
		MaxDelay:    r.cfg.Login.MaxDelay,
	}, r.log.WithField("account", acct.Name))
	return acquirer.AcquireWithReport(ctx, credentials(acct))
}

// Scan logs in and runs only the feed scan
func (r *Runner) Scan(ctx context.Context, acct config.AccountConfig, target, maxPages int) (feed.Result, error) {
	rep, err := r.Login(ctx, acct)
	if err != nil {
		return feed.Result{}, err
	}
	return r.scanner(acct.Name).Scan(ctx, rep.Session, target, maxPages), nil
}

func (r *Runner) scanner(account string) *feed.Scanner {
	return feed.NewScanner(feed.Options{MinDelay: r.cfg.Feed.MinDelay, MaxDelay: r.cfg.Feed.MaxDelay},
		r.log.WithField("account", account))
}

func (r *Runner) runAccount(ctx context.Context, acct config.AccountConfig, runID string, force bool) Outcome {
	log := r.log.WithFields(map[string]interface{}{"account": acct.Name, "run_id": runID})
	out := Outcome{Account: acct.Name}

	if !force && r.checkpoints != nil && r.checkpoints.DoneToday(acct.Name) {
		log.Info("already completed today; skipping")
		out.Skipped = true
		return out
	}

	var rec *checkpoint.Record
	if r.checkpoints != nil {
		rec = r.checkpoints.Begin(acct.Name, runID)
	}

	login, err := r.Login(ctx, acct)
	if err != nil {
		out.Err = err
		log.WithError(err).Error("could not obtain a session")
		notify.Deliver(ctx, r.notifier, log, "GameMale daily tasks", report.Failure(acct.Name, err.Error()))
		if rec != nil {
			rec.SetTask("login", tasks.StatusFailed.String())
			r.saveCheckpoint(rec, log)
		}
		return out
	}
	out.Path = login.Path.String()
	sess := login.Session

	pacer := retry.NewPacer(r.cfg.Tasks.Pause, 2*r.cfg.Tasks.Pause)
	runner := tasks.New(sess, tasks.Options{
		Pause:             r.cfg.Tasks.Pause,
		AutoExchange:      r.cfg.Tasks.AutoExchange,
		ExchangeThreshold: r.cfg.Tasks.ExchangeThreshold,
		Password:          acct.Password,
	}, log)

	rep := &report.Report{Account: acct.Name, RunID: runID, Date: time.Now()}
	add := func(res tasks.Result) {
		rep.Results = append(rep.Results, res)
		if rec != nil {
			rec.SetTask(res.Name, res.Status.String())
		}
	}

	steps := []func(){
		func() {
			if r.cfg.Tasks.CheckIn {
				add(runner.CheckIn(ctx))
			}
		},
		func() {
			if r.cfg.Tasks.Lottery {
				add(runner.Lottery(ctx))
			}
		},
		func() {
			out.Feed = r.scanner(acct.Name).Scan(ctx, sess, r.cfg.Feed.TargetSuccess, r.cfg.Feed.MaxPages)
			add(feedResult(out.Feed, r.cfg.Feed.TargetSuccess))
		},
		func() {
			if !r.cfg.Tasks.Greet {
				return
			}
			targets := tasks.GreetTargets(out.Feed.Processed, r.cfg.Tasks.GreetCount)
			if len(targets) == 0 {
				return
			}
			add(runner.VisitSpaces(ctx, targets))
			add(runner.Poke(ctx, targets))
		},
		func() {
			credits, exchange := runner.CreditsAndExchange(ctx)
			rep.Credits = credits
			if exchange != nil {
				add(*exchange)
			}
		},
		func() {
			if !r.cfg.Tasks.Summary {
				return
			}
			rows, err := runner.Summary(ctx)
			if err != nil {
				log.WithError(err).Warn("could not read reward summary")
				return
			}
			rep.Summary = rows
		},
	}

	for i, step := range steps {
		if i > 0 {
			if err := pacer.Pause(ctx); err != nil {
				break
			}
		}
		step()
	}

	out.Report = rep
	if err := ctx.Err(); err != nil {
		out.Err = err
		log.WithError(err).Warn("run interrupted")
		return out
	}

	ok, total := rep.Counts()
	log.WithFields(map[string]interface{}{"succeeded": ok, "total": total}).Info("account finished")
	notify.Deliver(ctx, r.notifier, log, rep.Title(), rep.Text())

	if rec != nil {
		rec.Successful = len(out.Feed.Successful)
		rec.Completed = true
		r.saveCheckpoint(rec, log)
	}
	return out
}

func (r *Runner) saveCheckpoint(rec *checkpoint.Record, log logger.Logger) {
	if err := r.checkpoints.Save(rec); err != nil {
		log.WithError(err).Warn("could not save checkpoint")
	}
}

// feedResult turns a scan into a report line. Any reaction counts as success.
func feedResult(res feed.Result, target int) tasks.Result {
	out := tasks.Result{
		Name:   tasks.NameFeed,
		Status: tasks.StatusFailed,
		Detail: fmt.Sprintf("%d/%d reactions, %d already, %d unknown (%s)",
			len(res.Successful), target, len(res.AlreadyDone), len(res.Unknown), res.Stop),
	}
	if len(res.Successful) > 0 {
		out.Status = tasks.StatusSuccess
	}
	return out
}
