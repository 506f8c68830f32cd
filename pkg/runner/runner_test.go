package runner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmdaily/pkg/auth"
	"gmdaily/pkg/auth/authtest"
	"gmdaily/pkg/captcha"
	"gmdaily/pkg/checkpoint"
	"gmdaily/pkg/config"
	errs "gmdaily/pkg/errors"
	"gmdaily/pkg/feed"
	"gmdaily/pkg/forum"
	"gmdaily/pkg/forum/forumtest"
	"gmdaily/pkg/logger"
	"gmdaily/pkg/tasks"
)

const (
	profileOK    = `<a href="home.php?mod=spacecp">我的资料</a>`
	controlPanel = `<input type="hidden" name="formhash" value="cafe0001" />`
	credits      = `<ul class="creditl"><li><em>旅程: </em>12 </li><li><em>血液: </em>20 滴</li></ul>`
	itemPage     = `<a id="click_blogid_9001_1" href="home.php?mod=spacecp&amp;ac=click&amp;op=add&amp;clickid=1&amp;idtype=blogid&amp;id=9001">like</a>`
)

// healthyForum scripts a forum where the cookie works and one feed entry
// can be reacted to. Control panel is registered last since its path is a
// prefix of the other spacecp pages.
func healthyForum() *forumtest.Doer {
	return forumtest.New().
		On(http.MethodGet, forum.ProfilePath, forumtest.OK(profileOK)).
		On(http.MethodGet, "k_misign-sign.html", forumtest.OK("签到成功")).
		On(http.MethodGet, "view=all&page=1", forumtest.OK(`<a href="blog-101-9001.html">entry</a>`)).
		On(http.MethodGet, "view=all&page=", forumtest.OK("")).
		On(http.MethodGet, "clickid=1&idtype=blogid&id=9001", forumtest.OK(`<root><![CDATA[表态成功]]></root>`)).
		On(http.MethodGet, "blog-101-9001.html", forumtest.OK(itemPage)).
		On(http.MethodGet, forum.CreditsPath, forumtest.OK(credits)).
		On(http.MethodGet, forum.ControlPanelPath, forumtest.OK(controlPanel))
}

func brokenForum() *forumtest.Doer {
	return forumtest.New().On(http.MethodGet, forum.ProfilePath, forumtest.Status(http.StatusFound, ""))
}

func testConfig(accounts ...config.AccountConfig) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Forum.BaseURL = "https://forum.test"
	cfg.Login = config.LoginConfig{RetryBudget: 1}
	cfg.Feed = config.FeedConfig{TargetSuccess: 1, MaxPages: 2}
	cfg.Tasks = config.TasksConfig{CheckIn: true}
	cfg.Accounts = accounts
	return cfg
}

// sequence hands out sessions over the given doers in order
func sequence(doers ...*forumtest.Doer) func() (*forum.Session, error) {
	var mu sync.Mutex
	next := 0
	return func() (*forum.Session, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(doers) {
			return nil, fmt.Errorf("no more sessions")
		}
		d := doers[next]
		next++
		return d.Session(), nil
	}
}

type sent struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (s *sent) Send(_ context.Context, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	s.bodies = append(s.bodies, message)
	return nil
}

func newTestRunner(t *testing.T, cfg *config.Config, opts ...Option) (*Runner, *sent, *checkpoint.Manager) {
	t.Helper()
	cp, err := checkpoint.NewManager(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)
	notes := &sent{}
	base := []Option{
		WithLogger(logger.NewNopLogger()),
		WithNotifier(notes),
		WithCheckpoints(cp),
	}
	r := New(cfg, append(base, opts...)...)
	r.newRunID = func() string { return "run-1" }
	return r, notes, cp
}

func TestRunAccountPipeline(t *testing.T) {
	doer := healthyForum()
	r, notes, cp := newTestRunner(t, testConfig(config.AccountConfig{Name: "alice", Cookie: "auth=1"}),
		WithSessionFactory(sequence(doer)))

	summary, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.NoError(t, summary.Err())
	assert.Equal(t, "run-1", summary.RunID)
	require.Len(t, summary.Outcomes, 1)

	out := summary.Outcomes[0]
	assert.Equal(t, "alice", out.Account)
	assert.Equal(t, "cookie_valid", out.Path)
	assert.Equal(t, []string{"101"}, out.Feed.Successful)
	assert.Equal(t, feed.StopQuotaReached, out.Feed.Stop)

	require.NotNil(t, out.Report)
	names := make([]string, 0, len(out.Report.Results))
	for _, res := range out.Report.Results {
		names = append(names, res.Name)
		assert.Equal(t, tasks.StatusSuccess, res.Status, res.Name)
	}
	assert.Equal(t, []string{tasks.NameCheckIn, tasks.NameFeed}, names)
	assert.NotEmpty(t, out.Report.Credits)

	require.Len(t, notes.titles, 1)
	assert.Equal(t, "GameMale daily tasks: alice", notes.titles[0])

	rec, err := cp.Load("alice")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Completed)
	assert.Equal(t, 1, rec.Successful)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, tasks.StatusSuccess.String(), rec.Tasks[tasks.NameCheckIn])
}

func TestRunSkipsAccountsDoneToday(t *testing.T) {
	first, second := healthyForum(), healthyForum()
	r, notes, _ := newTestRunner(t, testConfig(config.AccountConfig{Name: "alice", Cookie: "auth=1"}),
		WithSessionFactory(sequence(first, second)))

	_, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)

	summary, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 1)
	assert.True(t, summary.Outcomes[0].Skipped)
	assert.Empty(t, second.Requests())
	assert.Len(t, notes.titles, 1)

	summary, err = r.Run(context.Background(), Options{Force: true})
	require.NoError(t, err)
	assert.False(t, summary.Outcomes[0].Skipped)
	assert.NotEmpty(t, second.Requests())
}

func TestRunContinuesAfterAuthFailure(t *testing.T) {
	broken, healthy := brokenForum(), healthyForum()
	cfg := testConfig(
		config.AccountConfig{Name: "bob", Cookie: "auth=expired"},
		config.AccountConfig{Name: "alice", Cookie: "auth=1"},
	)
	r, notes, cp := newTestRunner(t, cfg, WithSessionFactory(sequence(broken, healthy)))

	summary, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 2)

	assert.True(t, errs.IsAuthError(summary.Outcomes[0].Err))
	assert.Nil(t, summary.Outcomes[0].Report)
	assert.NoError(t, summary.Outcomes[1].Err)
	assert.Equal(t, []string{"bob"}, summary.AuthFailures())
	require.Error(t, summary.Err())
	assert.Contains(t, summary.Err().Error(), "bob")

	require.Len(t, notes.bodies, 2)
	assert.Contains(t, notes.bodies[0], "failed for bob")

	rec, err := cp.Load("bob")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Completed)
	assert.False(t, cp.DoneToday("bob"), "a failed login is retried on the next run")
}

func TestRunSelectsOneAccount(t *testing.T) {
	doer := healthyForum()
	cfg := testConfig(
		config.AccountConfig{Name: "bob", Cookie: "auth=2"},
		config.AccountConfig{Name: "alice", Cookie: "auth=1"},
	)
	r, _, _ := newTestRunner(t, cfg, WithSessionFactory(sequence(doer)))

	summary, err := r.Run(context.Background(), Options{Account: "alice"})
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, "alice", summary.Outcomes[0].Account)
}

func TestRunFillsCredentialsFromStore(t *testing.T) {
	mgr, _ := authtest.NewManager()
	require.NoError(t, mgr.Store(&auth.Account{Name: "alice", Cookie: "auth=1"}))

	doer := healthyForum()
	r, _, _ := newTestRunner(t, testConfig(config.AccountConfig{Name: "alice"}),
		WithSessionFactory(sequence(doer)), WithAccountStore(mgr))

	summary, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.NoError(t, summary.Err())
	assert.Equal(t, "cookie_valid", summary.Outcomes[0].Path)
}

func TestRunUsesStoredAccountsWhenNoneConfigured(t *testing.T) {
	mgr, _ := authtest.NewManager()
	require.NoError(t, mgr.Store(&auth.Account{Name: "carol", Cookie: "auth=3"}))

	r, _, _ := newTestRunner(t, testConfig(), WithSessionFactory(sequence(healthyForum())), WithAccountStore(mgr))
	accounts, err := r.Accounts("")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "carol", accounts[0].Name)
	assert.Equal(t, "auth=3", accounts[0].Cookie)
}

func TestRunWithoutAccounts(t *testing.T) {
	r, _, _ := newTestRunner(t, testConfig())
	_, err := r.Run(context.Background(), Options{})
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, notes, _ := newTestRunner(t, testConfig(config.AccountConfig{Name: "alice", Cookie: "auth=1"}),
		WithSessionFactory(sequence(healthyForum())))
	summary, err := r.Run(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Empty(t, summary.Outcomes)
	assert.Empty(t, notes.titles)
}

func TestScanOnly(t *testing.T) {
	doer := healthyForum()
	r, _, _ := newTestRunner(t, testConfig(), WithSessionFactory(sequence(doer)))

	res, err := r.Scan(context.Background(), config.AccountConfig{Name: "alice", Cookie: "auth=1"}, 1, 1)
	require.NoError(t, err)
	assert.Len(t, res.Successful, 1)
	assert.Zero(t, doer.Count("k_misign-sign.html"))
}

func TestFeedResult(t *testing.T) {
	res := feedResult(feed.Result{
		Successful:  []string{"a"},
		AlreadyDone: []string{"b", "c"},
		Stop:        feed.StopFeedExhausted,
	}, 10)
	assert.Equal(t, tasks.StatusSuccess, res.Status)
	assert.Equal(t, "1/10 reactions, 2 already, 0 unknown (feed_exhausted)", res.Detail)

	res = feedResult(feed.Result{AlreadyDone: []string{"b"}, Stop: feed.StopNoNewItems}, 10)
	assert.Equal(t, tasks.StatusFailed, res.Status)
}

func TestRecognizerFor(t *testing.T) {
	assert.IsType(t, captcha.Disabled{}, RecognizerFor(config.CaptchaConfig{}))
	assert.IsType(t, &captcha.HTTPRecognizer{}, RecognizerFor(config.CaptchaConfig{Endpoint: "http://ocr.test"}))
}

func TestRunUnknownAccount(t *testing.T) {
	r, _, _ := newTestRunner(t, testConfig(config.AccountConfig{Name: "alice", Cookie: "auth=1"}))
	_, err := r.Run(context.Background(), Options{Account: "mallory"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mallory")
}

func TestSessionFactoryUsesConfiguredAttempts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Forum.BaseURL = srv.URL
	cfg.Forum.Attempts = 2
	sess, err := NewSessionFactory(cfg, nil, logger.NewNopLogger())()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err = sess.Get(ctx, forum.ProfilePath)
	require.Error(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}
