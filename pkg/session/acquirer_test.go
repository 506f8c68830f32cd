package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmdaily/pkg/captcha"
	errs "gmdaily/pkg/errors"
	"gmdaily/pkg/forum"
	"gmdaily/pkg/forum/forumtest"
	"gmdaily/pkg/logger"
)

const (
	profileOK      = `<ul><li><a href="home.php?mod=spacecp">我的资料</a></li></ul><span>Alice</span>`
	profileGuest   = `<a href="member.php?mod=logging&action=login">登录</a>`
	controlPanel   = `<input type="hidden" name="formhash" value="cafe0001" />`
	loginAccepted  = `<root><![CDATA[<script>succeedhandle_login('forum.php', '欢迎您回来，Alice', {});</script>]]></root>`
	loginBadAnswer = `<root><![CDATA[<script>errorhandle_login('验证码填写错误', {});</script>]]></root>`
	popupWelcome   = `<root><![CDATA[欢迎您回来，Alice]]></root>`
)

func popup(loginHash, secHash string) string {
	return fmt.Sprintf(`<root><![CDATA[<div id="main_messaqge_%s"><form name="login">
<input type="hidden" name="formhash" value="f00d0001" /><input type="password" name="password" />
<span id="seccode_%s"></span></form></div>]]></root>`, loginHash, secHash)
}

func testOptions(budget int) Options {
	return Options{RetryBudget: budget}
}

func newTestAcquirer(doer *forumtest.Doer, rec captcha.Recognizer, budget int) *Acquirer {
	factory := func() (*forum.Session, error) { return doer.Session(), nil }
	return NewAcquirer(factory, rec, testOptions(budget), logger.NewNopLogger())
}

func countingRecognizer(answer string, calls *int) captcha.Recognizer {
	return captcha.Func(func(context.Context, []byte) (string, error) {
		*calls++
		return answer, nil
	})
}

func TestAcquireFailsFastWithoutCredentials(t *testing.T) {
	bundles := []Credentials{
		{},
		{Username: "alice"},
		{Password: "secret"},
		{QuestionID: 2, Answer: "blue"},
	}

	for _, creds := range bundles {
		doer := forumtest.New()
		created := false
		acq := NewAcquirer(func() (*forum.Session, error) {
			created = true
			return doer.Session(), nil
		}, nil, testOptions(3), logger.NewNopLogger())

		sess, err := acq.Acquire(context.Background(), creds)
		assert.Nil(t, sess)
		assert.True(t, errs.IsAuthError(err), "%+v", creds)
		assert.Empty(t, doer.Requests(), "no network call for %+v", creds)
		assert.False(t, created)
	}
}

func TestAcquireCookieValidSkipsPassword(t *testing.T) {
	doer := forumtest.New().
		On(http.MethodGet, forum.ProfilePath, forumtest.OK(profileOK)).
		On(http.MethodGet, forum.ControlPanelPath, forumtest.OK(controlPanel))
	calls := 0
	acq := newTestAcquirer(doer, countingRecognizer("x", &calls), 3)

	report, err := acq.AcquireWithReport(context.Background(), Credentials{
		Cookie:   "cdb_auth=abc",
		Username: "alice",
		Password: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, report.State)
	assert.IsType(t, CookieValid{}, report.Path)
	assert.True(t, report.Session.Authenticated)
	assert.Equal(t, "cafe0001", report.Session.FormHash)

	assert.Zero(t, doer.Count("member.php"), "password login never attempted")
	assert.Zero(t, calls)

	probe := doer.Requests()[0]
	assert.True(t, probe.NoRedirect)
}

func TestAcquireCookieForWrongAccountFallsThrough(t *testing.T) {
	doer := forumtest.New().
		On(http.MethodGet, forum.ProfilePath, forumtest.OK(profileOK)).
		On(http.MethodGet, "action=login&infloat", forumtest.OK(popup("L1", "S1"))).
		On(http.MethodGet, "mod=seccode", forumtest.OK("PNG")).
		On(http.MethodPost, "loginsubmit=yes", forumtest.OK(loginAccepted)).
		On(http.MethodGet, forum.ControlPanelPath, forumtest.OK(controlPanel))
	calls := 0
	acq := newTestAcquirer(doer, countingRecognizer("k7q2", &calls), 3)

	report, err := acq.AcquireWithReport(context.Background(), Credentials{
		Cookie:   "cdb_auth=abc",
		Username: "bob",
		Password: "secret",
	})
	require.NoError(t, err)
	assert.IsType(t, NeedsCaptchaLogin{}, report.Path)
	assert.Equal(t, 1, report.Attempts)
	assert.Equal(t, 1, calls)
}

func TestAcquireCookieOnlyFailure(t *testing.T) {
	doer := forumtest.New().
		On(http.MethodGet, forum.ProfilePath, forumtest.Status(http.StatusFound, ""))
	acq := newTestAcquirer(doer, nil, 3)

	_, err := acq.Acquire(context.Background(), Credentials{Cookie: "cdb_auth=expired"})
	var authErr *errs.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, "status 302")
	assert.Contains(t, authErr.Reason, "no username and password")
	assert.Equal(t, 1, len(doer.Requests()))
}

func TestAcquirePopupAlreadyAuthenticatedSkipsCaptcha(t *testing.T) {
	doer := forumtest.New().
		On(http.MethodGet, forum.ProfilePath, forumtest.OK(profileGuest)).
		On(http.MethodGet, "action=login&infloat", forumtest.OK(popupWelcome)).
		On(http.MethodGet, forum.ControlPanelPath, forumtest.OK(controlPanel))
	calls := 0
	acq := newTestAcquirer(doer, countingRecognizer("x", &calls), 3)

	report, err := acq.AcquireWithReport(context.Background(), Credentials{
		Cookie:   "cdb_auth=stale",
		Username: "alice",
		Password: "secret",
	})
	require.NoError(t, err)
	assert.IsType(t, AlreadyAuthenticated{}, report.Path)
	assert.Zero(t, calls, "captcha never consumed")
	assert.Zero(t, doer.Count("mod=seccode"))
	assert.Zero(t, doer.Count("loginsubmit=yes"))
	assert.Equal(t, "cafe0001", report.Session.FormHash)
}

func TestAcquirePasswordRetriesThenSucceeds(t *testing.T) {
	doer := forumtest.New().
		On(http.MethodGet, "action=login&infloat",
			forumtest.OK(popup("L1", "S1")),
			forumtest.OK(popup("L2", "S2")),
			forumtest.OK(popup("L3", "S3"))).
		On(http.MethodGet, "mod=seccode", forumtest.OK("PNG")).
		On(http.MethodPost, "loginsubmit=yes",
			forumtest.OK(loginBadAnswer),
			forumtest.OK(loginBadAnswer),
			forumtest.OK(loginAccepted)).
		On(http.MethodGet, forum.ControlPanelPath, forumtest.OK(controlPanel))
	calls := 0
	acq := newTestAcquirer(doer, countingRecognizer("abcd", &calls), 5)

	report, err := acq.AcquireWithReport(context.Background(), Credentials{Username: "alice", Password: "secret", QuestionID: 1, Answer: "blue"})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Attempts)
	assert.Equal(t, 3, calls)

	var submits []forum.Request
	for _, req := range doer.Requests() {
		if req.Method == http.MethodPost {
			submits = append(submits, req)
		}
	}
	require.Len(t, submits, 3)
	last := submits[2]
	assert.Contains(t, last.URL, "loginhash=L3")
	assert.Equal(t, "S3", last.Form.Get("seccodehash"))
	assert.Equal(t, "abcd", last.Form.Get("seccodeverify"))
	assert.Equal(t, "f00d0001", last.Form.Get("formhash"))
	assert.Equal(t, "1", last.Form.Get("questionid"))
	assert.Equal(t, "blue", last.Form.Get("answer"))
	assert.Equal(t, "XMLHttpRequest", last.Header.Get("X-Requested-With"))
}

func TestAcquireRespectsRetryBudget(t *testing.T) {
	doer := forumtest.New()
	// each popup fetch hands out a new challenge
	popups := make([]forumtest.Reply, 0, 10)
	for i := 1; i <= 10; i++ {
		popups = append(popups, forumtest.OK(popup(fmt.Sprintf("L%d", i), fmt.Sprintf("S%d", i))))
	}
	doer.On(http.MethodGet, "action=login&infloat", popups...).
		On(http.MethodGet, "mod=seccode", forumtest.OK("PNG")).
		On(http.MethodPost, "loginsubmit=yes", forumtest.OK(loginBadAnswer))

	acq := newTestAcquirer(doer, captcha.Func(func(context.Context, []byte) (string, error) {
		return "", errors.New("ocr down")
	}), 4)

	_, err := acq.Acquire(context.Background(), Credentials{Username: "alice", Password: "secret"})
	var authErr *errs.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 4, authErr.Attempts)
	assert.Contains(t, authErr.Reason, "验证码填写错误")
	assert.Equal(t, 4, doer.Count("loginsubmit=yes"))
	assert.Equal(t, 4, doer.Count("action=login&infloat"))
}

func TestAcquireNeverReusesChallenge(t *testing.T) {
	doer := forumtest.New().
		On(http.MethodGet, "action=login&infloat", forumtest.OK(popup("L1", "SAME"))).
		On(http.MethodGet, "mod=seccode", forumtest.OK("PNG")).
		On(http.MethodPost, "loginsubmit=yes", forumtest.OK(loginBadAnswer))
	acq := newTestAcquirer(doer, captcha.Func(func(context.Context, []byte) (string, error) {
		return "guess", nil
	}), 3)

	_, err := acq.Acquire(context.Background(), Credentials{Username: "alice", Password: "secret"})
	require.True(t, errs.IsAuthError(err))
	assert.Contains(t, err.Error(), "already used")

	assert.Equal(t, 3, doer.Count("action=login&infloat"))
	assert.Equal(t, 1, doer.Count("mod=seccode"), "stale challenge is never fetched again")
	assert.Equal(t, 1, doer.Count("loginsubmit=yes"), "stale challenge is never submitted")
}

func TestAcquirePopupParseFailureIsPerAttempt(t *testing.T) {
	doer := forumtest.New().
		On(http.MethodGet, "action=login&infloat",
			forumtest.OK(`<root><![CDATA[<form name="login"><input name="password"></form>]]></root>`),
			forumtest.OK(popup("L2", "S2"))).
		On(http.MethodGet, "mod=seccode", forumtest.OK("PNG")).
		On(http.MethodPost, "loginsubmit=yes", forumtest.OK(loginAccepted)).
		On(http.MethodGet, forum.ControlPanelPath, forumtest.OK(controlPanel))
	acq := newTestAcquirer(doer, nil, 3)

	report, err := acq.AcquireWithReport(context.Background(), Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempts)
}

func TestAcquireNetworkErrorsAreRetried(t *testing.T) {
	doer := forumtest.New().
		On(http.MethodGet, "action=login&infloat",
			forumtest.Fail(errs.Network(errors.New("timeout"))),
			forumtest.OK(popupWelcome)).
		On(http.MethodGet, forum.ControlPanelPath, forumtest.OK(controlPanel))
	acq := newTestAcquirer(doer, nil, 2)

	report, err := acq.AcquireWithReport(context.Background(), Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempts)
}

func TestAcquireCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doer := forumtest.New()
	acq := newTestAcquirer(doer, nil, 3)

	_, err := acq.Acquire(ctx, Credentials{Username: "alice", Password: "secret"})
	assert.True(t, errs.IsAuthError(err))
	assert.Empty(t, doer.Requests())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "cookie_attempted", StateCookieAttempted.String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StatePasswordAttempted.Terminal())
	assert.Equal(t, "failed: nope", Failed{Reason: "nope"}.String())
}

func TestAcquireErrorPopupDoesNotAuthenticate(t *testing.T) {
	errorPopup := `<root><![CDATA[<div class="alert_error">抱歉，您的请求来路不正确或表单验证串不符，无法提交</div>]]></root>`
	guestPanel := `<form name="login"><input type="hidden" name="formhash" value="beef0002" /><input type="password" name="password" /></form>`
	doer := forumtest.New().
		On(http.MethodGet, "action=login&infloat", forumtest.OK(errorPopup)).
		On(http.MethodGet, forum.ControlPanelPath, forumtest.OK(guestPanel))
	calls := 0
	acq := newTestAcquirer(doer, countingRecognizer("x", &calls), 2)

	report, err := acq.AcquireWithReport(context.Background(), Credentials{Username: "alice", Password: "secret"})
	require.Error(t, err)
	assert.Nil(t, report)

	var authErr *errs.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 2, authErr.Attempts)
	assert.Contains(t, authErr.Reason, "unrecognised login popup")
	assert.Zero(t, doer.Count("loginsubmit=yes"))
	assert.Zero(t, calls)
}

func TestAcquireErrorPopupThenChallenge(t *testing.T) {
	doer := forumtest.New().
		On(http.MethodGet, "action=login&infloat",
			forumtest.OK(`<root><![CDATA[<p>刷新过于频繁，请 3 秒后再试</p>]]></root>`),
			forumtest.OK(popup("L2", "S2"))).
		On(http.MethodGet, "mod=seccode", forumtest.OK("PNG")).
		On(http.MethodPost, "loginsubmit=yes", forumtest.OK(loginAccepted)).
		On(http.MethodGet, forum.ControlPanelPath, forumtest.OK(controlPanel))
	acq := newTestAcquirer(doer, nil, 3)

	report, err := acq.AcquireWithReport(context.Background(), Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	assert.IsType(t, NeedsCaptchaLogin{}, report.Path)
	assert.Equal(t, 2, report.Attempts)
	assert.Equal(t, 1, doer.Count("loginsubmit=yes"))
}
