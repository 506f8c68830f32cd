package forum

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "gmdaily/pkg/errors"
)

const loginPopupFixture = `<?xml version="1.0" encoding="utf-8"?>
<root><![CDATA[
<div id="main_messaqge_LxAb1">
<form method="post" name="login" id="loginform_LxAb1" action="member.php?mod=logging&amp;action=login&amp;loginsubmit=yes&amp;loginhash=LxAb1">
<input type="hidden" name="formhash" value="9f8e7d6c" />
<input type="password" name="password" />
<span id="seccode_cSA8Kq2"></span>
<script>updateseccode('cSA8Kq2', '<sec>', 'member::logging');</script>
</form>
</div>
]]></root>`

func mustURL(t *testing.T, raw string) *url.URL {
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestExtractFormHash(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"hidden input", `<input type="hidden" name="formhash" value="a1b2c3d4" />`, "a1b2c3d4"},
		{"query string", `<a href="member.php?mod=logging&formhash=deadbeef">`, "deadbeef"},
		{"json", `{"formhash":"0badc0de"}`, "0badc0de"},
		{"absent", `<html></html>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFormHash(tt.body))
		})
	}
}

func TestIsAuthenticatedProfile(t *testing.T) {
	page := `<div>Alice 的个人资料</div><a>我的资料</a>`

	assert.True(t, IsAuthenticatedProfile(200, page, ""))
	assert.True(t, IsAuthenticatedProfile(200, page, "alice"), "username match is case-insensitive")
	assert.False(t, IsAuthenticatedProfile(200, page, "bob"), "token for another account")
	assert.False(t, IsAuthenticatedProfile(302, page, ""))
	assert.False(t, IsAuthenticatedProfile(200, `<a>登录</a> 我的资料`, ""))
	assert.True(t, IsAuthenticatedProfile(200, `formhash=abc123`, ""), "control panel formhash counts")
	assert.False(t, IsAuthenticatedProfile(200, `<p>hello</p>`, ""))
}

func TestParseLoginPopup(t *testing.T) {
	params, authed, err := ParseLoginPopup(loginPopupFixture)
	require.NoError(t, err)
	assert.False(t, authed)
	assert.Equal(t, "LxAb1", params.LoginHash)
	assert.Equal(t, "9f8e7d6c", params.FormHash)
	assert.Equal(t, "cSA8Kq2", params.SecCodeHash)
}

func TestParseLoginPopupAlreadyAuthenticated(t *testing.T) {
	_, authed, err := ParseLoginPopup(`<root><![CDATA[欢迎您回来，Alice]]></root>`)
	require.NoError(t, err)
	assert.True(t, authed)

	_, authed, err = ParseLoginPopup(`<root><![CDATA[<a href="member.php?mod=logging&amp;action=logout&amp;formhash=ab12">退出</a>]]></root>`)
	require.NoError(t, err)
	assert.True(t, authed, "a logout link means the server recognised the session")
}

func TestParseLoginPopupErrorReplyIsNotASession(t *testing.T) {
	replies := []string{
		`<root><![CDATA[<div class="alert_error">抱歉，您的请求来路不正确或表单验证串不符，无法提交</div>]]></root>`,
		`<root><![CDATA[<p>刷新过于频繁，请 3 秒后再试</p>]]></root>`,
		`<root><![CDATA[<div class="notice">您已登录</div>]]></root>`,
	}
	for _, body := range replies {
		_, authed, err := ParseLoginPopup(body)
		assert.False(t, authed, body)
		require.Error(t, err, body)
		assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))
		assert.Contains(t, err.Error(), "unrecognised login popup")
	}
}

func TestParseLoginPopupMissingTokens(t *testing.T) {
	body := `<root><![CDATA[<form name="login"><input name="password"></form><div id="main_messaqge_Q1"></div>]]></root>`
	_, authed, err := ParseLoginPopup(body)
	require.Error(t, err)
	assert.False(t, authed)
	assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))
	assert.Contains(t, err.Error(), "formhash")
	assert.Contains(t, err.Error(), "seccodehash")

	_, _, err = ParseLoginPopup("")
	assert.Error(t, err)
}

func TestLoginResultMarkers(t *testing.T) {
	assert.True(t, LoginSucceeded(`<script>succeedhandle_login('forum.php', '欢迎您回来', {});</script>`))
	assert.False(t, LoginSucceeded(`<script>errorhandle_login('验证码填写错误', {});</script>`))

	assert.Equal(t, "验证码填写错误", LoginErrorReason(`<root><![CDATA[<script>errorhandle_login('验证码填写错误', {});</script>]]></root>`))
	assert.Equal(t, "密码错误次数过多", LoginErrorReason(`<root><![CDATA[<p>密码错误次数过多</p>]]></root>`))
}

func TestFeedLinks(t *testing.T) {
	base := mustURL(t, "https://forum.test")
	body := `
<a href="blog-101-9001.html">A</a>
<a href="https://forum.test/blog-102-9002.html">B</a>
<a href="home.php?mod=space&amp;uid=5">profile</a>
<a href="/blog-101-9001.html?from=space">A again</a>`

	links := FeedLinks(body, base)
	assert.Equal(t, []string{
		"https://forum.test/blog-101-9001.html",
		"https://forum.test/blog-102-9002.html",
		"https://forum.test/blog-101-9001.html?from=space",
	}, links)

	assert.Empty(t, FeedLinks("<html>no items</html>", base))
}

func TestParseBlogURL(t *testing.T) {
	uid, id, ok := ParseBlogURL("https://forum.test/blog-4242-77.html")
	assert.True(t, ok)
	assert.Equal(t, "4242", uid)
	assert.Equal(t, "77", id)

	_, _, ok = ParseBlogURL("https://forum.test/thread-1-1-1.html")
	assert.False(t, ok)
}

func TestReactionURL(t *testing.T) {
	base := mustURL(t, "https://forum.test")
	page := `<a id="click_blogid_77_1" href="home.php?mod=spacecp&amp;ac=click&amp;op=add&amp;clickid=1&amp;idtype=blogid&amp;id=77&amp;hash=abc">震惊</a>
<a id="click_blogid_77_2" href="home.php?clickid=2">other</a>`

	link, ok, err := ReactionURL(page, base)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://forum.test/home.php?mod=spacecp&ac=click&op=add&clickid=1&idtype=blogid&id=77&hash=abc&inajax=1", link)

	_, ok, err = ReactionURL(`<a id="click_blogid_77_2" href="x">other</a>`, base)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReactionMarkers(t *testing.T) {
	assert.True(t, IsReactionSuccess(`<root><![CDATA[表态成功]]></root>`))
	assert.True(t, IsReactionAlreadyDone(`<root><![CDATA[您已表过态]]></root>`))
	assert.False(t, IsReactionSuccess(`<root><![CDATA[系统繁忙]]></root>`))
	assert.True(t, IsNoAccess(`您不能访问当前内容`))
}

func TestResolve(t *testing.T) {
	base := mustURL(t, "https://forum.test")
	assert.Equal(t, "https://forum.test/forum.php", Resolve(base, "forum.php"))
	assert.Equal(t, "https://forum.test/home.php?mod=spacecp", Resolve(base, "/home.php?mod=spacecp"))
	assert.Equal(t, "https://other.test/x", Resolve(base, "https://other.test/x"))

	sub := mustURL(t, "https://forum.test/bbs")
	assert.Equal(t, "https://forum.test/bbs/forum.php", Resolve(sub, "forum.php"))
}
