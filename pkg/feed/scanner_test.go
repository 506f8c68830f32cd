package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "gmdaily/pkg/errors"
	"gmdaily/pkg/forum"
	"gmdaily/pkg/forum/forumtest"
	"gmdaily/pkg/logger"
)

const (
	replySuccess = `<root><![CDATA[表态成功]]></root>`
	replyAlready = `<root><![CDATA[您已表过态]]></root>`
	replyOther   = `<root><![CDATA[您的操作过于频繁]]></root>`
	noAccessPage = `<div class="alert_error">抱歉，您不能访问当前内容</div>`
)

type post struct {
	uid, id string
}

func (p post) path() string { return fmt.Sprintf("blog-%s-%s.html", p.uid, p.id) }

func feedPage(posts ...post) string {
	var b strings.Builder
	b.WriteString(`<ul id="bloglist">`)
	for _, p := range posts {
		fmt.Fprintf(&b, `<li><a href="%s" target="_blank">entry %s</a></li>`, p.path(), p.id)
	}
	b.WriteString(`</ul>`)
	return b.String()
}

func itemPage(p post) string {
	return fmt.Sprintf(`<div id="click_div"><a id="click_blogid_%[1]s_1" href="home.php?mod=spacecp&amp;ac=click&amp;op=add&amp;clickid=1&amp;idtype=blogid&amp;id=%[1]s&amp;hash=abc&amp;handlekey=clickhandle">like</a>
<a id="click_blogid_%[1]s_2" href="home.php?mod=spacecp&amp;ac=click&amp;op=add&amp;clickid=2&amp;idtype=blogid&amp;id=%[1]s">meh</a></div>`, p.id)
}

func reactFragment(p post) string { return "clickid=1&idtype=blogid&id=" + p.id + "&" }

func pageFragment(n int) string { return fmt.Sprintf("view=all&page=%d", n) }

// script registers an item page plus its reaction reply
func script(d *forumtest.Doer, p post, reply string) {
	d.On(http.MethodGet, reactFragment(p), forumtest.OK(reply))
	d.On(http.MethodGet, p.path(), forumtest.OK(itemPage(p)))
}

func newScanner() *Scanner {
	return NewScanner(Options{}, logger.NewNopLogger())
}

func TestScanThreeItemScenario(t *testing.T) {
	a, b, c := post{"101", "9001"}, post{"102", "9002"}, post{"103", "9003"}
	d := forumtest.New()
	d.On(http.MethodGet, pageFragment(1), forumtest.OK(feedPage(a, b, c)))
	d.On(http.MethodGet, pageFragment(2), forumtest.OK(`<p>没有相关日志</p>`))
	script(d, a, replySuccess)
	script(d, b, replySuccess)
	script(d, c, replyAlready)

	res := newScanner().Scan(context.Background(), d.Session(), 10, 5)

	assert.Equal(t, []string{"101", "102"}, res.Successful)
	assert.Subset(t, res.Processed, []string{"101", "102", "103"})
	assert.Equal(t, []string{"103"}, res.AlreadyDone)
	assert.Empty(t, res.Unknown)
	assert.Equal(t, StopFeedExhausted, res.Stop)
	assert.Equal(t, 2, res.PagesScanned)
	assert.NoError(t, res.Err)
}

func TestScanReactionRequestIsAJAXWithItemReferer(t *testing.T) {
	a := post{"101", "9001"}
	d := forumtest.New()
	d.On(http.MethodGet, pageFragment(1), forumtest.OK(feedPage(a)))
	script(d, a, replySuccess)

	res := newScanner().Scan(context.Background(), d.Session(), 1, 3)
	require.Equal(t, []string{"101"}, res.Successful)

	var found bool
	for _, req := range d.Requests() {
		if !strings.Contains(req.URL, reactFragment(a)) {
			continue
		}
		found = true
		assert.Equal(t, "XMLHttpRequest", req.Header.Get("X-Requested-With"))
		assert.Equal(t, "https://forum.test/"+a.path(), req.Header.Get("Referer"))
		assert.Contains(t, req.URL, "inajax=1")
		assert.True(t, req.NoRetry, "reaction clicks are sent once")
	}
	assert.True(t, found, "reaction was never requested")
}

func TestScanNeverExceedsTarget(t *testing.T) {
	posts := []post{{"1", "11"}, {"2", "12"}, {"3", "13"}, {"4", "14"}, {"5", "15"}}
	d := forumtest.New()
	d.On(http.MethodGet, pageFragment(1), forumtest.OK(feedPage(posts...)))
	for _, p := range posts {
		script(d, p, replySuccess)
	}

	res := newScanner().Scan(context.Background(), d.Session(), 2, 5)

	assert.Equal(t, []string{"1", "2"}, res.Successful)
	assert.Equal(t, StopQuotaReached, res.Stop)
	assert.Zero(t, d.Count(posts[2].path()), "no item should be opened once the quota is met")
	assert.Zero(t, d.Count(pageFragment(2)))
}

func TestScanZeroTargetMakesNoRequests(t *testing.T) {
	d := forumtest.New()

	res := newScanner().Scan(context.Background(), d.Session(), 0, 5)

	assert.Empty(t, res.Successful)
	assert.Equal(t, StopQuotaReached, res.Stop)
	assert.Empty(t, d.Requests())
}

func TestScanNeverFetchesAnItemTwice(t *testing.T) {
	a, b, c := post{"101", "9001"}, post{"102", "9002"}, post{"103", "9003"}
	d := forumtest.New()
	// adjacent pages overlap while the feed shifts under concurrent posting
	d.On(http.MethodGet, pageFragment(1), forumtest.OK(feedPage(a, b, a)))
	d.On(http.MethodGet, pageFragment(2), forumtest.OK(feedPage(b, c)))
	d.On(http.MethodGet, pageFragment(3), forumtest.OK(feedPage(c)))
	script(d, a, replyOther)
	script(d, b, replyOther)
	script(d, c, replyOther)

	res := newScanner().Scan(context.Background(), d.Session(), 10, 10)

	for _, p := range []post{a, b, c} {
		assert.Equal(t, 1, d.Count(p.path()), "item %s fetched more than once", p.path())
	}
	assert.Equal(t, StopNoNewItems, res.Stop)
	assert.Equal(t, 3, res.PagesScanned)
	assert.Equal(t, 3, res.ItemsVisited)
	assert.Equal(t, []string{"101", "102", "103"}, res.Unknown)
	assert.Empty(t, res.Successful)
}

func TestScanStopsAtMaxPages(t *testing.T) {
	d := forumtest.New()
	for page := 1; page <= 4; page++ {
		p := post{fmt.Sprint(200 + page), fmt.Sprint(9100 + page)}
		d.On(http.MethodGet, pageFragment(page), forumtest.OK(feedPage(p)))
		script(d, p, replyAlready)
	}

	res := newScanner().Scan(context.Background(), d.Session(), 10, 2)

	assert.Equal(t, StopMaxPages, res.Stop)
	assert.Equal(t, 2, res.PagesScanned)
	assert.Equal(t, []string{"201", "202"}, res.Processed)
	assert.Zero(t, d.Count(pageFragment(3)))
	assert.NoError(t, res.Err)
}

func TestScanPageErrorKeepsAccumulatedSuccesses(t *testing.T) {
	a, b := post{"101", "9001"}, post{"102", "9002"}
	netErr := errors.New("connection reset by peer")
	d := forumtest.New()
	d.On(http.MethodGet, pageFragment(1), forumtest.OK(feedPage(a)))
	d.On(http.MethodGet, pageFragment(2), forumtest.OK(feedPage(b)))
	d.On(http.MethodGet, pageFragment(3), forumtest.Fail(netErr))
	script(d, a, replySuccess)
	script(d, b, replySuccess)

	res := newScanner().Scan(context.Background(), d.Session(), 10, 5)

	assert.Equal(t, []string{"101", "102"}, res.Successful)
	assert.Equal(t, StopPageError, res.Stop)
	assert.ErrorIs(t, res.Err, netErr)
	assert.Equal(t, 2, res.PagesScanned)
	assert.Zero(t, d.Count(pageFragment(4)))
}

func TestScanPageStatusErrorStopsScan(t *testing.T) {
	d := forumtest.New()
	d.On(http.MethodGet, pageFragment(1), forumtest.Status(http.StatusBadGateway, "bad gateway"))

	res := newScanner().Scan(context.Background(), d.Session(), 10, 5)

	assert.Equal(t, StopPageError, res.Stop)
	assert.Error(t, res.Err)
	assert.Zero(t, res.PagesScanned)
}

func TestScanEmptyFirstPage(t *testing.T) {
	d := forumtest.New()
	d.On(http.MethodGet, pageFragment(1), forumtest.OK(`<p>nothing here</p>`))

	res := newScanner().Scan(context.Background(), d.Session(), 10, 5)

	assert.Equal(t, StopFeedExhausted, res.Stop)
	assert.Equal(t, 1, res.PagesScanned)
	assert.Empty(t, res.Processed)
}

func TestScanSkipsIsolatedItemFailures(t *testing.T) {
	broken := post{"101", "9001"}
	private := post{"102", "9002"}
	bare := post{"103", "9003"}
	flaky := post{"104", "9004"}
	good := post{"105", "9005"}

	d := forumtest.New()
	d.On(http.MethodGet, pageFragment(1), forumtest.OK(
		`<a href="blog-oops.html">bad link</a>`+feedPage(broken, private, bare, flaky, good)))
	d.On(http.MethodGet, pageFragment(2), forumtest.OK(""))
	d.On(http.MethodGet, broken.path(), forumtest.Fail(errors.New("timeout")))
	d.On(http.MethodGet, private.path(), forumtest.OK(noAccessPage))
	d.On(http.MethodGet, bare.path(), forumtest.OK(`<div>layout changed</div>`))
	d.On(http.MethodGet, reactFragment(flaky), forumtest.Status(http.StatusInternalServerError, "oops"))
	d.On(http.MethodGet, flaky.path(), forumtest.OK(itemPage(flaky)))
	script(d, good, replySuccess)

	res := newScanner().Scan(context.Background(), d.Session(), 10, 5)

	assert.Equal(t, []string{"105"}, res.Successful)
	assert.Equal(t, []string{"101", "102", "103", "104", "105"}, res.Processed)
	assert.Empty(t, res.AlreadyDone)
	assert.Empty(t, res.Unknown)
	assert.Equal(t, StopFeedExhausted, res.Stop)
	assert.Zero(t, d.Count("blog-oops.html"))
}

func TestScanReactionTransportFailureIsNotResent(t *testing.T) {
	lost, next := post{"101", "9001"}, post{"102", "9002"}
	d := forumtest.New()
	d.On(http.MethodGet, pageFragment(1), forumtest.OK(feedPage(lost, next)))
	d.On(http.MethodGet, pageFragment(2), forumtest.OK(""))
	d.On(http.MethodGet, reactFragment(lost), forumtest.Fail(errs.Network(errors.New("connection reset"))))
	d.On(http.MethodGet, lost.path(), forumtest.OK(itemPage(lost)))
	script(d, next, replySuccess)

	res := newScanner().Scan(context.Background(), d.Session(), 10, 5)

	assert.Equal(t, []string{"102"}, res.Successful)
	assert.Equal(t, []string{"101", "102"}, res.Processed)
	assert.Empty(t, res.Unknown)
	assert.Equal(t, 1, d.Count(reactFragment(lost)))
	assert.Equal(t, 1, d.Count(lost.path()))
	assert.NoError(t, res.Err)
}

func TestScanOverHTTPNeverResendsAClick(t *testing.T) {
	p := post{"101", "9001"}
	var clicks int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case r.URL.Path == "/home.php" && q.Get("ac") == "click":
			if atomic.AddInt32(&clicks, 1) == 1 {
				// the click landed but the gateway dropped the reply
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			fmt.Fprint(w, replyAlready)
		case r.URL.Path == "/home.php" && q.Get("page") == "1":
			fmt.Fprint(w, feedPage(p))
		case r.URL.Path == "/home.php":
			fmt.Fprint(w, "")
		case r.URL.Path == "/"+p.path():
			fmt.Fprint(w, itemPage(p))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tr, err := forum.NewRestyTransport(forum.TransportOptions{BaseURL: srv.URL, Attempts: 3, Logger: logger.NewNopLogger()})
	require.NoError(t, err)
	sess, err := forum.NewSession(tr, tr.Jar(), srv.URL, logger.NewNopLogger())
	require.NoError(t, err)

	res := newScanner().Scan(context.Background(), sess, 10, 3)

	assert.EqualValues(t, 1, atomic.LoadInt32(&clicks))
	assert.Empty(t, res.Successful)
	assert.Empty(t, res.AlreadyDone, "a lost reply is not turned into already-done")
	assert.Equal(t, []string{"101"}, res.Processed)
	assert.Equal(t, StopFeedExhausted, res.Stop)
}

func TestFreshItemsSkipsUnparsableLinks(t *testing.T) {
	st := &scan{Scanner: newScanner(), visited: make(map[string]bool)}

	fresh := st.freshItems([]string{
		"https://forum.test/blog-oops.html",
		"https://forum.test/blog-7-70.html",
		"https://forum.test/blog-7-70.html?from=space",
		"https://forum.test/home.php?mod=space",
		"https://forum.test/blog-8-80.html",
	})

	require.Len(t, fresh, 2)
	assert.Equal(t, "7-70", fresh[0].Key())
	assert.Equal(t, "8-80", fresh[1].Key())
	assert.NotContains(t, st.visited, "https://forum.test/blog-oops.html")

	assert.Empty(t, st.freshItems([]string{"https://forum.test/blog-7-70.html#c1"}))
}

func TestScanSuccessfulIsSubsetOfProcessed(t *testing.T) {
	a, b := post{"101", "9001"}, post{"101", "9002"}
	d := forumtest.New()
	d.On(http.MethodGet, pageFragment(1), forumtest.OK(feedPage(a, b)))
	d.On(http.MethodGet, pageFragment(2), forumtest.OK(""))
	script(d, a, replySuccess)
	script(d, b, replySuccess)

	res := newScanner().Scan(context.Background(), d.Session(), 10, 5)

	// two entries by the same owner count once
	assert.Equal(t, []string{"101"}, res.Successful)
	assert.Equal(t, []string{"101"}, res.Processed)
	assert.Equal(t, 2, res.ItemsVisited)
	assert.Subset(t, res.Processed, res.Successful)
}

func TestScanCancelled(t *testing.T) {
	d := forumtest.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newScanner().Scan(ctx, d.Session(), 10, 5)

	assert.Equal(t, StopCancelled, res.Stop)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, d.Requests())
}

func TestClassifyReaction(t *testing.T) {
	assert.Equal(t, ReactionSuccess, ClassifyReaction(replySuccess))
	assert.Equal(t, ReactionAlreadyDone, ClassifyReaction(replyAlready))
	assert.Equal(t, ReactionUnknown, ClassifyReaction(replyOther))
	assert.Equal(t, "already_done", ReactionAlreadyDone.String())
}

func TestParseItem(t *testing.T) {
	item, ok := ParseItem("https://forum.test/blog-42-777.html?from=space")
	require.True(t, ok)
	assert.Equal(t, "42", item.OwnerID)
	assert.Equal(t, "777", item.BlogID)
	assert.Equal(t, "42-777", item.Key())

	item, ok = ParseItem("https://forum.test/blog-oops.html")
	assert.False(t, ok)
	assert.Equal(t, "https://forum.test/blog-oops.html", item.Key())
}
