package forum

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	errs "gmdaily/pkg/errors"
)

// Page markers. The forum only speaks Chinese, so these are matched verbatim.
const (
	markerLoginLink     = "登录"
	markerProfileMenu   = "我的资料"
	markerWelcomeBack   = "欢迎您回来"
	markerLoginSucceed  = "succeedhandle_login"
	markerLogoutLink    = "action=logout"
	markerNoAccess      = "您不能访问当前内容"
	markerDeleted       = "指定的主题不存在或已被删除或正在被审核"
	markerReactSucceed  = "succeed"
	markerReactSucceed2 = "表态成功"
	markerReactAlready  = "您已表过态"
)

var (
	formHashPatterns = []*regexp.Regexp{
		regexp.MustCompile(`formhash" value="([a-f0-9]+)"`),
		regexp.MustCompile(`formhash=([a-f0-9]+)`),
		regexp.MustCompile(`"formhash":"([a-f0-9]+)"`),
	}
	loginHashPatterns = []*regexp.Regexp{
		regexp.MustCompile(`main_messaqge_([A-Za-z0-9]+)`),
		regexp.MustCompile(`loginhash=([A-Za-z0-9]+)`),
	}
	secCodePatterns = []*regexp.Regexp{
		regexp.MustCompile(`seccode_([A-Za-z0-9]+)`),
		regexp.MustCompile(`updateseccode\('([A-Za-z0-9]+)'`),
	}
	cdataPattern      = regexp.MustCompile(`(?s)<!\[CDATA\[(.*)\]\]>`)
	loginErrorPattern = regexp.MustCompile(`errorhandle_login\('([^']*)'`)
	feedLinkPattern   = regexp.MustCompile(`href="([^"]*blog-\d+-\d+\.html[^"]*)"`)
	blogURLPattern    = regexp.MustCompile(`blog-(\d+)-(\d+)\.html`)
)

// LoginParams is the single-use bundle for one password login attempt
type LoginParams struct {
	LoginHash   string
	FormHash    string
	SecCodeHash string
	// Answer is the captcha text guess
	Answer string
}

func firstMatch(patterns []*regexp.Regexp, body string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(body); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

// ExtractFormHash returns the anti-forgery token found in body, or "".
func ExtractFormHash(body string) string {
	return firstMatch(formHashPatterns, body)
}

// UnwrapCDATA returns the HTML inside an AJAX <root><![CDATA[...]]></root>
// envelope, or body unchanged when there is no envelope.
func UnwrapCDATA(body string) string {
	if m := cdataPattern.FindStringSubmatch(body); len(m) > 1 {
		return m[1]
	}
	return body
}

func parseHTML(fragment string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, errs.Parsing("malformed html: %v", err)
	}
	return doc, nil
}

// IsAuthenticatedProfile classifies the cookie probe response. A configured
// username must appear in the page; otherwise the profile menu marker or a
// formhash is enough.
func IsAuthenticatedProfile(status int, body, username string) bool {
	if status != 200 || strings.Contains(body, markerLoginLink) {
		return false
	}
	if username != "" {
		return strings.Contains(strings.ToLower(body), strings.ToLower(username))
	}
	return strings.Contains(body, markerProfileMenu) || ExtractFormHash(body) != ""
}

// ParseLoginPopup inspects the AJAX login fragment. authenticated is true
// only when the fragment positively shows a member session: the welcome-back
// greeting or a logout link. A fragment without a login form is otherwise an
// error reply (stale formhash, rate limit) and is returned as a parsing error.
func ParseLoginPopup(body string) (params LoginParams, authenticated bool, err error) {
	if strings.Contains(body, markerWelcomeBack) {
		return LoginParams{}, true, nil
	}

	fragment := UnwrapCDATA(body)
	doc, err := parseHTML(fragment)
	if err != nil {
		return LoginParams{}, false, err
	}

	hasForm := HasLoginForm(doc)
	params.LoginHash = firstMatch(loginHashPatterns, fragment)
	if !hasForm && params.LoginHash == "" {
		if strings.Contains(fragment, markerLogoutLink) {
			return LoginParams{}, true, nil
		}
		doc.Find("script").Remove()
		return LoginParams{}, false, errs.Parsing("unrecognised login popup: %q",
			errs.Preview(strings.TrimSpace(doc.Text()), 80))
	}

	params.FormHash = doc.Find("input[name=formhash]").AttrOr("value", "")
	if params.FormHash == "" {
		params.FormHash = ExtractFormHash(fragment)
	}
	params.SecCodeHash = firstMatch(secCodePatterns, fragment)

	var missing []string
	if params.LoginHash == "" {
		missing = append(missing, "loginhash")
	}
	if params.FormHash == "" {
		missing = append(missing, "formhash")
	}
	if params.SecCodeHash == "" {
		missing = append(missing, "seccodehash")
	}
	if len(missing) > 0 {
		return params, false, errs.Parsing("login popup missing %s", strings.Join(missing, ", "))
	}
	return params, false, nil
}

// HasLoginForm reports whether a page asks for a password. A member page
// never does; a guest page embeds the login form.
func HasLoginForm(doc *goquery.Document) bool {
	return doc.Find("input[name=password]").Length() > 0 || doc.Find("form[name=login]").Length() > 0
}

// LoginSucceeded reports whether a login submission was accepted
func LoginSucceeded(body string) bool {
	return strings.Contains(body, markerWelcomeBack) || strings.Contains(body, markerLoginSucceed)
}

// LoginErrorReason extracts the server's stated rejection reason
func LoginErrorReason(body string) string {
	if m := loginErrorPattern.FindStringSubmatch(body); len(m) > 1 {
		return html.UnescapeString(m[1])
	}
	fragment := UnwrapCDATA(body)
	if doc, err := parseHTML(fragment); err == nil {
		doc.Find("script").Remove()
		if text := strings.TrimSpace(doc.Text()); text != "" {
			return errs.Preview(text, 120)
		}
	}
	return ""
}

// FeedLinks returns absolute item URLs from a feed page in document order.
// Duplicates within the page are kept; the scanner deduplicates.
func FeedLinks(body string, base *url.URL) []string {
	matches := feedLinkPattern.FindAllStringSubmatch(body, -1)
	links := make([]string, 0, len(matches))
	for _, m := range matches {
		links = append(links, Resolve(base, html.UnescapeString(m[1])))
	}
	return links
}

// ParseBlogURL extracts the owner uid and blog id from an item URL
func ParseBlogURL(raw string) (uid, blogID string, ok bool) {
	m := blogURLPattern.FindStringSubmatch(raw)
	if len(m) < 3 {
		return "", "", false
	}
	return m[1], m[2], true
}

// IsNoAccess reports a privacy-restricted or deleted item
func IsNoAccess(body string) bool {
	return strings.Contains(body, markerNoAccess) || strings.Contains(body, markerDeleted)
}

// ReactionURL locates the first reaction control on an item page and
// returns its absolute AJAX URL. ok is false when no control is present.
func ReactionURL(body string, base *url.URL) (string, bool, error) {
	doc, err := parseHTML(body)
	if err != nil {
		return "", false, err
	}
	href, exists := doc.Find(`a[id*="click_blogid_"][id$="_1"]`).First().Attr("href")
	if !exists || strings.TrimSpace(href) == "" {
		return "", false, nil
	}
	href = html.UnescapeString(href)
	if !strings.Contains(href, "inajax=1") {
		href += "&inajax=1"
	}
	return Resolve(base, href), true, nil
}

// IsReactionSuccess matches the short AJAX success reply
func IsReactionSuccess(body string) bool {
	return strings.Contains(body, markerReactSucceed) || strings.Contains(body, markerReactSucceed2)
}

// IsReactionAlreadyDone matches the "already reacted" reply
func IsReactionAlreadyDone(body string) bool {
	return strings.Contains(body, markerReactAlready)
}

// Resolve turns a forum-relative reference into an absolute URL
func Resolve(base *url.URL, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	u, err := url.Parse(strings.TrimLeft(ref, "/"))
	if err != nil || base == nil {
		return ref
	}
	root := *base
	if !strings.HasSuffix(root.Path, "/") {
		root.Path += "/"
	}
	return root.ResolveReference(u).String()
}
