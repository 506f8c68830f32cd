package forum

import (
	"fmt"
	"math/rand"
	"net/url"
)

const (
	// DefaultBaseURL is the forum root
	DefaultBaseURL = "https://www.gamemale.com"

	// ProfilePath is probed to validate a cookie session
	ProfilePath = "home.php?mod=space&do=profile"

	// ControlPanelPath always carries the authoritative formhash
	ControlPanelPath = "home.php?mod=spacecp"

	// ForumIndexPath is used as the default Referer
	ForumIndexPath = "forum.php"

	// LoginPopupPath returns the AJAX login fragment
	LoginPopupPath = "member.php?mod=logging&action=login&infloat=yes&handlekey=login&inajax=1&ajaxtarget=fwin_content_login"

	// FeedPath lists every member's blog entries, newest first
	FeedPath = "home.php?mod=space&do=blog&view=all"

	// LoginCookieTime keeps the session for 30 days
	LoginCookieTime = "2592000"
)

// LoginSubmitPath builds the login POST target for a transaction id
func LoginSubmitPath(loginHash string) string {
	return fmt.Sprintf("member.php?mod=logging&action=login&loginsubmit=yes&handlekey=login&loginhash=%s&inajax=1",
		url.QueryEscape(loginHash))
}

// CaptchaPath addresses the image for a seccode challenge. The update
// parameter only busts caches.
func CaptchaPath(secCodeHash string) string {
	return fmt.Sprintf("misc.php?mod=seccode&update=%d&idhash=%s", rand.Intn(100000), url.QueryEscape(secCodeHash))
}

// FeedPagePath returns the feed listing for a 1-based page
func FeedPagePath(page int) string {
	if page < 1 {
		page = 1
	}
	return fmt.Sprintf("%s&page=%d", FeedPath, page)
}

// SpacePath returns a member's home page
func SpacePath(uid string) string {
	return fmt.Sprintf("space-uid-%s.html", uid)
}

// LoginForm assembles the fields of a password login submission
func LoginForm(p LoginParams, username, password string, questionID int, answer string, referer string) url.Values {
	form := url.Values{}
	form.Set("formhash", p.FormHash)
	form.Set("referer", referer)
	form.Set("loginfield", "username")
	form.Set("username", username)
	form.Set("password", password)
	form.Set("questionid", fmt.Sprint(questionID))
	form.Set("answer", answer)
	form.Set("seccodehash", p.SecCodeHash)
	form.Set("seccodemodid", "member::logging")
	form.Set("seccodeverify", p.Answer)
	form.Set("cookietime", LoginCookieTime)
	return form
}
