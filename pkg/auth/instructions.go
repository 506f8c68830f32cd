package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCookieGuide explains how to copy a logged-in browser cookie
func ShowCookieGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	lines := []string{
		rule,
		"GAMEMALE COOKIE GUIDE",
		rule,
		"",
		"A browser cookie lets gmdaily skip the captcha login entirely.",
		"",
		"1. Log in at https://www.gamemale.com in your browser.",
		"2. Open Developer Tools (F12, or Cmd+Option+I on macOS).",
		"3. Network tab, reload, click any request to www.gamemale.com.",
		"4. Under Request Headers copy the whole value of the Cookie: line.",
		"   It looks like: xxxx_2132_saltkey=...; xxxx_2132_auth=...; ...",
		"",
		"Tips:",
		"  - The *_auth cookie is the one that matters; it lasts about 30 days.",
		"  - Setting a username as well lets gmdaily confirm the cookie belongs",
		"    to the right account, and fall back to a password login.",
		"",
		"The cookie grants full access to your account. Never share it.",
		rule,
	}
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
