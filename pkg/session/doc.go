// Package session turns account credentials into an authenticated
// forum.Session.
//
// The cookie is always tried first: it is loaded into the jar and the
// profile page is probed without following redirects. When that fails and
// a username and password are configured, a bounded password login loop
// runs. Each attempt fetches the login popup, which either reports that the
// server already recognises the session or hands out a fresh single-use
// captcha challenge. The image is passed to the captcha.Recognizer and the
// form is submitted; only the server's reply decides success. Challenge ids
// are never submitted twice.
//
// Every failure surfaces as an *errors.AuthError.
package session
