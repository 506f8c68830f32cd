package session

import (
	errs "gmdaily/pkg/errors"
)

// Credentials is everything an account may log in with. At least the
// cookie or the username+password pair must be set.
type Credentials struct {
	Cookie     string
	Username   string
	Password   string
	QuestionID int
	Answer     string
}

// HasCookie reports whether the cookie path can be tried
func (c Credentials) HasCookie() bool {
	return c.Cookie != ""
}

// HasPassword reports whether the password path can be tried
func (c Credentials) HasPassword() bool {
	return c.Username != "" && c.Password != ""
}

// Validate fails with an AuthError when no login path is possible
func (c Credentials) Validate() error {
	if !c.HasCookie() && !c.HasPassword() {
		return &errs.AuthError{Reason: "neither a cookie nor a username and password is configured"}
	}
	return nil
}
