package session

import (
	"gmdaily/pkg/forum"
)

// State is a step of session acquisition
type State int

const (
	StateIdle State = iota
	StateCookieAttempted
	StatePasswordAttempted
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCookieAttempted:
		return "cookie_attempted"
	case StatePasswordAttempted:
		return "password_attempted"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateAuthenticated || s == StateFailed
}

// Outcome classifies a probe response. It is one of CookieValid,
// AlreadyAuthenticated, NeedsCaptchaLogin or Failed.
type Outcome interface {
	outcome()
	String() string
}

// CookieValid means the stored cookie opened an authenticated page
type CookieValid struct{}

// AlreadyAuthenticated means the login popup recognised an existing session
type AlreadyAuthenticated struct{}

// NeedsCaptchaLogin carries the fresh single-use parameters for one attempt
type NeedsCaptchaLogin struct {
	Params forum.LoginParams
}

// Failed carries the reason a probe or attempt did not authenticate
type Failed struct {
	Reason string
}

func (CookieValid) outcome()          {}
func (AlreadyAuthenticated) outcome() {}
func (NeedsCaptchaLogin) outcome()    {}
func (Failed) outcome()               {}

func (CookieValid) String() string          { return "cookie_valid" }
func (AlreadyAuthenticated) String() string { return "already_authenticated" }
func (NeedsCaptchaLogin) String() string    { return "needs_captcha_login" }
func (f Failed) String() string             { return "failed: " + f.Reason }
