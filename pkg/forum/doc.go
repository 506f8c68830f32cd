// Package forum is the HTTP boundary to the Discuz!-based forum.
//
// Everything above this package talks to the forum through a Session, which
// wraps a Doer (the swappable transport), the cookie jar and the current
// formhash. RestyTransport is the production Doer; forumtest provides a
// scripted one for tests.
//
//	transport, _ := forum.NewRestyTransport(forum.TransportOptions{BaseURL: forum.DefaultBaseURL})
//	sess, _ := forum.NewSession(transport, transport.Jar(), forum.DefaultBaseURL, log)
//	sess.LoadCookie(cookie)
//	resp, err := sess.Get(ctx, forum.ProfilePath, forum.WithoutRedirects())
//
// The extraction helpers (ExtractFormHash, ParseLoginPopup, FeedLinks,
// ReactionURL, ...) are pure functions over response bodies.
package forum
