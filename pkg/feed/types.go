package feed

import (
	"gmdaily/pkg/forum"
)

// Item is one feed entry
type Item struct {
	URL     string
	BlogID  string
	OwnerID string
}

// ParseItem extracts owner and blog id from an item URL
func ParseItem(rawURL string) (Item, bool) {
	uid, id, ok := forum.ParseBlogURL(rawURL)
	if !ok {
		return Item{URL: rawURL}, false
	}
	return Item{URL: rawURL, BlogID: id, OwnerID: uid}, true
}

// Key identifies the content regardless of query string variations
func (i Item) Key() string {
	if i.BlogID == "" {
		return i.URL
	}
	return i.OwnerID + "-" + i.BlogID
}

// Reaction is the classified reply to a reaction click
type Reaction int

const (
	ReactionUnknown Reaction = iota
	ReactionSuccess
	ReactionAlreadyDone
)

func (r Reaction) String() string {
	switch r {
	case ReactionSuccess:
		return "success"
	case ReactionAlreadyDone:
		return "already_done"
	default:
		return "unknown"
	}
}

// ClassifyReaction maps the AJAX reply onto a Reaction
func ClassifyReaction(body string) Reaction {
	switch {
	case forum.IsReactionSuccess(body):
		return ReactionSuccess
	case forum.IsReactionAlreadyDone(body):
		return ReactionAlreadyDone
	default:
		return ReactionUnknown
	}
}

// StopReason records why a scan ended
type StopReason string

const (
	StopQuotaReached  StopReason = "quota_reached"
	StopFeedExhausted StopReason = "feed_exhausted"
	StopNoNewItems    StopReason = "no_new_items"
	StopMaxPages      StopReason = "max_pages"
	StopPageError     StopReason = "page_error"
	StopCancelled     StopReason = "cancelled"
)

// Result is what a scan accumulated. It is always returned, including on
// early termination; fewer successes than the target is a partial result.
type Result struct {
	// Successful owners in the order they were reacted to
	Successful []string
	// Processed owners in the order they were first seen
	Processed []string
	// AlreadyDone and Unknown owners are reported so callers can choose
	// their own policy; neither counts toward the target.
	AlreadyDone []string
	Unknown     []string

	PagesScanned int
	ItemsVisited int
	Stop         StopReason
	// Err is the page-level error when Stop is StopPageError or StopCancelled
	Err error
}

// ownerSet is an insertion-ordered set of owner ids
type ownerSet struct {
	seen  map[string]bool
	order []string
}

func newOwnerSet() *ownerSet {
	return &ownerSet{seen: make(map[string]bool)}
}

func (s *ownerSet) add(id string) bool {
	if s.seen[id] {
		return false
	}
	s.seen[id] = true
	s.order = append(s.order, id)
	return true
}

func (s *ownerSet) len() int { return len(s.order) }

func (s *ownerSet) list() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
