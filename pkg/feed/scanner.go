package feed

import (
	"context"
	"errors"
	"time"

	errs "gmdaily/pkg/errors"
	"gmdaily/pkg/forum"
	"gmdaily/pkg/logger"
	"gmdaily/pkg/retry"
)

// Options controls pacing between items
type Options struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultOptions matches the config defaults
func DefaultOptions() Options {
	return Options{MinDelay: 2 * time.Second, MaxDelay: 5 * time.Second}
}

// Scanner walks the public blog feed and reacts to unseen items until a
// success quota is met. It holds no per-scan state and can be reused.
type Scanner struct {
	pacer *retry.Pacer
	log   logger.Logger
}

// NewScanner creates a scanner
func NewScanner(opts Options, log logger.Logger) *Scanner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Scanner{
		pacer: retry.NewPacer(opts.MinDelay, opts.MaxDelay),
		log:   log.WithField("component", "feed"),
	}
}

type scan struct {
	*Scanner
	sess   *forum.Session
	target int

	visited   map[string]bool
	processed *ownerSet
	success   *ownerSet
	already   *ownerSet
	unknown   *ownerSet
	items     int
}

// Scan visits feed pages 1..maxPages on an authenticated session. It
// never fetches the same item twice, never records more than target
// successes and always returns what it accumulated.
func (s *Scanner) Scan(ctx context.Context, sess *forum.Session, target, maxPages int) Result {
	st := &scan{
		Scanner:   s,
		sess:      sess,
		target:    target,
		visited:   make(map[string]bool),
		processed: newOwnerSet(),
		success:   newOwnerSet(),
		already:   newOwnerSet(),
		unknown:   newOwnerSet(),
	}

	pages, stop, err := st.run(ctx, maxPages)
	res := Result{
		Successful:   st.success.list(),
		Processed:    st.processed.list(),
		AlreadyDone:  st.already.list(),
		Unknown:      st.unknown.list(),
		PagesScanned: pages,
		ItemsVisited: st.items,
		Stop:         stop,
		Err:          err,
	}

	s.log.InfoWithFields("feed scan finished", map[string]interface{}{
		"successes": len(res.Successful),
		"target":    target,
		"processed": len(res.Processed),
		"pages":     pages,
		"stop":      string(stop),
	})
	return res
}

func (st *scan) quotaReached() bool {
	return st.success.len() >= st.target
}

func (st *scan) run(ctx context.Context, maxPages int) (int, StopReason, error) {
	if st.quotaReached() {
		return 0, StopQuotaReached, nil
	}

	pages := 0
	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return pages, StopCancelled, err
		}

		resp, err := st.sess.Get(ctx, forum.FeedPagePath(page))
		if err != nil {
			st.log.WithError(err).WarnWithFields("feed page fetch failed", map[string]interface{}{"page": page})
			if isCancel(err) {
				return pages, StopCancelled, err
			}
			return pages, StopPageError, err
		}
		pages++

		links := forum.FeedLinks(resp.Text(), st.sess.BaseURL())
		if len(links) == 0 {
			return pages, StopFeedExhausted, nil
		}

		fresh := st.freshItems(links)
		if len(fresh) == 0 {
			return pages, StopNoNewItems, nil
		}

		for _, item := range fresh {
			if !st.visit(ctx, item) {
				continue
			}
			if st.quotaReached() {
				logger.LogScanProgress(st.log, page, st.success.len(), st.target)
				return pages, StopQuotaReached, nil
			}
			if err := st.pacer.Pause(ctx); err != nil {
				return pages, StopCancelled, err
			}
		}
		logger.LogScanProgress(st.log, page, st.success.len(), st.target)
	}
	return pages, StopMaxPages, nil
}

// freshItems keeps the links that name an owner and a blog id and were not
// seen earlier in this scan, in page order.
func (st *scan) freshItems(links []string) []Item {
	var fresh []Item
	for _, link := range links {
		item, ok := ParseItem(link)
		if !ok {
			st.log.WithField("url", link).Debug("skipping feed link without owner and blog id")
			continue
		}
		if st.visited[item.Key()] {
			continue
		}
		st.visited[item.Key()] = true
		fresh = append(fresh, item)
	}
	return fresh
}

// visit handles one item and reports whether it issued any network request
func (st *scan) visit(ctx context.Context, item Item) bool {
	log := st.log.WithField("url", item.URL)

	st.processed.add(item.OwnerID)
	st.items++

	// transport failures skip the item; only feed pages are retried
	page, err := st.sess.Get(ctx, item.URL, forum.WithoutRetry())
	if err != nil {
		log.WithError(err).Warn("item fetch failed")
		return true
	}
	body := page.Text()
	if forum.IsNoAccess(body) {
		log.Debug("item is not accessible")
		return true
	}

	reactURL, ok, err := forum.ReactionURL(body, st.sess.BaseURL())
	if err != nil || !ok {
		log.WithError(err).Debug("item has no reaction control")
		return true
	}

	// a click is never resent; the first may have landed
	reply, err := st.sess.Get(ctx, reactURL, forum.WithAJAX(), forum.WithReferer(item.URL), forum.WithoutRetry())
	if err != nil {
		log.WithError(err).Warn("reaction request failed")
		return true
	}

	switch ClassifyReaction(reply.Text()) {
	case ReactionSuccess:
		st.success.add(item.OwnerID)
		log.WithField("owner", item.OwnerID).Info("reacted to item")
	case ReactionAlreadyDone:
		st.already.add(item.OwnerID)
		log.Debug("item already reacted to")
	default:
		st.unknown.add(item.OwnerID)
		log.WithError(errs.Ambiguous(reply.Text())).Warn("unrecognised reaction reply")
	}
	return true
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
