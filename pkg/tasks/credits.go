package tasks

import (
	"context"
	"fmt"

	"gmdaily/pkg/forum"
)

const (
	creditJourney = 1
	creditBlood   = 3
)

// Credits reads the account's balances
func (r *Runner) Credits(ctx context.Context) ([]forum.Credit, error) {
	resp, err := r.sess.Get(ctx, forum.CreditsPath)
	if err != nil {
		return nil, err
	}
	return forum.ParseCredits(resp.Text())
}

// CreditsAndExchange reads balances and, when blood exceeds the threshold,
// converts one unit into journey. The exchange result is nil when no
// exchange was attempted. Balances are re-read after a successful exchange.
func (r *Runner) CreditsAndExchange(ctx context.Context) ([]forum.Credit, *Result) {
	credits, err := r.Credits(ctx)
	if err != nil {
		r.log.WithError(err).Warn("could not read credits")
		return nil, nil
	}

	if !r.opts.AutoExchange {
		r.log.Debug("auto exchange disabled")
		return credits, nil
	}

	blood := 0
	if c, ok := forum.FindCredit(credits, forum.BloodCredit); ok {
		blood, _ = c.Amount()
	}
	if blood <= r.opts.ExchangeThreshold {
		r.log.WithFields(map[string]interface{}{
			"blood":     blood,
			"threshold": r.opts.ExchangeThreshold,
		}).Info("not enough blood to exchange")
		return credits, nil
	}
	if r.opts.Password == "" {
		r.log.WithField("blood", blood).Info("exchange needs the account password; skipping")
		return credits, nil
	}

	form := forum.ExchangeForm(r.sess.FormHash, r.opts.Password, 1, creditBlood, creditJourney)
	resp, err := r.sess.Post(ctx, forum.ExchangePath, form,
		forum.WithAJAX(), forum.WithReferer(r.sess.URL(forum.CreditsPath)))
	if err != nil {
		res := r.finish(failure(NameExchange, err.Error()), err)
		return credits, &res
	}
	if !forum.ExchangeSucceeded(resp.Text()) {
		res := r.finish(failure(NameExchange, forum.ExchangeErrorReason(resp.Text())), nil)
		return credits, &res
	}

	res := r.finish(success(NameExchange, fmt.Sprintf("exchanged 1 at %d blood", blood)), nil)
	if refreshed, err := r.Credits(ctx); err == nil {
		credits = refreshed
	} else {
		r.log.WithError(err).Warn("could not refresh credits after exchange")
	}
	return credits, &res
}

// Summary reads the reward rule log
func (r *Runner) Summary(ctx context.Context) ([]forum.TaskCount, error) {
	resp, err := r.sess.Get(ctx, forum.TaskLogPath)
	if err != nil {
		return nil, err
	}
	return forum.ParseTaskSummary(resp.Text())
}
