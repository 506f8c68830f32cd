package tasks

import (
	"context"
	"fmt"
	"time"

	errs "gmdaily/pkg/errors"
	"gmdaily/pkg/forum"
	"gmdaily/pkg/logger"
	"gmdaily/pkg/retry"
)

// Options configures the reward actions
type Options struct {
	// Pause is the base delay between per-member requests; the actual
	// pause is drawn from [Pause, 2*Pause].
	Pause time.Duration

	AutoExchange      bool
	ExchangeThreshold int
	// Password confirms credit exchanges; exchanges are skipped without it
	Password string
}

// Runner performs the one-shot daily actions on an authenticated session.
// No method returns an error for a failed action; failures become Results.
type Runner struct {
	sess  *forum.Session
	opts  Options
	pacer *retry.Pacer
	log   logger.Logger
	now   func() time.Time
}

// New creates a task runner
func New(sess *forum.Session, opts Options, log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{
		sess:  sess,
		opts:  opts,
		pacer: retry.NewPacer(opts.Pause, 2*opts.Pause),
		log:   log.WithField("component", "tasks"),
		now:   time.Now,
	}
}

func (r *Runner) finish(res Result, err error) Result {
	logger.LogTaskResult(r.log, res.Name, res.Status.String(), err)
	return res
}

// CheckIn performs the daily sign-in. Signing in twice counts as success.
func (r *Runner) CheckIn(ctx context.Context) Result {
	if r.sess.FormHash == "" {
		return r.finish(failure(NameCheckIn, "no formhash"), nil)
	}
	resp, err := r.sess.Get(ctx, forum.CheckInPath(r.sess.FormHash), forum.WithAJAX(), forum.WithoutRetry())
	if err != nil {
		return r.finish(failure(NameCheckIn, err.Error()), err)
	}
	ok, already := forum.CheckInOutcome(resp.Text())
	switch {
	case already:
		return r.finish(success(NameCheckIn, "already signed in today"), nil)
	case ok:
		return r.finish(success(NameCheckIn, "signed in"), nil)
	default:
		return r.finish(failure(NameCheckIn, "unrecognised reply"), nil)
	}
}

// Lottery draws the daily prize
func (r *Runner) Lottery(ctx context.Context) Result {
	if r.sess.FormHash == "" {
		return r.finish(failure(NameLottery, "no formhash"), nil)
	}
	resp, err := r.sess.Get(ctx, forum.LotteryPath(r.sess.FormHash, r.now().UnixMilli()), forum.WithAJAX(), forum.WithoutRetry())
	if err != nil {
		return r.finish(failure(NameLottery, err.Error()), err)
	}
	reply, err := forum.ParseLotteryReply(resp.Body)
	if err != nil {
		return r.finish(failure(NameLottery, "unparseable reply"), err)
	}
	switch {
	case reply.Won():
		return r.finish(success(NameLottery, reply.Prize()), nil)
	case reply.AlreadyDrawn():
		return r.finish(success(NameLottery, "already drawn today"), nil)
	default:
		return r.finish(failure(NameLottery, fmt.Sprintf("%s: %s", reply.TipName, reply.Prize())), nil)
	}
}

// VisitSpaces opens each member's home page. Success when any visit lands.
func (r *Runner) VisitSpaces(ctx context.Context, uids []string) Result {
	if len(uids) == 0 {
		return r.finish(skipped(NameVisit, "no members to visit"), nil)
	}
	visited := 0
	for i, uid := range uids {
		if i > 0 {
			if err := r.pacer.Pause(ctx); err != nil {
				break
			}
		}
		if _, err := r.sess.Head(ctx, forum.SpacePath(uid)); err != nil {
			r.log.WithError(err).WithField("uid", uid).Warn("space visit failed")
			continue
		}
		visited++
	}
	res := failure(NameVisit, fmt.Sprintf("%d/%d visited", visited, len(uids)))
	if visited > 0 {
		res.Status = StatusSuccess
	}
	return r.finish(res, ctx.Err())
}

// Poke greets each member. A member greeted earlier today counts as success.
func (r *Runner) Poke(ctx context.Context, uids []string) Result {
	if len(uids) == 0 {
		return r.finish(skipped(NamePoke, "no members to greet"), nil)
	}
	greeted := 0
	for i, uid := range uids {
		if i > 0 {
			if err := r.pacer.Pause(ctx); err != nil {
				break
			}
		}
		if err := r.pokeOne(ctx, uid); err != nil {
			r.log.WithError(err).WithField("uid", uid).Warn("greeting failed")
			continue
		}
		greeted++
	}
	res := failure(NamePoke, fmt.Sprintf("%d/%d greeted", greeted, len(uids)))
	if greeted > 0 {
		res.Status = StatusSuccess
	}
	return r.finish(res, ctx.Err())
}

func (r *Runner) pokeOne(ctx context.Context, uid string) error {
	popup, err := r.sess.Get(ctx, forum.PokePath(uid), forum.WithAJAX())
	if err != nil {
		return err
	}
	if forum.PokedToday(popup.Text()) {
		r.log.WithField("uid", uid).Debug("already greeted today")
		return nil
	}

	form, err := forum.ParsePokeForm(popup.Text(), uid)
	if err != nil {
		return err
	}
	resp, err := r.sess.Post(ctx, form.Action, forum.PokeFormValues(form.FormHash, uid),
		forum.WithAJAX(), forum.WithReferer(r.sess.URL(forum.SpacePath(uid))))
	if err != nil {
		return err
	}
	if !forum.PokeSent(resp.Text()) {
		return fmt.Errorf("greeting not accepted: %s", errs.Preview(forum.UnwrapCDATA(resp.Text()), 120))
	}
	return nil
}
