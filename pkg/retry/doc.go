// Package retry provides backoff strategies, a bounded retry loop and a
// jittered pacer for forum interactions.
//
//	err := retry.Do(ctx, &retry.Config{
//		MaxAttempts: 5,
//		Backoff:     retry.NewUniformJitter(2*time.Second, 5*time.Second, nil),
//		RetryIf:     retry.DefaultRetryIf,
//	}, func(ctx context.Context, attempt int) error {
//		return tryLogin(ctx, attempt)
//	})
//
// Network, throttling and server errors are retried. Auth, parsing and
// not-found errors are returned immediately.
package retry
