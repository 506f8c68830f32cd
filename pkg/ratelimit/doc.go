// Package ratelimit throttles requests to the forum so a daily run stays
// well below anything that looks like abuse.
//
//	limiter := ratelimit.NewTokenBucket(40, 5)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit
