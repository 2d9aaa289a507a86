package generation

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited shares one token bucket across every caller of the wrapped
// generator.
type RateLimited struct {
	next    Generator
	limiter *rate.Limiter
}

// NewRateLimited allows rps requests per second with the given burst. A
// non-positive rps disables limiting.
func NewRateLimited(next Generator, rps float64, burst int) *RateLimited {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) Generate(ctx context.Context, prompt string, params Parameters) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// The bucket cannot refill before the call deadline.
		return "", Transient(err)
	}
	return r.next.Generate(ctx, prompt, params)
}

func (r *RateLimited) Model() string {
	return ModelName(r.next)
}
