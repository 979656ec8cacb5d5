package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

type limitedGenerator struct {
	next    Generator
	limiter *rate.Limiter
}

// WithRateLimit spaces calls to g so that at most perMinute start in any
// minute. A non-positive perMinute returns g unchanged.
func WithRateLimit(g Generator, perMinute int) Generator {
	if perMinute <= 0 {
		return g
	}
	return &limitedGenerator{
		next:    g,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (l *limitedGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("waiting for model rate limit: %w", err)
	}
	return l.next.Generate(ctx, req)
}
