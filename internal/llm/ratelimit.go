package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// 限制每分钟请求数，避免触发服务端限流
type RateLimited struct {
	next    Generator
	limiter *rate.Limiter
}

// perMinute <= 0 时不限流，直接返回原客户端
func NewRateLimited(next Generator, perMinute int) Generator {
	if perMinute <= 0 {
		return next
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (r *RateLimited) Generate(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Generate(ctx, req)
}
