package server

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/Tyrowin/sse-chat/internal/config"
)

// rateLimiter throttles the messages one WebSocket connection may publish.
// The bucket holds Burst tokens and refills completely over RefillInterval.
type rateLimiter struct {
	limiter *rate.Limiter
	now     func() time.Time
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	burst := max(cfg.Burst, 1)
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Every(interval/time.Duration(burst)), burst),
		now:     time.Now,
	}
}

func (rl *rateLimiter) allow() bool {
	return rl.limiter.AllowN(rl.now(), 1)
}
