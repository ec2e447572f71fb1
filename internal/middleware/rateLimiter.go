package middleware

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// limiterCacheSize caps how many client IPs keep a limiter; the least recently seen are evicted.
const limiterCacheSize = 1024

type IPRateLimiter struct {
	ips       *lru.Cache[string, *rate.Limiter]
	mu        sync.Mutex
	rateLimit rate.Limit
	burstRate int
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	ips, _ := lru.New[string, *rate.Limiter](limiterCacheSize)
	return &IPRateLimiter{ips: ips, rateLimit: r, burstRate: b}
}

func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()
	limiter, exists := i.ips.Get(ip)
	if !exists {
		limiter = rate.NewLimiter(i.rateLimit, i.burstRate)
		i.ips.Add(ip, limiter)
	}
	return limiter
}
