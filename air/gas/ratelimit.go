package gas

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/airframe/airframe"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitStore tracks how many requests a key has made inside the current
// window. A key is typically the requester's IP address or an API key.
type RateLimitStore interface {
	// Allow reports whether a request for key is allowed right now.
	Allow(ctx context.Context, key string) (bool, error)
}

// memoryRateLimitStore is a local, per-process `RateLimitStore` backed by
// one `rate.Limiter` per key, grounded on the token-bucket shape
// `golang.org/x/time/rate` already provides.
type memoryRateLimitStore struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewMemoryRateLimitStore returns a `RateLimitStore` that keeps one
// in-memory token bucket per key, allowing rps requests per second with
// bursts of up to burst.
func NewMemoryRateLimitStore(rps float64, burst int) RateLimitStore {
	return &memoryRateLimitStore{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: map[string]*rate.Limiter{},
	}
}

// Allow implements the `RateLimitStore`.
func (s *memoryRateLimitStore) Allow(
	ctx context.Context,
	key string,
) (bool, error) {
	s.mu.Lock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.rps, s.burst)
		s.limiters[key] = l
	}
	s.mu.Unlock()

	return l.Allow(), nil
}

// redisRateLimitStore is a distributed `RateLimitStore`, for deployments
// with more than one instance of this server behind the same rate limit,
// backed by a fixed-window counter in Redis.
type redisRateLimitStore struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewRedisRateLimitStore returns a `RateLimitStore` that enforces a
// fixed-window limit of limit requests per window, shared across every
// process using the same client.
func NewRedisRateLimitStore(
	client *redis.Client,
	limit int64,
	window time.Duration,
) RateLimitStore {
	return &redisRateLimitStore{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Allow implements the `RateLimitStore`.
func (s *redisRateLimitStore) Allow(
	ctx context.Context,
	key string,
) (bool, error) {
	n, err := s.client.Incr(ctx, "air:ratelimit:"+key).Result()
	if err != nil {
		return false, err
	}

	if n == 1 {
		s.client.Expire(ctx, "air:ratelimit:"+key, s.window)
	}

	return n <= s.limit, nil
}

// RateLimit returns a `Gas` that 429s requests once keyFunc's key has
// exhausted its quota in store. The quota is keyed by keyFunc(req) alone (the
// remote address by default), so it is shared across routes.
func RateLimit(store RateLimitStore, keyFunc func(*air.Request) string) Gas {
	if keyFunc == nil {
		keyFunc = func(req *air.Request) string {
			return req.RemoteAddress()
		}
	}

	return func(next Handler) Handler {
		return func(req *air.Request, res *air.Response) error {
			ok, err := store.Allow(
				req.HTTPRequest().Context(),
				keyFunc(req),
			)
			if err != nil {
				return err
			}

			if !ok {
				res.Status = http.StatusTooManyRequests
				return res.WriteString("Too Many Requests")
			}

			return next(req, res)
		}
	}
}
