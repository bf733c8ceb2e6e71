package middleware

import (
    "context"
    "fmt"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/cinema-seat-booking/internal/config"
    "github.com/iliyamo/cinema-seat-booking/internal/logger"
)

// SessionHeader carries the anonymous reservation session id.  Clients
// also send it in request bodies; the header only feeds rate limiting.
const SessionHeader = "X-Session-ID"

// takeScript adds the tokens earned since the last refill (whole intervals
// only), then takes one.  The bucket hash holds "n" (tokens) and "at"
// (time of the last refill in ms).  Returns {allowed, tokens, wait_ms}.
var takeScript = redis.NewScript(`
local cap, per, every, now, ttl =
    tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])

local n = tonumber(redis.call('HGET', KEYS[1], 'n'))
local at = tonumber(redis.call('HGET', KEYS[1], 'at'))
if not n or not at then
    n, at = cap, now
end

local steps = 0
if every > 0 then
    steps = math.floor(math.max(0, now - at) / every)
end
if steps > 0 then
    n = math.min(cap, n + steps * per)
    at = at + steps * every
end

local ok, wait = 0, 0
if n >= 1 then
    ok, n = 1, n - 1
else
    wait = math.max(0, at + every - now)
end

redis.call('HSET', KEYS[1], 'n', n, 'at', at)
redis.call('EXPIRE', KEYS[1], ttl)
return {ok, n, wait}
`)

// Decision is the outcome of taking a token.
type Decision struct {
    Allowed    bool
    Remaining  int64
    RetryAfter time.Duration
}

// TokenBucket is a token bucket kept in Redis so every replica draws from
// the same bucket for a key.
type TokenBucket struct {
    rdb *redis.Client
    cfg config.RateLimitConfig
}

// Take draws one token from the bucket stored under key.
func (b *TokenBucket) Take(ctx context.Context, key string, now time.Time) (Decision, error) {
    res, err := takeScript.Run(ctx, b.rdb, []string{key},
        b.cfg.Capacity,
        b.cfg.RefillTokens,
        b.cfg.RefillInterval.Milliseconds(),
        now.UnixMilli(),
        int64(b.cfg.TTL/time.Second),
    ).Int64Slice()
    if err != nil {
        return Decision{}, err
    }
    if len(res) != 3 {
        return Decision{}, fmt.Errorf("ratelimit: unexpected script result %v", res)
    }
    return Decision{
        Allowed:    res[0] == 1,
        Remaining:  res[1],
        RetryAfter: time.Duration(res[2]) * time.Millisecond,
    }, nil
}

// NewTokenBucket returns middleware that limits each caller with a
// TokenBucket.  It is a no-op when disabled or without Redis, and Redis
// errors let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *logger.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    if log == nil {
        log = logger.Discard()
    }
    bucket := &TokenBucket{rdb: rdb, cfg: cfg}
    limit := strconv.Itoa(cfg.Capacity)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            ctx := c.Request().Context()
            key := buildRateKey(cfg, c)
            d, err := bucket.Take(ctx, key, time.Now())
            if err != nil {
                log.WarnContext(ctx, "rate limiter unavailable", "key", key, "error", err)
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", limit)
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if d.Allowed {
                return next(c)
            }

            secs := int((d.RetryAfter + time.Second - 1) / time.Second)
            h.Set("Retry-After", strconv.Itoa(secs))
            log.DebugContext(ctx, "rate limited", "key", key, "retry_after_s", secs)
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "error":      "rate limit exceeded",
                "retryAfter": secs,
            })
        }
    }
}

// buildRateKey joins the configured identity parts into the bucket key,
// e.g. "rl:ip:10.0.0.1:session:abc".
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    parts := map[string][]string{
        "ip":      {"ip", ip},
        "session": {"session", currentSession(c)},
        "route":   {"route", c.Request().Method + " " + c.Path()},
    }

    var strategy []string
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip", "session", "route":
        strategy = []string{strings.ToLower(cfg.KeyStrategy)}
    case "ip_route":
        strategy = []string{"ip", "route"}
    case "session_route":
        strategy = []string{"session", "route"}
    default:
        strategy = []string{"ip", "session"}
    }

    key := []string{cfg.Prefix}
    for _, s := range strategy {
        key = append(key, parts[s]...)
    }
    return strings.Join(key, ":")
}

// currentSession identifies the caller for rate limiting: the reservation
// session when the client names one, otherwise the JWT subject of staff
// and gateway calls, otherwise "anon".
func currentSession(c echo.Context) string {
    if s := strings.TrimSpace(c.Request().Header.Get(SessionHeader)); s != "" {
        return s
    }
    if s := strings.TrimSpace(c.QueryParam("sessionId")); s != "" {
        return s
    }
    if s := c.Param("sessionId"); s != "" {
        return s
    }
    if v, ok := c.Get("user_id").(string); ok && v != "" {
        return "sub:" + v
    }
    return "anon"
}
