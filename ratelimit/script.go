package ratelimit

import "github.com/redis/go-redis/v9"

// tokenBucketScript implements the refill-then-consume-or-deny algorithm
// atomically: read (tokens, last_refill) defaulting to (capacity, now) on
// absence, refill by whole elapsed periods, then admit or deny n tokens.
// The key's TTL is reset to 2x the refill period on every touch so an idle
// bucket evaporates rather than pinning memory forever.
//
// KEYS[1] = bucket key
// ARGV[1] = capacity
// ARGV[2] = refill_rate (tokens per period)
// ARGV[3] = refill_period_seconds
// ARGV[4] = n (tokens requested)
// ARGV[5] = now (unix seconds)
//
// Returns {allowed (0|1), tokens_remaining, reset_at (unix seconds), retry_after_seconds}
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local period = tonumber(ARGV[3])
local n = tonumber(ARGV[4])
local now = tonumber(ARGV[5])

local tokens = capacity
local last_refill = now

local existing = redis.call('HMGET', key, 'tokens', 'last_refill')
if existing[1] and existing[2] then
  tokens = tonumber(existing[1])
  last_refill = tonumber(existing[2])
end

local periods_elapsed = math.floor((now - last_refill) / period)
if periods_elapsed > 0 then
  tokens = math.min(capacity, tokens + periods_elapsed * refill_rate)
  last_refill = last_refill + periods_elapsed * period
end

local allowed = 0
local retry_after = 0
if tokens >= n then
  allowed = 1
  tokens = tokens - n
else
  retry_after = math.ceil((n - tokens) / refill_rate) * period
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_refill', tostring(last_refill))
redis.call('EXPIRE', key, period * 2)

return {allowed, tostring(tokens), last_refill + period, retry_after}
`)
