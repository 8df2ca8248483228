// Package middleware provides rate limiting for the registry API.
//
// # Overview
//
// Clients are keyed by IP address. Two limiters implement Limiter:
//
// RateLimiter: in-memory token bucket, per process
//
//	limiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{RequestsPerWindow: 600, WindowDuration: time.Minute, BurstSize: 10})
//	limiter.StartCleanup(ctx)
//
// DistributedRateLimiter: Redis fixed window, shared by all instances
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, config, "apievolve:ratelimit")
//
// Either is mounted with RateLimit:
//
//	router.Use(middleware.RateLimit(limiter))
//
// Limiter errors fail open: the request is served and the error logged.
//
// # Related Packages
//
//   - pkg/api: mounts the middleware on /api/v1
//   - pkg/config: APIEVOLVE_RATE_LIMIT and APIEVOLVE_RATE_LIMIT_BURST
package middleware
