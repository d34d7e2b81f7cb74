// Package middleware provides the HTTP middleware of the package daemon.
//
//   - CORS: admits the locally served IDE frontend (any loopback origin)
//     plus explicitly listed origins
//   - RateLimit: per-IP token bucket with idle eviction
//   - GlobalRateLimit: one token bucket shared by all clients
//
// Long-lived routes such as the event stream are exempt through
// RateLimitConfig.SkipPrefixes.
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
