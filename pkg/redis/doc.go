// Package redis connects guestkit services to a Redis server.
//
// It wraps the go-redis client with a retrying Connect helper and a
// health-check function for readiness probes. The shared Redis connection
// backs the rate limiter's attempt store and the session snapshot medium.
//
// Configuration is described by the Config struct whose fields are populated
// from environment variables via github.com/caarlos0/env.
package redis
