package redis

import "errors"

var (
	// ErrInvalidConnectionURL indicates the connection string could not be parsed.
	ErrInvalidConnectionURL = errors.New("redis: invalid connection URL")

	// ErrNotReady indicates the server did not answer within the configured
	// retry budget.
	ErrNotReady = errors.New("redis: server not ready")

	// ErrHealthcheckFailed indicates a readiness probe failure.
	ErrHealthcheckFailed = errors.New("redis: healthcheck failed")
)
