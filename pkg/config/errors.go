package config

import "errors"

var (
	// ErrParsingConfig indicates the environment could not be parsed into
	// the config struct.
	ErrParsingConfig = errors.New("config: failed to parse environment variables")

	// ErrNilPointer indicates a nil pointer was passed to Load.
	ErrNilPointer = errors.New("config: nil pointer provided")

	// ErrLoadingEnv indicates a .env file could not be read.
	ErrLoadingEnv = errors.New("config: failed to load env file")
)
