// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11 behind a
// small generic API: LoadEnv reads one or more .env files into the process
// environment, and Load parses the environment into any tagged struct. Each
// configuration type is parsed once and cached for the process lifetime;
// tests can reset the cache or force a reload after changing variables.
//
// Example:
//
//	type SessionConfig struct {
//		TableDuration time.Duration `env:"GUESTSESSION_TABLE_DURATION" envDefault:"240m"`
//		MaxPerTable   int           `env:"GUESTSESSION_MAX_PER_TABLE" envDefault:"10"`
//	}
//
//	var cfg SessionConfig
//	if err := config.Load(&cfg); err != nil {
//		// handle error
//	}
package config
