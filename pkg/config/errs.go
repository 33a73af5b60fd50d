package config

import "errors"

var (
	ErrLogLevel   = errors.New("config: unknown log level")
	ErrIterations = errors.New("config: iterations must be positive")
)
