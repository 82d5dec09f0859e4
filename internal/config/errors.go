package config

import "errors"

var (
	// ErrInvalidConfig wraps every Validate failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps file and environment read failures.
	ErrLoadConfig = errors.New("load config failed")
)
