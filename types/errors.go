package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigInvalidPath    = errors.New("config path is invalid")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrCacheKeyEmpty        = errors.New("cache key empty")
	ErrCacheValueUnresolved = errors.New("cache value is an unresolved computation")
	ErrCacheEntryTooLarge   = errors.New("cache entry exceeds memory limit")
	ErrCacheNotFound        = errors.New("cache entry not found")
	ErrCacheIsDisabled      = errors.New("cache is disabled")
)

var (
	ErrStoreKeyNotFound      = errors.New("store key not found")
	ErrStoreCorruptEntry     = errors.New("store entry corrupt")
	ErrStoreTypeUnknown      = errors.New("store type unknown")
	ErrStoreIsDisabled       = errors.New("durable store is disabled")
	ErrStoreConnectionFailed = errors.New("store connection failed")
)

var (
	ErrSchedulerStopped = errors.New("refresh scheduler stopped")
	ErrFetchFuncIsNil   = errors.New("fetch function is nil")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServiceIsNotRunning  = errors.New("service is not running")
)

var (
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
	ErrMetricsIsDisabled  = errors.New("metrics manager is disabled")
)

var (
	ErrLogFileIsEmpty     = errors.New("log file is empty")
	ErrLogFileWrongFormat = errors.New("log file wrong format")
	ErrLoggerTypeUnknown  = errors.New("logger type unknown")
)

var (
	ErrEntityInvalid    = errors.New("entity failed validation")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNotSupported     = errors.New("not supported")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
