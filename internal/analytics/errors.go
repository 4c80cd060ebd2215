package analytics

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument - недопустимые параметры запроса метрики.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotConfigured - движок собран без базы или кэша.
	ErrNotConfigured = errors.New("analytics engine is not configured")
)

// MetricError - сбой одной ветки дашборда.
type MetricError struct {
	Branch int
	Metric string
	Err    error
}

func (e *MetricError) Error() string {
	return fmt.Sprintf("metric %s (branch %d): %v", e.Metric, e.Branch, e.Err)
}

func (e *MetricError) Unwrap() error { return e.Err }
