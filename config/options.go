package config

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/c360/docmesh/errors"
	"github.com/c360/docmesh/loader"
	"github.com/c360/docmesh/merge"
)

// Option bounds. Values outside them fail validation.
const (
	MinRefreshInterval     = 10 * time.Second
	MaxRefreshInterval     = 24 * time.Hour
	MinLoadTimeout         = 5 * time.Second
	MaxLoadTimeout         = 5 * time.Minute
	MinAggregationTimeout  = 30 * time.Second
	MaxAggregationTimeout  = 10 * time.Minute
	MinParallelism         = 1
	MaxParallelism         = 50
	MaxRetryAttempts       = 10
	MaxSwaggerPathLength   = 200
	MaxStartupDelay        = 5 * time.Minute
	MinDocumentSizeBytes   = 1 << 10
	MaxDocumentSizeBytes   = 100 << 20
	DefaultDocumentSize    = 10 << 20
	DefaultSwaggerPath     = "/swagger/v1/swagger.json"
	DefaultRefreshInterval = 5 * time.Minute
)

// Options are the aggregation settings. All of them can change at runtime.
type Options struct {
	RefreshInterval              time.Duration `json:"refresh_interval"`
	LoadTimeout                  time.Duration `json:"load_timeout"`
	AggregationTimeout           time.Duration `json:"aggregation_timeout"`
	MaxParallelism               int           `json:"max_parallelism"`
	MaxRetryAttempts             int           `json:"max_retry_attempts"`
	DefaultSwaggerPath           string        `json:"default_swagger_path"`
	StartupDelay                 time.Duration `json:"startup_delay"`
	MaxDocumentSizeBytes         int64         `json:"max_document_size_bytes"`
	IncludeFailedServicesWarning bool          `json:"include_failed_services_warning"`
}

// DefaultOptions returns the documented defaults
func DefaultOptions() Options {
	return Options{
		RefreshInterval:              DefaultRefreshInterval,
		LoadTimeout:                  30 * time.Second,
		AggregationTimeout:           2 * time.Minute,
		MaxParallelism:               10,
		MaxRetryAttempts:             3,
		DefaultSwaggerPath:           DefaultSwaggerPath,
		StartupDelay:                 5 * time.Second,
		MaxDocumentSizeBytes:         DefaultDocumentSize,
		IncludeFailedServicesWarning: true,
	}
}

// Validate reports every out-of-range option at once
func (o Options) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(o.RefreshInterval >= MinRefreshInterval && o.RefreshInterval <= MaxRefreshInterval,
		"refresh_interval %v outside [%v, %v]", o.RefreshInterval, MinRefreshInterval, MaxRefreshInterval)
	check(o.LoadTimeout >= MinLoadTimeout && o.LoadTimeout <= MaxLoadTimeout,
		"load_timeout %v outside [%v, %v]", o.LoadTimeout, MinLoadTimeout, MaxLoadTimeout)
	check(o.AggregationTimeout >= MinAggregationTimeout && o.AggregationTimeout <= MaxAggregationTimeout,
		"aggregation_timeout %v outside [%v, %v]", o.AggregationTimeout, MinAggregationTimeout, MaxAggregationTimeout)
	check(o.MaxParallelism >= MinParallelism && o.MaxParallelism <= MaxParallelism,
		"max_parallelism %d outside [%d, %d]", o.MaxParallelism, MinParallelism, MaxParallelism)
	check(o.MaxRetryAttempts >= 0 && o.MaxRetryAttempts <= MaxRetryAttempts,
		"max_retry_attempts %d outside [0, %d]", o.MaxRetryAttempts, MaxRetryAttempts)
	check(strings.TrimSpace(o.DefaultSwaggerPath) != "",
		"default_swagger_path must not be empty")
	check(len(o.DefaultSwaggerPath) <= MaxSwaggerPathLength,
		"default_swagger_path longer than %d characters", MaxSwaggerPathLength)
	check(o.StartupDelay >= 0 && o.StartupDelay <= MaxStartupDelay,
		"startup_delay %v outside [0s, %v]", o.StartupDelay, MaxStartupDelay)
	check(o.MaxDocumentSizeBytes >= MinDocumentSizeBytes && o.MaxDocumentSizeBytes <= MaxDocumentSizeBytes,
		"max_document_size_bytes %d outside [%d, %d]", o.MaxDocumentSizeBytes, MinDocumentSizeBytes, MaxDocumentSizeBytes)

	if len(errs) == 0 {
		return nil
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %w", errors.ErrInvalidConfig, stderrors.Join(errs...)),
		"config", "Options.Validate", "validate aggregation options")
}

// Limits returns the per-load limits for the document loader
func (o Options) Limits() loader.Limits {
	return loader.Limits{Timeout: o.LoadTimeout, MaxSize: o.MaxDocumentSizeBytes}
}

// MergeOptions returns the merger settings
func (o Options) MergeOptions() merge.Options {
	return merge.Options{IncludeFailedServicesWarning: o.IncludeFailedServicesWarning}
}
