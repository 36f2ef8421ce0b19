package common

import "errors"

var (
	// ErrInvalidArgument reports malformed or out-of-bounds input. It is always
	// returned before any provider call is made.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMissingRegion reports that no region could be resolved from settings
	ErrMissingRegion = errors.New("region is not configured")

	// ErrNoForecastData reports that the provider returned zero forecasts
	ErrNoForecastData = errors.New("no forecast data returned")

	// ErrNoEmissionsData reports that the provider returned zero emissions
	ErrNoEmissionsData = errors.New("no emissions data returned")

	// ErrDisposed reports use of a cache guard after Close
	ErrDisposed = errors.New("cache guard is closed")
)
