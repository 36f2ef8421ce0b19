package window

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/clock"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/common"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/config"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/forecast"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/metrics"
)

var (
	// UndefinedWindow is reported when no forecast data was available
	UndefinedWindow = time.Time{}

	// FarFuture is reported when the forecast holds no candidate window. It is
	// the latest instant encoding/json can still marshal.
	FarFuture = time.Date(9999, time.December, 31, 23, 59, 59, 999999900, time.UTC)
)

// Reason explains how a decision was reached
type Reason string

const (
	// ReasonOptimalNow means the evaluated instant is a candidate start
	ReasonOptimalNow Reason = "optimal_now"
	// ReasonNextWindow means a better candidate exists at another time
	ReasonNextWindow Reason = "next_window"
	// ReasonNoOptimalWindow means the forecast had no candidate at all
	ReasonNoOptimalWindow Reason = "no_optimal_window"
	// ReasonNoForecastData means the provider had no forecast and policy
	// allowed continuing without one
	ReasonNoForecastData Reason = "no_forecast_data"

	reasonError = "error"
)

func (r Reason) String() string {
	return string(r)
}

// OptimalWindowResponse is the outcome of one decision. It is built fresh for
// every call and never cached.
type OptimalWindowResponse struct {
	IsOptimalWindowNow bool                       `json:"isOptimalWindowNow"`
	OptimalWindow      time.Time                  `json:"optimalWindow"`
	Data               forecast.EmissionsForecast `json:"data"`

	// EvaluatedAt is the rounded instant that was compared against the forecast
	EvaluatedAt time.Time `json:"evaluatedAt"`
	Region      string    `json:"region"`
	Reason      Reason    `json:"reason"`
}

// Fetcher returns the forecast for one region and window
type Fetcher interface {
	Fetch(ctx context.Context, region string, evalTime time.Time, windowHours, durationMinutes int) (forecast.EmissionsForecast, error)
}

// Engine decides whether an instant falls on an optimal execution window
type Engine struct {
	fetcher  Fetcher
	settings config.WindowConfig
	clock    clock.Clock
}

// EngineOption customizes an Engine
type EngineOption func(*Engine)

// WithClock sets the clock used for validation and for "now"
func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = clock.OrReal(c)
	}
}

// NewEngine creates an engine over fetcher. Only OnNoForecastExecute is read
// from settings; region and window arguments are always passed per call.
func NewEngine(fetcher Fetcher, settings config.WindowConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		fetcher:  fetcher,
		settings: settings,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RoundUp returns the smallest multiple of unit that is not before t. Aligned
// instants are returned unchanged.
func RoundUp(t time.Time, unit time.Duration) time.Time {
	truncated := t.Truncate(unit)
	if unit <= 0 || truncated.Equal(t) {
		return truncated
	}
	return truncated.Add(unit)
}

// Evaluate decides whether evalTime, rounded up to the forecast granularity,
// is an optimal window for a run of durationMinutes within the next
// windowHours. Invalid input fails with common.ErrInvalidArgument before the
// forecast is fetched.
func (e *Engine) Evaluate(ctx context.Context, region string, evalTime time.Time, windowHours, durationMinutes int) (*OptimalWindowResponse, error) {
	if err := forecast.ValidateRequest(e.clock, region, evalTime, windowHours, durationMinutes); err != nil {
		metrics.DecisionsTotal.WithLabelValues(region, reasonError).Inc()
		return nil, err
	}
	return e.decide(ctx, region, RoundUp(evalTime, common.EvaluationGranularity), windowHours, durationMinutes)
}

// EvaluateNow evaluates the rounded current instant
func (e *Engine) EvaluateNow(ctx context.Context, region string, windowHours, durationMinutes int) (*OptimalWindowResponse, error) {
	if err := forecast.ValidateWindow(region, windowHours, durationMinutes); err != nil {
		metrics.DecisionsTotal.WithLabelValues(region, reasonError).Inc()
		return nil, err
	}
	return e.decide(ctx, region, RoundUp(e.clock.Now(), common.EvaluationGranularity), windowHours, durationMinutes)
}

// IsOptimalWindowNow reports whether the rounded current instant is optimal
func (e *Engine) IsOptimalWindowNow(ctx context.Context, region string, windowHours, durationMinutes int) (bool, error) {
	resp, err := e.EvaluateNow(ctx, region, windowHours, durationMinutes)
	if err != nil {
		return false, err
	}
	return resp.IsOptimalWindowNow, nil
}

func (e *Engine) decide(ctx context.Context, region string, evalTime time.Time, windowHours, durationMinutes int) (*OptimalWindowResponse, error) {
	klog.V(3).InfoS("Evaluating optimal window",
		"region", region,
		"evalTime", evalTime,
		"windowHours", windowHours,
		"durationMinutes", durationMinutes)

	data, err := e.fetcher.Fetch(ctx, region, evalTime, windowHours, durationMinutes)
	if err != nil {
		if errors.Is(err, common.ErrNoForecastData) && e.settings.OnNoForecastExecute {
			klog.InfoS("No forecast data available, continuing without an optimal window",
				"region", region,
				"evalTime", evalTime)
			return e.respond(region, evalTime, false, UndefinedWindow, forecast.EmissionsForecast{}, ReasonNoForecastData), nil
		}
		klog.ErrorS(err, "Failed to get forecast", "region", region, "evalTime", evalTime)
		metrics.DecisionsTotal.WithLabelValues(region, reasonError).Inc()
		return nil, fmt.Errorf("evaluating window for region %q at %s: %w", region, evalTime.Format(time.RFC3339), err)
	}

	if !data.HasCandidates() {
		klog.InfoS("Forecast holds no optimal window",
			"region", region,
			"evalTime", evalTime,
			"generatedAt", data.GeneratedAt)
		return e.respond(region, evalTime, false, FarFuture, data, ReasonNoOptimalWindow), nil
	}

	if data.Contains(evalTime) {
		klog.InfoS("Current time is an optimal window",
			"region", region,
			"evalTime", evalTime)
		return e.respond(region, evalTime, true, evalTime, data, ReasonOptimalNow), nil
	}

	next := data.OptimalDataPoints[0]
	klog.InfoS("Current time is not an optimal window",
		"region", region,
		"evalTime", evalTime,
		"optimalWindow", next.Time,
		"rating", next.Rating)
	return e.respond(region, evalTime, false, next.Time, data, ReasonNextWindow), nil
}

func (e *Engine) respond(region string, evalTime time.Time, optimal bool, window time.Time, data forecast.EmissionsForecast, reason Reason) *OptimalWindowResponse {
	metrics.DecisionsTotal.WithLabelValues(region, reason.String()).Inc()
	if reason == ReasonOptimalNow || reason == ReasonNextWindow {
		metrics.OptimalWindowTimestamp.WithLabelValues(region).Set(float64(window.Unix()))
	}

	return &OptimalWindowResponse{
		IsOptimalWindowNow: optimal,
		OptimalWindow:      window,
		Data:               data,
		EvaluatedAt:        evalTime,
		Region:             region,
		Reason:             reason,
	}
}
