package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"k8s.io/klog/v2"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/cache"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/clock"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/common"
)

// Provider returns the current forecast for each requested location
type Provider interface {
	CurrentForecast(ctx context.Context, query ForecastQuery) ([]EmissionsForecast, error)
}

// Gateway turns a single-region window request into a memoized provider call.
// It applies no fallback policy: an empty answer is reported as
// common.ErrNoForecastData.
type Gateway struct {
	provider Provider
	guard    *cache.Guard
	clock    clock.Clock
	ttl      time.Duration
}

// GatewayOption customizes a Gateway
type GatewayOption func(*Gateway)

// WithGatewayClock sets the clock used to reject past evaluation instants
func WithGatewayClock(c clock.Clock) GatewayOption {
	return func(g *Gateway) {
		g.clock = clock.OrReal(c)
	}
}

// WithTTL overrides how long a provider answer is reused
func WithTTL(ttl time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.ttl = ttl
	}
}

// NewGateway creates a gateway over provider, memoizing through guard
func NewGateway(provider Provider, guard *cache.Guard, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		provider: provider,
		guard:    guard,
		clock:    clock.RealClock{},
		ttl:      common.DefaultForecastTTL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Fetch returns the forecast for region over [evalTime, evalTime+windowHours].
// Answers are reused for the gateway TTL per (region, instant, window, duration).
func (g *Gateway) Fetch(ctx context.Context, region string, evalTime time.Time, windowHours, durationMinutes int) (EmissionsForecast, error) {
	if err := ValidateRequest(g.clock, region, evalTime, windowHours, durationMinutes); err != nil {
		return EmissionsForecast{}, err
	}

	key := cacheKey(region, evalTime, windowHours, durationMinutes)
	query := ForecastQuery{
		Regions:         []string{region},
		WindowStart:     evalTime,
		WindowEnd:       evalTime.Add(time.Duration(windowHours) * time.Hour),
		DurationMinutes: durationMinutes,
	}

	forecasts, err := cache.GetOrCompute(ctx, g.guard, key, func(ctx context.Context) ([]EmissionsForecast, error) {
		klog.V(3).InfoS("Requesting forecast from provider",
			"region", region,
			"windowStart", query.WindowStart,
			"windowEnd", query.WindowEnd,
			"duration", durationMinutes)
		return g.provider.CurrentForecast(ctx, query)
	}, g.ttl)
	if err != nil {
		return EmissionsForecast{}, fmt.Errorf("failed to get forecast for region %q: %w", region, err)
	}

	if len(forecasts) == 0 {
		return EmissionsForecast{}, fmt.Errorf("region %q at %s: %w", region, evalTime.Format(time.RFC3339), common.ErrNoForecastData)
	}

	if klogV := klog.V(4); klogV.Enabled() {
		if dump, err := json.MarshalIndent(forecasts, "", "  "); err == nil {
			klogV.InfoS("Forecast data", "region", region, "evalTime", evalTime, "forecast", string(dump))
		}
	}

	// One region, one result
	return forecasts[0], nil
}

// ValidateRequest checks a single-region window request. The window must be at
// least one hour, the duration must fit in it and evalTime must not be past.
func ValidateRequest(c clock.Clock, region string, evalTime time.Time, windowHours, durationMinutes int) error {
	if err := ValidateWindow(region, windowHours, durationMinutes); err != nil {
		return err
	}
	if !clock.NotBefore(clock.OrReal(c), evalTime) {
		return fmt.Errorf("%w: evaluation time %s is in the past", common.ErrInvalidArgument, evalTime.Format(time.RFC3339))
	}
	return nil
}

// MaxWindowHours is the widest window whose length still fits in a
// time.Duration
const MaxWindowHours = int(math.MaxInt64 / int64(time.Hour))

// ValidateWindow checks the time-independent part of a request
func ValidateWindow(region string, windowHours, durationMinutes int) error {
	if common.IsBlank(region) {
		return fmt.Errorf("%w: region is empty", common.ErrInvalidArgument)
	}
	if windowHours < 1 || windowHours > MaxWindowHours {
		return fmt.Errorf("%w: window of %d hours is out of bounds", common.ErrInvalidArgument, windowHours)
	}
	if durationMinutes < 1 || durationMinutes > windowHours*60 {
		return fmt.Errorf("%w: duration %d minutes must be between 1 and %d", common.ErrInvalidArgument, durationMinutes, windowHours*60)
	}
	return nil
}

func cacheKey(region string, evalTime time.Time, windowHours, durationMinutes int) string {
	return fmt.Sprintf("%s-%d-%d-%d", region, evalTime.UnixNano(), windowHours, durationMinutes)
}
