package threshold

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/clock"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/common"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/config"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/forecast"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/metrics"
)

// probeWidth is the span queried for the current emissions rating
const probeWidth = time.Millisecond

// EmissionsProvider returns observed emissions for a set of regions
type EmissionsProvider interface {
	EmissionsForLocations(ctx context.Context, regions []string, start, end time.Time) ([]forecast.EmissionsData, error)
}

// Guard approves execution while the current emissions rating stays at or
// below a fixed threshold
type Guard struct {
	provider  EmissionsProvider
	window    config.WindowConfig
	emissions config.EmissionsConfig
	clock     clock.Clock
}

// Option customizes a Guard
type Option func(*Guard)

// WithClock sets the clock used for the probe instant
func WithClock(c clock.Clock) Option {
	return func(g *Guard) {
		g.clock = clock.OrReal(c)
	}
}

// New creates a threshold guard
func New(provider EmissionsProvider, window config.WindowConfig, emissions config.EmissionsConfig, opts ...Option) *Guard {
	g := &Guard{
		provider:  provider,
		window:    window,
		emissions: emissions,
		clock:     clock.RealClock{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ContinueExecution reports whether the configured region's current rating is
// within the threshold. When the provider has nothing for the region the
// OnNoEmissionsContinue policy decides between approval and an error.
func (g *Guard) ContinueExecution(ctx context.Context) (bool, error) {
	region := common.NormalizeRegion(g.window.Region)
	if common.IsBlank(region) {
		return false, common.ErrMissingRegion
	}

	start := g.clock.Now()
	data, err := g.provider.EmissionsForLocations(ctx, []string{region}, start, start.Add(probeWidth))
	if err != nil {
		return false, fmt.Errorf("failed to get emissions for region %q: %w", region, err)
	}

	if len(data) == 0 {
		if g.emissions.OnNoEmissionsContinue {
			klog.InfoS("No emissions data available, continuing", "region", region, "time", start)
			return true, nil
		}
		return false, fmt.Errorf("region %q at %s: %w", region, start.Format(time.RFC3339), common.ErrNoEmissionsData)
	}

	// Latest observation wins
	current := data[len(data)-1]
	metrics.EmissionsRating.WithLabelValues(region).Set(current.Rating)

	if current.Rating > g.emissions.Threshold {
		klog.InfoS("Emissions above threshold, skipping execution",
			"region", region,
			"rating", current.Rating,
			"threshold", g.emissions.Threshold,
			"observedAt", current.Time)
		return false, nil
	}

	klog.V(2).InfoS("Emissions within threshold",
		"region", region,
		"rating", current.Rating,
		"threshold", g.emissions.Threshold)
	return true, nil
}
