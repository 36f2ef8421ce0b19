package window

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/common"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/config"
)

// Recorder receives every successful decision
type Recorder interface {
	RecordDecision(ctx context.Context, resp *OptimalWindowResponse) error
}

// Facade exposes the engine to a trigger, filling any argument the caller
// leaves out from the injected settings
type Facade struct {
	engine   *Engine
	settings config.WindowConfig
	recorder Recorder
}

// FacadeOption customizes a Facade
type FacadeOption func(*Facade)

// WithRecorder sets a recorder for decisions. Recorder failures are logged.
func WithRecorder(r Recorder) FacadeOption {
	return func(f *Facade) {
		f.recorder = r
	}
}

// NewFacade creates a facade over engine
func NewFacade(engine *Engine, settings config.WindowConfig, opts ...FacadeOption) *Facade {
	f := &Facade{
		engine:   engine,
		settings: settings,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsOptimalWindowNow decides for the configured region, window and duration
func (f *Facade) IsOptimalWindowNow(ctx context.Context) (bool, error) {
	return f.IsOptimalWindowNowIn(ctx, f.settings.Region, f.settings.WindowSizeHours, f.settings.EstimatedExecutionDuration)
}

// IsOptimalWindowNowInRegion decides for region with the configured window and duration
func (f *Facade) IsOptimalWindowNowInRegion(ctx context.Context, region string) (bool, error) {
	return f.IsOptimalWindowNowIn(ctx, region, f.settings.WindowSizeHours, f.settings.EstimatedExecutionDuration)
}

// IsOptimalWindowNowFor decides for the configured region
func (f *Facade) IsOptimalWindowNowFor(ctx context.Context, windowHours, durationMinutes int) (bool, error) {
	return f.IsOptimalWindowNowIn(ctx, f.settings.Region, windowHours, durationMinutes)
}

// IsOptimalWindowNowIn decides for explicit arguments
func (f *Facade) IsOptimalWindowNowIn(ctx context.Context, region string, windowHours, durationMinutes int) (bool, error) {
	resp, err := f.decide(ctx, region, windowHours, durationMinutes)
	if err != nil {
		return false, err
	}
	return resp.IsOptimalWindowNow, nil
}

// Decide is IsOptimalWindowNow returning the full response
func (f *Facade) Decide(ctx context.Context) (*OptimalWindowResponse, error) {
	return f.decide(ctx, f.settings.Region, f.settings.WindowSizeHours, f.settings.EstimatedExecutionDuration)
}

func (f *Facade) decide(ctx context.Context, region string, windowHours, durationMinutes int) (*OptimalWindowResponse, error) {
	normalized := common.NormalizeRegion(region)
	if common.IsBlank(normalized) {
		return nil, common.ErrMissingRegion
	}

	resp, err := f.engine.EvaluateNow(ctx, normalized, windowHours, durationMinutes)
	if err != nil {
		return nil, err
	}

	if f.recorder != nil {
		if err := f.recorder.RecordDecision(ctx, resp); err != nil {
			klog.ErrorS(err, "Failed to record decision", "region", normalized, "evaluatedAt", resp.EvaluatedAt)
		}
	}
	return resp, nil
}
