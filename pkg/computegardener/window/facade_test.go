package window

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/common"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/config"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/forecast/mock"
)

type recorderFunc func(ctx context.Context, resp *OptimalWindowResponse) error

func (f recorderFunc) RecordDecision(ctx context.Context, resp *OptimalWindowResponse) error {
	return f(ctx, resp)
}

var defaultSettings = config.WindowConfig{
	Region:                     "East US",
	EstimatedExecutionDuration: 15,
	WindowSizeHours:            8,
}

func TestFacadeEntryPoints(t *testing.T) {
	tests := []struct {
		name           string
		call           func(ctx context.Context, f *Facade) (bool, error)
		expectRegion   string
		expectWindow   int
		expectDuration int
	}{
		{
			name:           "all from settings",
			call:           func(ctx context.Context, f *Facade) (bool, error) { return f.IsOptimalWindowNow(ctx) },
			expectRegion:   "eastus",
			expectWindow:   8,
			expectDuration: 15,
		},
		{
			name: "explicit region",
			call: func(ctx context.Context, f *Facade) (bool, error) {
				return f.IsOptimalWindowNowInRegion(ctx, "West Europe")
			},
			expectRegion:   "westeurope",
			expectWindow:   8,
			expectDuration: 15,
		},
		{
			name: "explicit window and duration",
			call: func(ctx context.Context, f *Facade) (bool, error) {
				return f.IsOptimalWindowNowFor(ctx, 4, 30)
			},
			expectRegion:   "eastus",
			expectWindow:   4,
			expectDuration: 30,
		},
		{
			name: "everything explicit",
			call: func(ctx context.Context, f *Facade) (bool, error) {
				return f.IsOptimalWindowNowIn(ctx, "UK South", 2, 45)
			},
			expectRegion:   "uksouth",
			expectWindow:   2,
			expectDuration: 45,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, mock.New(forecastWith(rounded)), defaultSettings)
			facade := NewFacade(env.engine, defaultSettings)

			optimal, err := tt.call(context.Background(), facade)
			require.NoError(t, err)
			assert.True(t, optimal)

			queries := env.provider.Queries()
			require.Len(t, queries, 1)
			assert.Equal(t, []string{tt.expectRegion}, queries[0].Regions)
			assert.Equal(t, tt.expectDuration, queries[0].DurationMinutes)
			assert.Equal(t, float64(tt.expectWindow), queries[0].WindowEnd.Sub(queries[0].WindowStart).Hours())
		})
	}
}

func TestFacadeMissingRegion(t *testing.T) {
	for _, region := range []string{"", "   "} {
		settings := defaultSettings
		settings.Region = region

		env := newTestEnv(t, mock.New(forecastWith(rounded)), settings)
		facade := NewFacade(env.engine, settings)

		_, err := facade.IsOptimalWindowNow(context.Background())
		assert.ErrorIs(t, err, common.ErrMissingRegion)

		_, err = facade.Decide(context.Background())
		assert.ErrorIs(t, err, common.ErrMissingRegion)
		assert.Equal(t, 0, env.provider.Calls())
	}
}

func TestFacadeDecideRecords(t *testing.T) {
	env := newTestEnv(t, mock.New(forecastWith(rounded.Add(time.Hour))), defaultSettings)

	var mutex sync.Mutex
	var recorded []*OptimalWindowResponse
	recorder := recorderFunc(func(_ context.Context, resp *OptimalWindowResponse) error {
		mutex.Lock()
		defer mutex.Unlock()
		recorded = append(recorded, resp)
		return nil
	})
	facade := NewFacade(env.engine, defaultSettings, WithRecorder(recorder))

	resp, err := facade.Decide(context.Background())
	require.NoError(t, err)
	assert.False(t, resp.IsOptimalWindowNow)
	assert.Equal(t, ReasonNextWindow, resp.Reason)
	assert.Equal(t, "eastus", resp.Region)

	require.Len(t, recorded, 1)
	assert.Same(t, resp, recorded[0])
}

func TestFacadeRecorderFailureIsNotReturned(t *testing.T) {
	env := newTestEnv(t, mock.New(forecastWith(rounded)), defaultSettings)
	recorder := recorderFunc(func(context.Context, *OptimalWindowResponse) error {
		return errors.New("disk full")
	})
	facade := NewFacade(env.engine, defaultSettings, WithRecorder(recorder))

	optimal, err := facade.IsOptimalWindowNow(context.Background())
	require.NoError(t, err)
	assert.True(t, optimal)
}

func TestFacadeNotRecordedOnError(t *testing.T) {
	env := newTestEnv(t, mock.New(), defaultSettings)
	called := false
	recorder := recorderFunc(func(context.Context, *OptimalWindowResponse) error {
		called = true
		return nil
	})
	facade := NewFacade(env.engine, defaultSettings, WithRecorder(recorder))

	_, err := facade.Decide(context.Background())
	assert.ErrorIs(t, err, common.ErrNoForecastData)
	assert.False(t, called)
}
