package forecast_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/cache"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/common"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/forecast"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/forecast/mock"
)

var baseTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newGateway(t *testing.T, provider forecast.Provider) (*forecast.Gateway, *testingclock.FakeClock) {
	t.Helper()
	fakeClock := testingclock.NewFakeClock(baseTime)
	guard := cache.New(cache.WithClock(fakeClock))
	t.Cleanup(guard.Close)
	return forecast.NewGateway(provider, guard, forecast.WithGatewayClock(fakeClock)), fakeClock
}

func sampleForecast(location string) forecast.EmissionsForecast {
	return forecast.EmissionsForecast{
		Location:    location,
		GeneratedAt: baseTime.Add(-time.Hour),
		OptimalDataPoints: []forecast.DataPoint{
			{Location: location, Time: baseTime.Add(30 * time.Minute), Duration: 15, Rating: 100},
		},
	}
}

func TestFetchBuildsQuery(t *testing.T) {
	provider := mock.New(sampleForecast("eastus"))
	gateway, _ := newGateway(t, provider)

	evalTime := baseTime.Add(5 * time.Minute)
	got, err := gateway.Fetch(context.Background(), "eastus", evalTime, 4, 30)
	require.NoError(t, err)
	assert.Equal(t, "eastus", got.Location)

	queries := provider.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, []string{"eastus"}, queries[0].Regions)
	assert.True(t, queries[0].WindowStart.Equal(evalTime))
	assert.True(t, queries[0].WindowEnd.Equal(evalTime.Add(4*time.Hour)))
	assert.Equal(t, 30, queries[0].DurationMinutes)
	assert.NoError(t, queries[0].Validate())
}

func TestFetchReusesProviderAnswer(t *testing.T) {
	provider := mock.New(sampleForecast("eastus"))
	gateway, fakeClock := newGateway(t, provider)
	ctx := context.Background()
	evalTime := baseTime.Add(5 * time.Minute)

	for i := 0; i < 3; i++ {
		_, err := gateway.Fetch(ctx, "eastus", evalTime, 4, 30)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, provider.Calls(), "repeated requests inside the TTL must share one provider call")

	// A different signature is a different entry
	_, err := gateway.Fetch(ctx, "eastus", evalTime, 4, 60)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.Calls())

	fakeClock.Step(common.DefaultForecastTTL)
	_, err = gateway.Fetch(ctx, "eastus", evalTime, 4, 30)
	require.NoError(t, err)
	assert.Equal(t, 3, provider.Calls(), "expired answers must be refetched")
}

func TestFetchReturnsFirstForecast(t *testing.T) {
	provider := mock.New(sampleForecast("first"), sampleForecast("second"))
	gateway, _ := newGateway(t, provider)

	got, err := gateway.Fetch(context.Background(), "eastus", baseTime, 1, 15)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Location)
}

func TestFetchNoData(t *testing.T) {
	provider := mock.New()
	gateway, _ := newGateway(t, provider)

	_, err := gateway.Fetch(context.Background(), "eastus", baseTime, 1, 15)
	assert.ErrorIs(t, err, common.ErrNoForecastData)
}

func TestFetchProviderError(t *testing.T) {
	upstream := errors.New("connection refused")
	provider := mock.NewWithError(upstream)
	gateway, _ := newGateway(t, provider)
	ctx := context.Background()

	_, err := gateway.Fetch(ctx, "eastus", baseTime, 1, 15)
	assert.ErrorIs(t, err, upstream)
	assert.NotErrorIs(t, err, common.ErrNoForecastData)

	_, err = gateway.Fetch(ctx, "eastus", baseTime, 1, 15)
	assert.ErrorIs(t, err, upstream)
	assert.Equal(t, 2, provider.Calls(), "failures must not be cached")
}

func TestFetchValidation(t *testing.T) {
	tests := []struct {
		name     string
		region   string
		evalTime time.Time
		window   int
		duration int
	}{
		{name: "empty region", region: "", evalTime: baseTime, window: 1, duration: 10},
		{name: "blank region", region: "  ", evalTime: baseTime, window: 1, duration: 10},
		{name: "zero window", region: "eastus", evalTime: baseTime, window: 0, duration: 10},
		{name: "zero duration", region: "eastus", evalTime: baseTime, window: 1, duration: 0},
		{name: "duration exceeds window", region: "eastus", evalTime: baseTime, window: 1, duration: 61},
		{name: "past evaluation time", region: "eastus", evalTime: baseTime.Add(-time.Second), window: 1, duration: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := mock.New(sampleForecast("eastus"))
			gateway, _ := newGateway(t, provider)

			_, err := gateway.Fetch(context.Background(), tt.region, tt.evalTime, tt.window, tt.duration)
			assert.ErrorIs(t, err, common.ErrInvalidArgument)
			assert.Equal(t, 0, provider.Calls(), "invalid requests must fail before any provider call")
		})
	}
}

func TestValidateWindowBounds(t *testing.T) {
	require.NoError(t, forecast.ValidateWindow("eastus", forecast.MaxWindowHours, 15))
	assert.Equal(t, 2562047, forecast.MaxWindowHours)
	assert.Greater(t, time.Duration(forecast.MaxWindowHours)*time.Hour, time.Duration(0))

	assert.ErrorIs(t, forecast.ValidateWindow("eastus", forecast.MaxWindowHours+1, 15), common.ErrInvalidArgument)
	assert.ErrorIs(t, forecast.ValidateWindow("eastus", -1, 15), common.ErrInvalidArgument)
}
