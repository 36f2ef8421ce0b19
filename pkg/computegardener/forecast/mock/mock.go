package mock

import (
	"context"
	"sync"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/forecast"
)

// MockProvider implements forecast.Provider for testing. It records every query
// it receives.
type MockProvider struct {
	CurrentForecastFunc func(ctx context.Context, query forecast.ForecastQuery) ([]forecast.EmissionsForecast, error)

	mutex   sync.Mutex
	queries []forecast.ForecastQuery
}

// New creates a provider that always answers with forecasts
func New(forecasts ...forecast.EmissionsForecast) *MockProvider {
	return &MockProvider{
		CurrentForecastFunc: func(context.Context, forecast.ForecastQuery) ([]forecast.EmissionsForecast, error) {
			return forecasts, nil
		},
	}
}

// NewWithError creates a provider that always fails with err
func NewWithError(err error) *MockProvider {
	return &MockProvider{
		CurrentForecastFunc: func(context.Context, forecast.ForecastQuery) ([]forecast.EmissionsForecast, error) {
			return nil, err
		},
	}
}

// CurrentForecast delegates to the mock function
func (m *MockProvider) CurrentForecast(ctx context.Context, query forecast.ForecastQuery) ([]forecast.EmissionsForecast, error) {
	m.mutex.Lock()
	m.queries = append(m.queries, query)
	m.mutex.Unlock()

	if m.CurrentForecastFunc != nil {
		return m.CurrentForecastFunc(ctx, query)
	}
	return nil, nil
}

// Calls returns how many times the provider was queried
func (m *MockProvider) Calls() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.queries)
}

// Queries returns a copy of the received queries
func (m *MockProvider) Queries() []forecast.ForecastQuery {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]forecast.ForecastQuery, len(m.queries))
	copy(out, m.queries)
	return out
}
