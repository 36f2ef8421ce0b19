package forecast

import (
	"fmt"
	"sort"
	"time"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/common"
)

// DataPoint is one forecast sample or candidate execution start
type DataPoint struct {
	Location string    `json:"location"`
	Time     time.Time `json:"timestamp"`
	Duration int       `json:"duration"` // minutes
	Rating   float64   `json:"value"`    // gCO2eq/kWh
}

// EmissionsForecast is one location's forecast. It is treated as immutable once
// returned by a provider.
type EmissionsForecast struct {
	Location    string    `json:"location"`
	RequestedAt time.Time `json:"requestedAt"`
	GeneratedAt time.Time `json:"generatedAt"`
	WindowStart time.Time `json:"dataStartAt"`
	WindowEnd   time.Time `json:"dataEndAt"`
	WindowSize  int       `json:"windowSize"` // minutes

	// OptimalDataPoints holds the candidate starts, best (lowest rating) first
	OptimalDataPoints []DataPoint `json:"optimalDataPoints"`

	// ForecastData is the raw forecast series
	ForecastData []DataPoint `json:"forecastData"`
}

// HasCandidates reports whether the provider found any optimal window
func (f EmissionsForecast) HasCandidates() bool {
	return len(f.OptimalDataPoints) > 0
}

// Contains reports whether t is one of the candidate starts
func (f EmissionsForecast) Contains(t time.Time) bool {
	for _, p := range f.OptimalDataPoints {
		if p.Time.Equal(t) {
			return true
		}
	}
	return false
}

// RankDataPoints returns a copy of points ordered by rating ascending, ties
// broken by the earliest time
func RankDataPoints(points []DataPoint) []DataPoint {
	ranked := make([]DataPoint, len(points))
	copy(ranked, points)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Rating != ranked[j].Rating {
			return ranked[i].Rating < ranked[j].Rating
		}
		return ranked[i].Time.Before(ranked[j].Time)
	})
	return ranked
}

// ForecastQuery is the request sent to a forecast provider
type ForecastQuery struct {
	Regions         []string  `json:"regions"`
	WindowStart     time.Time `json:"windowStart"`
	WindowEnd       time.Time `json:"windowEnd"`
	DurationMinutes int       `json:"durationMinutes"`
}

// Validate checks the query invariants
func (q ForecastQuery) Validate() error {
	if len(q.Regions) == 0 {
		return fmt.Errorf("%w: at least one region is required", common.ErrInvalidArgument)
	}
	for _, r := range q.Regions {
		if common.IsBlank(r) {
			return fmt.Errorf("%w: region is empty", common.ErrInvalidArgument)
		}
	}
	if !q.WindowEnd.After(q.WindowStart) {
		return fmt.Errorf("%w: window end %s is not after start %s", common.ErrInvalidArgument, q.WindowEnd, q.WindowStart)
	}
	if q.DurationMinutes < 1 {
		return fmt.Errorf("%w: duration must be at least 1 minute", common.ErrInvalidArgument)
	}
	if float64(q.DurationMinutes) > q.WindowEnd.Sub(q.WindowStart).Minutes() {
		return fmt.Errorf("%w: duration %d minutes exceeds the %v window", common.ErrInvalidArgument,
			q.DurationMinutes, q.WindowEnd.Sub(q.WindowStart))
	}
	return nil
}

// EmissionsData is one observed emissions rating for a location
type EmissionsData struct {
	Location string    `json:"location"`
	Time     time.Time `json:"time"`
	Rating   float64   `json:"rating"`
	Duration string    `json:"duration"` // "hh:mm:ss"
}
