package main

import (
	"k8s.io/klog/v2"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/api"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/cache"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/config"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/forecast"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/history"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/threshold"
	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/window"
)

// stack owns every long-lived component built from one configuration
type stack struct {
	cfg       *config.Config
	client    *api.Client
	guard     *cache.Guard
	facade    *window.Facade
	threshold *threshold.Guard
	store     *history.Store
}

func newStack(cfg *config.Config) (*stack, error) {
	s := &stack{cfg: cfg}

	if cfg.History.DatabasePath != "" {
		store, err := history.Open(cfg.History.DatabasePath)
		if err != nil {
			return nil, err
		}
		s.store = store
	}

	s.client = api.NewClient(cfg.Provider)
	s.guard = cache.New(cache.WithCleanupInterval(cfg.Cache.CleanupInterval))

	gateway := forecast.NewGateway(s.client, s.guard, forecast.WithTTL(cfg.Cache.TTL))
	engine := window.NewEngine(gateway, cfg.Window)

	var facadeOpts []window.FacadeOption
	if s.store != nil {
		facadeOpts = append(facadeOpts, window.WithRecorder(s.store))
	}
	s.facade = window.NewFacade(engine, cfg.Window, facadeOpts...)
	s.threshold = threshold.New(s.client, cfg.Window, cfg.Emissions)

	return s, nil
}

// Close releases the cache guard, the client and the history store
func (s *stack) Close() {
	s.guard.Close()
	s.client.Close()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			klog.ErrorS(err, "Failed to close decision history")
		}
	}
}
