package auth

import (
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"tve-auth/internal/bus"
)

var (
	shared      atomic.Pointer[Orchestrator]
	sharedGroup singleflight.Group
)

// Shared returns the process-wide Orchestrator, creating it on first use.
// Concurrent first calls share one creation and one engine. If creation
// fails nothing is stored and a later call tries again.
func Shared(cfg Config, b bus.Bus, factory EngineFactory, opts ...Option) (*Orchestrator, error) {
	if o := shared.Load(); o != nil {
		return o, nil
	}
	v, err, _ := sharedGroup.Do("orchestrator", func() (any, error) {
		if o := shared.Load(); o != nil {
			return o, nil
		}
		o, err := New(cfg, b, factory, opts...)
		if err != nil {
			return nil, err
		}
		shared.Store(o)
		return o, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Orchestrator), nil
}

// Instance returns the shared Orchestrator, or nil before Shared succeeded.
func Instance() *Orchestrator {
	return shared.Load()
}
