// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package workers

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/fieldward/fieldward/geocode"
	"github.com/fieldward/fieldward/structs"
)

const (
	// GeocodeBatchSize caps how many rows one tick claims.
	GeocodeBatchSize = 10

	// geocodePause spaces provider calls inside a tick.
	geocodePause = 100 * time.Millisecond

	defaultGeocodeInterval = 30 * time.Second
)

// GeocodeStore is the queue surface the geocoding worker polls.
type GeocodeStore interface {
	ClaimGeocodeTasks(ctx context.Context, limit int) ([]*structs.GeocodeTask, error)
	ResolveGeocodeTask(ctx context.Context, task *structs.GeocodeTask, coords *structs.Coordinates, now time.Time) error
}

// GeocodeWorker resolves pending addresses through the provider. Provider
// failures mark the row failed and bump its retry counter; the claim query
// stops returning rows once retries hit the cap.
type GeocodeWorker struct {
	store    GeocodeStore
	resolver geocode.Resolver
	logger   hclog.Logger
	interval time.Duration
	pause    time.Duration
	now      func() time.Time
}

func NewGeocodeWorker(store GeocodeStore, resolver geocode.Resolver, logger hclog.Logger, interval time.Duration) *GeocodeWorker {
	if interval <= 0 {
		interval = defaultGeocodeInterval
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &GeocodeWorker{
		store:    store,
		resolver: resolver,
		logger:   logger.Named("geocode"),
		interval: interval,
		pause:    geocodePause,
		now:      time.Now,
	}
}

func (w *GeocodeWorker) Name() string            { return "geocode" }
func (w *GeocodeWorker) Interval() time.Duration { return w.interval }

func (w *GeocodeWorker) Tick(ctx context.Context) error {
	tasks, err := w.store.ClaimGeocodeTasks(ctx, GeocodeBatchSize)
	if err != nil {
		return err
	}

	for i, task := range tasks {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.pause):
			}
		}

		coords, err := w.resolver.Geocode(ctx, task.Address)
		if err != nil {
			w.logger.Warn("geocode lookup failed", "kind", task.Kind, "id", task.ID,
				"retries", task.Retries, "error", err)
			coords = nil
		}
		if err := w.store.ResolveGeocodeTask(ctx, task, coords, w.now()); err != nil {
			return err
		}
	}
	return nil
}
