// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

package services

import (
	"context"
	"time"
)

// GCStore interface matches the credential store's GC loop.
//
// Satisfied by *store.Store from internal/store/store.go. RunGCLoop
// sweeps expired keys and triggers BadgerDB value-log GC on the given
// interval until the context is canceled.
type GCStore interface {
	RunGCLoop(ctx context.Context, interval time.Duration) error
}

// StoreGCService wraps the credential store's garbage collection loop as a
// supervised service.
//
// Dedup markers and expired OAuth state accumulate in BadgerDB's value log
// until GC runs; without this loop the store grows without bound.
//
// Example usage:
//
//	svc := services.NewStoreGCService(kv, time.Hour)
//	tree.AddDataService(svc)
type StoreGCService struct {
	store    GCStore
	interval time.Duration
	name     string
}

// NewStoreGCService creates a new store GC service wrapper.
// Intervals of zero or less fall back to one hour.
func NewStoreGCService(store GCStore, interval time.Duration) *StoreGCService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &StoreGCService{
		store:    store,
		interval: interval,
		name:     "store-gc",
	}
}

// Serve implements suture.Service.
func (s *StoreGCService) Serve(ctx context.Context) error {
	return s.store.RunGCLoop(ctx, s.interval)
}

// String implements fmt.Stringer for logging.
func (s *StoreGCService) String() string {
	return s.name
}
