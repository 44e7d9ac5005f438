// Package liveness tracks which processors are currently alive. Every
// accepted sync beat refreshes a lease; a sweeper expires leases that miss
// their deadline and notifies the presence feed.
package liveness

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/gidence/scm/internal/metrics"
)

const (
	// LeaseTTL is three missed beats.
	LeaseTTL = 30 * time.Second
	// SweepInterval bounds how stale the presence map can get.
	SweepInterval = 30 * time.Second
)

// Notifier receives departures found by the sweeper.
type Notifier interface {
	ProcessorLeft(id string)
}

// Tracker is the lease map. Safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	leases map[string]int64 // id -> expiry, unix ms
	ttl    time.Duration
	logger *log.Logger
}

// NewTracker builds an empty tracker with the default lease.
func NewTracker() *Tracker {
	return &Tracker{
		leases: make(map[string]int64),
		ttl:    LeaseTTL,
		logger: log.New(log.Writer(), "[LIVENESS] ", log.LstdFlags),
	}
}

// Refresh renews the processor's lease from now.
func (t *Tracker) Refresh(id string, now time.Time) {
	t.mu.Lock()
	t.leases[id] = now.Add(t.ttl).UnixMilli()
	metrics.ProcessorsLive.Set(float64(len(t.leases)))
	t.mu.Unlock()
}

// Contains reports whether the processor currently holds a lease.
func (t *Tracker) Contains(id string) bool {
	t.mu.RLock()
	_, ok := t.leases[id]
	t.mu.RUnlock()
	return ok
}

// Snapshot returns the live map as id -> expiry in unix ms.
func (t *Tracker) Snapshot() map[string]int64 {
	t.mu.RLock()
	out := make(map[string]int64, len(t.leases))
	for id, exp := range t.leases {
		out[id] = exp
	}
	t.mu.RUnlock()
	return out
}

// Sweep drops every lease expired at nowMS and returns the departed ids,
// sorted for stable reporting.
func (t *Tracker) Sweep(nowMS int64) []string {
	t.mu.Lock()
	var gone []string
	for id, exp := range t.leases {
		if exp <= nowMS {
			delete(t.leases, id)
			gone = append(gone, id)
		}
	}
	metrics.ProcessorsLive.Set(float64(len(t.leases)))
	t.mu.Unlock()
	sort.Strings(gone)
	return gone
}

// Run sweeps on a fixed cadence until the context ends, pushing departures
// to the notifier.
func (t *Tracker) Run(ctx context.Context, n Notifier) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, id := range t.Sweep(now.UnixMilli()) {
				t.logger.Printf("processor %s lease expired", id)
				n.ProcessorLeft(id)
			}
		}
	}
}
