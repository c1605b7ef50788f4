// Package cache owns the single aggregate snapshot and its refresh
// lifecycle. Readers always get the last settled state without blocking;
// refreshes are single-flight.
package cache

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bleedingdev/usagedeck/internal/usage"
)

// State enumerates the cache lifecycle.
type State int

const (
	// StateEmpty means no refresh has completed yet.
	StateEmpty State = iota
	// StateUpdating means a refresh is in flight.
	StateUpdating
	// StateReady means a snapshot is available.
	StateReady
	// StateFailed means the last refresh failed.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateUpdating:
		return "updating"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// RefreshFunc produces a fresh snapshot. It runs outside the controller's
// lock; any error moves the cache to StateFailed.
type RefreshFunc func(ctx context.Context) (*usage.Snapshot, error)

// View is a consistent read of the cache. Snapshot is the last Ready
// snapshot, carried through an in-flight refresh so readers never have to
// wait for one.
type View struct {
	State    State
	Snapshot *usage.Snapshot
	Err      string
}

// Controller coordinates refresh triggering and snapshot replacement.
// The state transition into Updating happens as one check-and-set under the
// mutex before any suspension point, which is what makes concurrent triggers
// collapse into a single refresh.
type Controller struct {
	refresh   RefreshFunc
	onRefresh func(*usage.Snapshot)

	mu     sync.Mutex
	state  State
	snap   *usage.Snapshot
	errMsg string

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewController creates a controller in StateEmpty. onRefresh, when non-nil,
// runs after every successful refresh (outside the lock).
func NewController(refresh RefreshFunc, onRefresh func(*usage.Snapshot)) *Controller {
	return &Controller{
		refresh:   refresh,
		onRefresh: onRefresh,
		state:     StateEmpty,
		stopCh:    make(chan struct{}),
	}
}

// Read returns the current cache view. It never blocks on a refresh and
// never triggers one; staleness is acceptable by design.
func (c *Controller) Read() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{State: c.state, Snapshot: c.snap, Err: c.errMsg}
}

// TryRefresh runs one refresh cycle synchronously. If a refresh is already
// in flight the call is a no-op and returns false immediately: the in-flight
// refresh is neither duplicated, queued nor cancelled.
func (c *Controller) TryRefresh(ctx context.Context) bool {
	c.mu.Lock()
	if c.state == StateUpdating {
		c.mu.Unlock()
		log.Debug("Refresh already in flight, skipping trigger")
		return false
	}
	c.state = StateUpdating
	c.mu.Unlock()

	snap, err := c.refresh(ctx)

	c.mu.Lock()
	if err != nil {
		c.state = StateFailed
		c.errMsg = err.Error()
		c.mu.Unlock()
		log.WithError(err).Error("Snapshot refresh failed")
		return true
	}
	c.state = StateReady
	c.snap = snap
	c.errMsg = ""
	c.mu.Unlock()

	log.WithFields(log.Fields{
		"credentials": snap.TotalCredentials,
		"remaining":   snap.Totals.TotalRemaining,
	}).Info("Snapshot refreshed")

	if c.onRefresh != nil {
		c.onRefresh(snap)
	}
	return true
}

// TriggerAsync starts a refresh in the background and returns immediately.
// Used after credential mutations so the triggering request never waits on
// the fetch pass.
func (c *Controller) TriggerAsync() {
	go c.TryRefresh(context.Background())
}

// Run triggers a refresh on a fixed interval until Stop is called or the
// context is cancelled. Intended to be started as a goroutine after the
// initial synchronous refresh.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.TryRefresh(ctx)
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop terminates the interval loop. Safe to call more than once.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
