/*
 * Copyright 2026 the ha-magicstrip authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package poller keeps per-device state snapshots fresh so consumers never
// manage timers themselves.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/richibrics/ha-magicstrip/pkg/logger"
	"github.com/richibrics/ha-magicstrip/pkg/models"
)

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = 120 * time.Second

// RefreshFunc queries the device and returns a fresh snapshot.
type RefreshFunc func(ctx context.Context) (models.Snapshot, error)

// Update is what listeners receive on every publish. Failed distinguishes
// "stale-but-known-good data" from fresh data: when true, Snapshot is the
// last good snapshot and Err holds the refresh failure.
type Update struct {
	Address  string
	Snapshot models.Snapshot
	Failed   bool
	Err      error
}

// Listener receives updates. Listeners are invoked synchronously on the
// publish path and must not call back into the Coordinator.
type Listener func(Update)

// Coordinator refreshes one device session on a fixed interval and fans the
// latest snapshot out to listeners. A failed poll never overwrites the last
// good snapshot and is never retried faster than the interval; backoff, if
// any, belongs to the transport.
type Coordinator struct {
	address  string
	refresh  RefreshFunc
	interval time.Duration
	clock    Clock
	log      logger.Logger

	mu        sync.Mutex
	snapshot  models.Snapshot
	failed    bool
	listeners []Listener
	active    bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a coordinator seeded with the session's initial snapshot.
// A nil clock selects the real clock.
func New(address string, refresh RefreshFunc, initial models.Snapshot, interval time.Duration, clock Clock, log logger.Logger) *Coordinator {
	if interval <= 0 {
		interval = DefaultInterval
	}

	if clock == nil {
		clock = realClock{}
	}

	return &Coordinator{
		address:  address,
		refresh:  refresh,
		interval: interval,
		clock:    clock,
		log:      log.WithComponent("coordinator"),
		snapshot: initial,
		active:   true,
		done:     make(chan struct{}),
	}
}

// Start launches the poll loop. The first refresh happens one interval after
// Start; the initial snapshot was just read during registration.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)

	go c.run(ctx)
}

// Stop halts the poll loop and deactivates publishing. Publishing is
// deactivated first, so an in-flight refresh or command completes but its
// result is discarded. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.done)
	})

	c.wg.Wait()
}

// Snapshot returns the last published snapshot and whether the most recent
// refresh failed.
func (c *Coordinator) Snapshot() (models.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshot.Clone(), c.failed
}

// AddListener registers a listener for future updates.
func (c *Coordinator) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listeners = append(c.listeners, l)
}

// PublishNow pushes a snapshot out of band, bypassing the timer but following
// the same publish path. Used by the session after a successful command and
// by the hub after a detection update.
func (c *Coordinator) PublishNow(snapshot models.Snapshot) {
	c.publish(snapshot, nil)
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	ticker := c.clock.Ticker(c.interval)
	defer ticker.Stop()

	c.log.Debug().Str("address", c.address).Dur("interval", c.interval).Msg("Starting poll loop")

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.Chan():
			c.poll(ctx)
		}
	}
}

// poll runs a single refresh. The loop is the only caller, so a coordinator
// never runs two refreshes concurrently.
func (c *Coordinator) poll(ctx context.Context) {
	snapshot, err := c.refresh(ctx)
	if err != nil {
		c.log.Warn().Err(err).Str("address", c.address).Msg("Poll failed, keeping last good snapshot")
		c.fail(err)

		return
	}

	c.publish(snapshot, nil)
}

// publish stores the snapshot, clears the failure flag and notifies
// listeners. Publishing after Stop is a no-op, so a refresh or command that
// was in flight at teardown has no observable effect.
func (c *Coordinator) publish(snapshot models.Snapshot, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}

	c.snapshot = snapshot
	c.failed = false

	for _, l := range c.listeners {
		l(Update{Address: c.address, Snapshot: snapshot.Clone(), Err: err})
	}
}

// fail marks the coordinator failed, retaining the last good snapshot, and
// surfaces the failure to listeners as a distinct signal.
func (c *Coordinator) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}

	c.failed = true

	for _, l := range c.listeners {
		l(Update{Address: c.address, Snapshot: c.snapshot.Clone(), Failed: true, Err: err})
	}
}
