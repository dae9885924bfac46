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

// Package hub is the discovery-and-session-lifecycle coordinator. It consumes
// the BLE advertisement stream, maintains the address-keyed registry of
// device sessions and their poll coordinators, and fans registration events
// out to subscribers.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/richibrics/ha-magicstrip/pkg/ble"
	"github.com/richibrics/ha-magicstrip/pkg/logger"
	"github.com/richibrics/ha-magicstrip/pkg/magicstrip"
	"github.com/richibrics/ha-magicstrip/pkg/models"
	"github.com/richibrics/ha-magicstrip/pkg/poller"
)

// advBuffer sizes the advertisement queue. Advertisements repeat every few
// hundred milliseconds, so dropping under pressure is safe.
const advBuffer = 128

// Entry is one registered device: its session, its poll coordinator and the
// display metadata the presentation layer needs.
type Entry struct {
	Address     string
	Name        string
	Session     Session
	Coordinator *poller.Coordinator
}

// Config carries the hub's collaborators and knobs.
type Config struct {
	Filter       FilterFunc
	Factory      SessionFactory
	PollInterval time.Duration
	Clock        poller.Clock // nil selects the real clock
}

// Hub owns the registry. All registry mutation happens on a single worker
// goroutine fed by the advertisement queue, which removes the
// double-registration race by construction; the mutex only covers reader
// access and the subscribe/notify pairing.
type Hub struct {
	scanner ble.Scanner
	cfg     Config
	log     logger.Logger

	mu       sync.Mutex
	entries  map[string]*Entry
	subs     map[uuid.UUID]SubscriberFunc
	setupErr error
	running  bool

	advCh    chan models.Advertisement
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a hub. Filter and Factory are required.
func New(scanner ble.Scanner, cfg Config, log logger.Logger) *Hub {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = poller.DefaultInterval
	}

	return &Hub{
		scanner: scanner,
		cfg:     cfg,
		log:     log.WithComponent("hub"),
		entries: make(map[string]*Entry),
		subs:    make(map[uuid.UUID]SubscriberFunc),
		advCh:   make(chan models.Advertisement, advBuffer),
		stopCh:  make(chan struct{}),
	}
}

// Run scans for devices and processes advertisements until ctx is cancelled,
// Stop is called, or a setup-level failure occurs. On return the registry is
// torn down: poll timers stopped, sessions closed, entries discarded. It
// returns ErrSetupFailed when the first contact with a device hit an
// unrecoverable transport error; the caller may retry the whole setup later.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrAlreadyRunning
	}

	h.running = true
	h.setupErr = nil
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-h.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	h.wg.Add(1)

	go h.worker(ctx, cancel)

	scanErr := h.scanner.Scan(ctx, h.enqueue)

	cancel()
	h.wg.Wait()
	h.teardown()

	h.mu.Lock()
	setupErr := h.setupErr
	h.running = false
	h.mu.Unlock()

	if setupErr != nil {
		return setupErr
	}

	return scanErr
}

// Stop cancels the advertisement stream and makes Run return. Safe to call
// more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
}

// enqueue is the scanner callback. It must never block the radio stack, so
// the advertisement is dropped when the queue is full; it will repeat.
func (h *Hub) enqueue(adv models.Advertisement) {
	select {
	case h.advCh <- adv:
	default:
		h.log.Debug().Str("address", adv.Address).Msg("Advertisement queue full, dropping")
	}
}

// worker processes advertisements strictly sequentially.
func (h *Hub) worker(ctx context.Context, cancel context.CancelFunc) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case adv := <-h.advCh:
			if err := h.processAdvertisement(ctx, adv); err != nil {
				h.mu.Lock()
				h.setupErr = err
				h.mu.Unlock()

				cancel()

				return
			}
		}
	}
}

// processAdvertisement classifies one advertisement: update an existing
// entry, discard a foreign device, or register a new session. A returned
// error aborts the whole setup attempt.
func (h *Hub) processAdvertisement(ctx context.Context, adv models.Advertisement) error {
	h.mu.Lock()
	entry, known := h.entries[adv.Address]
	h.mu.Unlock()

	if known {
		h.updateExisting(ctx, entry, adv)
		return nil
	}

	if !h.cfg.Filter(adv) {
		return nil
	}

	return h.registerNew(ctx, adv)
}

// updateExisting forwards the advertisement and forces an immediate snapshot
// publish. Errors are logged only; a device transiently out of range must
// not be deregistered.
func (h *Hub) updateExisting(ctx context.Context, entry *Entry, adv models.Advertisement) {
	h.log.Debug().Str("address", adv.Address).Int16("rssi", adv.RSSI).Msg("Updating known device")

	if err := entry.Session.DetectionUpdate(ctx, adv); err != nil {
		h.log.Warn().Err(err).Str("address", adv.Address).Msg("Detection update failed")
		return
	}

	entry.Coordinator.PublishNow(entry.Session.Snapshot())
}

// registerNew attempts first contact with a candidate device. Timeout-class
// failures leave no entry behind and are retried on a future advertisement;
// unrecoverable transport errors abort the setup attempt.
func (h *Hub) registerNew(ctx context.Context, adv models.Advertisement) error {
	h.log.Info().Str("address", adv.Address).Str("name", adv.LocalName).Msg("Detected new device")

	session := h.cfg.Factory(adv)

	if err := session.DetectionUpdate(ctx, adv); err != nil {
		_ = session.Close()

		if errors.Is(err, magicstrip.ErrTimeout) {
			h.log.Warn().Err(err).Str("address", adv.Address).
				Msg("Timed out connecting to device, will try again on a later advertisement")

			return nil
		}

		h.log.Error().Err(err).Str("address", adv.Address).
			Msg("Error communicating with device. Is it too far from the Bluetooth controller?")

		return fmt.Errorf("%w: %s", ErrSetupFailed, err)
	}

	name := session.Name()
	if name == "" {
		name = fmt.Sprintf("MagicStrip LED (%s)", adv.Address)
	}

	coordinator := poller.New(adv.Address, session.Refresh, session.Snapshot(), h.cfg.PollInterval, h.cfg.Clock, h.log)
	session.SetPublishHook(coordinator.PublishNow)

	entry := &Entry{
		Address:     adv.Address,
		Name:        name,
		Session:     session,
		Coordinator: coordinator,
	}

	// Insert and notify under the same lock Subscribe holds, so a subscriber
	// sees every entry exactly once no matter when it attaches.
	h.mu.Lock()
	h.entries[adv.Address] = entry

	for _, sub := range h.subs {
		sub(entry)
	}
	h.mu.Unlock()

	coordinator.Start(ctx)

	h.log.Info().Str("address", adv.Address).Str("name", name).Msg("Registered device")

	return nil
}

// Subscribe delivers every existing entry to fn, then registers it for
// future registrations. The returned id unsubscribes.
func (h *Hub) Subscribe(fn SubscriberFunc) uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, entry := range h.entries {
		fn(entry)
	}

	id := uuid.New()
	h.subs[id] = fn

	return id
}

// Unsubscribe removes a subscriber.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs, id)
}

// Device returns the entry for an address.
func (h *Hub) Device(address string) (*Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.entries[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, address)
	}

	return entry, nil
}

// Devices returns all registered entries.
func (h *Hub) Devices() []*Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := make([]*Entry, 0, len(h.entries))
	for _, entry := range h.entries {
		entries = append(entries, entry)
	}

	return entries
}

// teardown stops every coordinator, closes every session and discards the
// registry. Coordinator.Stop deactivates publishing first, so in-flight
// refreshes and commands have no observable effect afterwards.
func (h *Hub) teardown() {
	h.mu.Lock()
	entries := h.entries
	h.entries = make(map[string]*Entry)
	h.mu.Unlock()

	for _, entry := range entries {
		entry.Coordinator.Stop()

		if err := entry.Session.Close(); err != nil {
			h.log.Warn().Err(err).Str("address", entry.Address).Msg("Error closing session")
		}
	}
}
