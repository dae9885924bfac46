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

// Package ble adapts the system Bluetooth radio to the advertisement stream
// the hub consumes.
package ble

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/richibrics/ha-magicstrip/pkg/logger"
	"github.com/richibrics/ha-magicstrip/pkg/models"
)

// Scanner is a continuous, cancellable stream of BLE advertisements.
type Scanner interface {
	// Scan blocks, invoking handler for every advertisement until ctx is
	// cancelled or the radio fails.
	Scan(ctx context.Context, handler func(models.Advertisement)) error
}

// AdapterScanner implements Scanner over tinygo.org/x/bluetooth. It also
// remembers the radio-level address of every device it has seen, so
// transports can connect later (magicstrip.AddressResolver).
type AdapterScanner struct {
	adapter *bluetooth.Adapter
	probes  []bluetooth.UUID
	log     logger.Logger

	mu        sync.RWMutex
	addresses map[string]bluetooth.Address
}

// NewAdapterScanner creates a scanner on the given adapter. probeUUIDs lists
// the service UUIDs to look for in advertisement payloads; matches are
// reported in Advertisement.Services.
func NewAdapterScanner(adapter *bluetooth.Adapter, probeUUIDs []bluetooth.UUID, log logger.Logger) (*AdapterScanner, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAdapterUnavailable, err)
	}

	return &AdapterScanner{
		adapter:   adapter,
		probes:    probeUUIDs,
		log:       log.WithComponent("ble-scanner"),
		addresses: make(map[string]bluetooth.Address),
	}, nil
}

// Scan implements Scanner. It returns nil when ctx is cancelled.
func (s *AdapterScanner) Scan(ctx context.Context, handler func(models.Advertisement)) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			if err := s.adapter.StopScan(); err != nil {
				s.log.Warn().Err(err).Msg("Failed to stop scan")
			}
		case <-stop:
		}
	}()

	s.log.Info().Msg("Starting BLE scan")

	err := s.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		handler(s.convert(result))
	})

	if ctx.Err() != nil {
		return nil
	}

	if err != nil {
		return fmt.Errorf("%w: %s", ErrScanFailed, err)
	}

	return nil
}

// ResolveAddress implements magicstrip.AddressResolver.
func (s *AdapterScanner) ResolveAddress(addr string) (bluetooth.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	address, ok := s.addresses[addr]

	return address, ok
}

func (s *AdapterScanner) convert(result bluetooth.ScanResult) models.Advertisement {
	addr := result.Address.String()

	s.mu.Lock()
	s.addresses[addr] = result.Address
	s.mu.Unlock()

	adv := models.Advertisement{
		Address:   addr,
		LocalName: result.LocalName(),
		RSSI:      result.RSSI,
	}

	for _, uuid := range s.probes {
		if result.HasServiceUUID(uuid) {
			adv.Services = append(adv.Services, uuid.String())
		}
	}

	return adv
}
