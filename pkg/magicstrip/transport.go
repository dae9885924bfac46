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

package magicstrip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/richibrics/ha-magicstrip/pkg/logger"
)

const defaultCallTimeout = 10 * time.Second

// Transport abstracts the GATT link to one controller. Implementations must
// bound every call; an unresponsive device must never hang its caller.
type Transport interface {
	ReadState(ctx context.Context) ([]byte, error)
	WriteCommand(ctx context.Context, frame []byte) error
	Close() error
}

// AddressResolver turns a textual device address back into the radio-level
// address captured during scanning. The BLE scanner implements this.
type AddressResolver interface {
	ResolveAddress(addr string) (bluetooth.Address, bool)
}

// BLETransport is the real Transport over tinygo.org/x/bluetooth. It connects
// lazily on first use and drops the connection on any transport error so the
// next call starts clean.
type BLETransport struct {
	adapter  *bluetooth.Adapter
	resolver AddressResolver
	addr     string
	timeout  time.Duration
	log      logger.Logger

	mu        sync.Mutex
	dev       bluetooth.Device
	connected bool
	cmdChar   bluetooth.DeviceCharacteristic
	stateChar bluetooth.DeviceCharacteristic
}

// NewBLETransport creates a transport for the device at addr.
func NewBLETransport(adapter *bluetooth.Adapter, resolver AddressResolver, addr string, log logger.Logger) *BLETransport {
	return &BLETransport{
		adapter:  adapter,
		resolver: resolver,
		addr:     addr,
		timeout:  defaultCallTimeout,
		log:      log.WithComponent("ble-transport"),
	}
}

func (t *BLETransport) ReadState(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureConnectedLocked(ctx); err != nil {
		return nil, err
	}

	var payload []byte

	err := t.call(ctx, func() error {
		buf := make([]byte, 32)

		n, err := t.stateChar.Read(buf)
		if err != nil {
			return err
		}

		payload = buf[:n]

		return nil
	})
	if err != nil {
		t.dropLocked()
		return nil, err
	}

	return payload, nil
}

func (t *BLETransport) WriteCommand(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureConnectedLocked(ctx); err != nil {
		return err
	}

	err := t.call(ctx, func() error {
		_, err := t.cmdChar.WriteWithoutResponse(frame)
		return err
	})
	if err != nil {
		t.dropLocked()
		return err
	}

	return nil
}

func (t *BLETransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil
	}

	err := t.dev.Disconnect()
	t.connected = false

	return err
}

func (t *BLETransport) ensureConnectedLocked(ctx context.Context) error {
	if t.connected {
		return nil
	}

	address, ok := t.resolver.ResolveAddress(t.addr)
	if !ok {
		return fmt.Errorf("%w: address %s not seen by scanner", ErrConnection, t.addr)
	}

	err := t.call(ctx, func() error {
		dev, err := t.adapter.Connect(address, bluetooth.ConnectionParams{})
		if err != nil {
			return err
		}

		services, err := dev.DiscoverServices([]bluetooth.UUID{serviceUUID})
		if err != nil || len(services) == 0 {
			_ = dev.Disconnect()

			if err == nil {
				err = errServiceNotFound
			}

			return err
		}

		chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{commandCharUUID, stateCharUUID})
		if err != nil {
			_ = dev.Disconnect()
			return err
		}

		var haveCmd, haveState bool

		for _, char := range chars {
			switch char.UUID() {
			case commandCharUUID:
				t.cmdChar = char
				haveCmd = true
			case stateCharUUID:
				t.stateChar = char
				haveState = true
			}
		}

		if !haveCmd || !haveState {
			_ = dev.Disconnect()
			return errCharsNotFound
		}

		t.dev = dev

		return nil
	})
	if err != nil {
		return err
	}

	t.connected = true
	t.log.Debug().Str("address", t.addr).Msg("Connected to device")

	return nil
}

func (t *BLETransport) dropLocked() {
	if t.connected {
		_ = t.dev.Disconnect()
		t.connected = false
	}
}

// call runs fn with a bounded wait and normalizes the failure taxonomy:
// deadline overruns become ErrTimeout, everything else ErrConnection.
// The tinygo bluetooth API has no context support, so an overrun leaves fn
// running until the stack gives up; the connection is dropped regardless.
func (t *BLETransport) call(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %s", ErrConnection, err)
		}

		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrTimeout, ctx.Err())
		}

		return fmt.Errorf("%w: %s", ErrConnection, ctx.Err())
	}
}
