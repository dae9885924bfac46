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

// Package magicstrip implements the session with one MagicStrip LED
// controller: command encoding, state reads and the in-memory snapshot.
package magicstrip

import (
	"context"
	"fmt"
	"sync"

	"github.com/richibrics/ha-magicstrip/pkg/logger"
	"github.com/richibrics/ha-magicstrip/pkg/models"
)

// PublishFunc receives a fresh snapshot after every successful mutating call
// so consumers observe changes without waiting for the next poll tick.
type PublishFunc func(models.Snapshot)

// Device is the session with one physical controller. All operations on the
// same device are serialized by its mutex: discovery updates, poll refreshes
// and consumer commands all touch the transport and the snapshot.
type Device struct {
	mu        sync.Mutex
	transport Transport
	address   string
	name      string
	contacted bool
	state     models.Snapshot
	publish   PublishFunc
	log       logger.Logger
}

// NewDevice creates a session for the controller at address.
func NewDevice(address string, transport Transport, log logger.Logger) *Device {
	return &Device{
		transport: transport,
		address:   address,
		state:     models.Snapshot{Effects: EffectNames()},
		log:       log.WithComponent("device"),
	}
}

// Address returns the device's stable BLE address.
func (d *Device) Address() string {
	return d.address
}

// Name returns the last advertised local name, if any.
func (d *Device) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.name
}

// SetPublishHook attaches the owning coordinator's publish path. Must be set
// before consumers can issue commands.
func (d *Device) SetPublishHook(fn func(models.Snapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.publish = fn
}

// Snapshot returns a copy of the current state.
func (d *Device) Snapshot() models.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state.Clone()
}

// DetectionUpdate processes one advertisement for this device. Repeated
// identical advertisements only refresh signal strength; the first one also
// pulls the full device state, which can fail with ErrTimeout or
// ErrConnection and leaves the session untouched for a later retry.
func (d *Device) DetectionUpdate(ctx context.Context, adv models.Advertisement) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.ConnectionQuality = adv.RSSI

	if adv.LocalName != "" {
		d.name = adv.LocalName
	}

	if d.contacted {
		return nil
	}

	if err := d.refreshLocked(ctx); err != nil {
		return err
	}

	d.contacted = true

	return nil
}

// Refresh actively queries the device and replaces the snapshot.
func (d *Device) Refresh(ctx context.Context) (models.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.refreshLocked(ctx); err != nil {
		return models.Snapshot{}, err
	}

	return d.state.Clone(), nil
}

// refreshLocked reads and parses the state characteristic. The controller
// never reports brightness or color, so those fields keep whatever the last
// command recorded.
func (d *Device) refreshLocked(ctx context.Context) error {
	payload, err := d.transport.ReadState(ctx)
	if err != nil {
		return err
	}

	st, err := parseState(payload)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrConnection, err)
	}

	d.state.On = st.on
	d.state.EffectSpeed = st.speed

	if st.effect == effectNone {
		d.state.Effect = nil
	} else if name, ok := effectNames[st.effect]; ok {
		effect := name
		d.state.Effect = &effect
	} else {
		d.log.Warn().Uint8("effect_id", st.effect).Msg("Device reported unknown effect id")
		d.state.Effect = nil
	}

	return nil
}

// SetPower turns the strip on or off. The protocol only has a toggle opcode,
// so the command is issued only when the requested state differs from the
// snapshot.
func (d *Device) SetPower(ctx context.Context, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.On == on {
		return nil
	}

	if err := d.transport.WriteCommand(ctx, encodePowerToggle()); err != nil {
		return err
	}

	d.state.On = on
	d.publishLocked()

	return nil
}

// SetBrightness sets the strip brightness, 0..255.
func (d *Device) SetBrightness(ctx context.Context, value uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.transport.WriteCommand(ctx, encodeBrightness(value)); err != nil {
		return err
	}

	v := value
	d.state.Brightness = &v
	d.publishLocked()

	return nil
}

// SetColor sets a static color. Setting a color clears any active effect,
// which the controller does implicitly.
func (d *Device) SetColor(ctx context.Context, color models.RGB) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.transport.WriteCommand(ctx, encodeColor(color.R, color.G, color.B)); err != nil {
		return err
	}

	c := color
	d.state.Color = &c
	d.state.Effect = nil
	d.publishLocked()

	return nil
}

// SetEffect activates the named effect, or clears the active effect when
// name is empty.
func (d *Device) SetEffect(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := effectNone

	if name != "" {
		var ok bool

		id, ok = effectID(name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownEffect, name)
		}
	}

	if err := d.transport.WriteCommand(ctx, encodeEffect(id)); err != nil {
		return err
	}

	if id == effectNone {
		d.state.Effect = nil
	} else {
		n := name
		d.state.Effect = &n
	}

	d.publishLocked()

	return nil
}

// SetEffectSpeed sets the effect animation speed, 0..255.
func (d *Device) SetEffectSpeed(ctx context.Context, value uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.transport.WriteCommand(ctx, encodeSpeed(value)); err != nil {
		return err
	}

	v := value
	d.state.EffectSpeed = &v
	d.publishLocked()

	return nil
}

// Close releases the underlying transport.
func (d *Device) Close() error {
	return d.transport.Close()
}

// publishLocked pushes the current snapshot through the coordinator hook.
// Read-after-write consistency is not guaranteed by the hardware; the
// snapshot holds the requested values until the next refresh reconciles.
func (d *Device) publishLocked() {
	if d.publish != nil {
		d.publish(d.state.Clone())
	}
}
