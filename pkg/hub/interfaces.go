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

package hub

import (
	"context"

	"github.com/richibrics/ha-magicstrip/pkg/models"
)

// Session is the device session the hub manages, one per address.
// *magicstrip.Device is the production implementation.
type Session interface {
	Address() string
	Name() string
	DetectionUpdate(ctx context.Context, adv models.Advertisement) error
	Refresh(ctx context.Context) (models.Snapshot, error)
	Snapshot() models.Snapshot
	SetPublishHook(fn func(models.Snapshot))
	SetPower(ctx context.Context, on bool) error
	SetBrightness(ctx context.Context, value uint8) error
	SetColor(ctx context.Context, color models.RGB) error
	SetEffect(ctx context.Context, name string) error
	SetEffectSpeed(ctx context.Context, value uint8) error
	Close() error
}

// SessionFactory constructs a session for a newly discovered device.
type SessionFactory func(adv models.Advertisement) Session

// FilterFunc reports whether an advertisement belongs to a device family
// this bridge manages.
type FilterFunc func(adv models.Advertisement) bool

// SubscriberFunc receives each registry entry exactly once: the existing
// entries at subscription time, then every future registration. Invoked
// synchronously on the registration path; it must not call back into the Hub.
type SubscriberFunc func(entry *Entry)
