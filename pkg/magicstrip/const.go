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
	"sort"

	"tinygo.org/x/bluetooth"
)

// ServiceUUIDString is the advertised GATT service that identifies a
// MagicStrip controller. Advertisements without it are not our devices.
const ServiceUUIDString = "0000ffb0-0000-1000-8000-00805f9b34fb"

var (
	serviceUUID     = bluetooth.New16BitUUID(0xFFB0)
	commandCharUUID = bluetooth.New16BitUUID(0xFFB1)
	stateCharUUID   = bluetooth.New16BitUUID(0xFFB2)
)

// ServiceUUID returns the MagicStrip GATT service UUID for scanner probes.
func ServiceUUID() bluetooth.UUID {
	return serviceUUID
}

// effectNone is the wire value for "no effect active".
const effectNone uint8 = 0x00

// effectNames maps the controller's effect identifiers to display names.
var effectNames = map[uint8]string{
	0x01: "Crossfade",
	0x02: "Jump",
	0x03: "Strobe",
	0x04: "Breathe",
	0x05: "Rainbow",
	0x06: "Twinkle",
}

// EffectNames returns the supported effect names in a stable order.
func EffectNames() []string {
	names := make([]string, 0, len(effectNames))
	for _, name := range effectNames {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func effectID(name string) (uint8, bool) {
	for id, n := range effectNames {
		if n == name {
			return id, true
		}
	}

	return 0, false
}
