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

package web

import (
	"github.com/richibrics/ha-magicstrip/pkg/config"
	"github.com/richibrics/ha-magicstrip/pkg/models"
)

// DeviceView is the presentation form of a device: unknown snapshot fields
// are replaced with the configured defaults so the UI always has a
// displayable value, and effect speed is rebased to the 0..100 slider range.
type DeviceView struct {
	Address           string     `json:"address"`
	Name              string     `json:"name"`
	On                bool       `json:"on"`
	Brightness        uint8      `json:"brightness"`
	Color             models.RGB `json:"color"`
	Effect            string     `json:"effect"`
	EffectSpeed       int        `json:"effect_speed"`
	Effects           []string   `json:"effects"`
	ConnectionQuality int16      `json:"connection_quality"`
	Stale             bool       `json:"stale"`
}

// viewOf applies default substitution. Stale marks data retained from before
// a failed poll.
func viewOf(address, name string, snapshot models.Snapshot, stale bool, defaults config.Defaults) DeviceView {
	view := DeviceView{
		Address:           address,
		Name:              name,
		On:                snapshot.On,
		Brightness:        defaults.Brightness,
		Color:             defaults.Color,
		Effect:            defaults.Effect,
		EffectSpeed:       rebaseSpeedOut(defaults.Speed),
		Effects:           append(snapshot.Effects, defaults.Effect),
		ConnectionQuality: snapshot.ConnectionQuality,
		Stale:             stale,
	}

	if snapshot.Brightness != nil {
		view.Brightness = *snapshot.Brightness
	}

	if snapshot.Color != nil {
		view.Color = *snapshot.Color
	}

	if snapshot.Effect != nil {
		view.Effect = *snapshot.Effect
	}

	if snapshot.EffectSpeed != nil {
		view.EffectSpeed = rebaseSpeedOut(*snapshot.EffectSpeed)
	}

	return view
}

// rebaseSpeedOut converts a device speed (0..255) to the slider range 0..100.
func rebaseSpeedOut(speed uint8) int {
	return int(100 * int(speed) / 255)
}

// rebaseSpeedIn converts a slider value (0..100) to a device speed (0..255).
func rebaseSpeedIn(value int) uint8 {
	return uint8(255 * value / 100)
}
