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

// Package models defines the value types shared across the bridge.
package models

// RGB is a color triple, each channel 0..255.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Snapshot is an immutable point-in-time copy of a device's known state.
//
// Brightness, Color, Effect and EffectSpeed are pointers because the strip
// omits these fields until they have been set at least once; nil means
// "unknown", which is distinct from a known zero value. Defaults for display
// are substituted at the presentation boundary, never here.
type Snapshot struct {
	On                bool     `json:"on"`
	Brightness        *uint8   `json:"brightness,omitempty"`
	Color             *RGB     `json:"color,omitempty"`
	Effect            *string  `json:"effect,omitempty"`
	EffectSpeed       *uint8   `json:"effect_speed,omitempty"`
	ConnectionQuality int16    `json:"connection_quality"`
	Effects           []string `json:"effects,omitempty"`
}

// Clone returns a deep copy so publishers and consumers never alias state.
func (s Snapshot) Clone() Snapshot {
	out := s

	if s.Brightness != nil {
		v := *s.Brightness
		out.Brightness = &v
	}

	if s.Color != nil {
		c := *s.Color
		out.Color = &c
	}

	if s.Effect != nil {
		e := *s.Effect
		out.Effect = &e
	}

	if s.EffectSpeed != nil {
		v := *s.EffectSpeed
		out.EffectSpeed = &v
	}

	if s.Effects != nil {
		out.Effects = make([]string, len(s.Effects))
		copy(out.Effects, s.Effects)
	}

	return out
}
