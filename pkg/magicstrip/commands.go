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

import "fmt"

// Command frames are {frameHeader, opcode, args...}. The controller applies
// them without acknowledgement, so every write is fire-and-forget and the
// session records the requested value optimistically.
const (
	frameHeader byte = 0x04

	opPowerToggle byte = 0x01
	opSetColor    byte = 0x02
	opSetBright   byte = 0x03
	opSetEffect   byte = 0x04
	opSetSpeed    byte = 0x05
)

func encodePowerToggle() []byte {
	return []byte{frameHeader, opPowerToggle}
}

func encodeColor(r, g, b uint8) []byte {
	return []byte{frameHeader, opSetColor, r, g, b}
}

func encodeBrightness(v uint8) []byte {
	return []byte{frameHeader, opSetBright, v}
}

func encodeEffect(id uint8) []byte {
	return []byte{frameHeader, opSetEffect, id}
}

func encodeSpeed(v uint8) []byte {
	return []byte{frameHeader, opSetSpeed, v}
}

// deviceState holds the fields the controller actually reports. Brightness
// and color are write-only on this hardware and never appear in state reads.
type deviceState struct {
	on     bool
	effect uint8 // effectNone when no effect is active
	speed  *uint8
}

// parseState decodes a state characteristic read:
// {frameHeader, power, effectID, speed}. Speed 0xFF means "not set yet".
func parseState(data []byte) (deviceState, error) {
	if len(data) < 4 || data[0] != frameHeader {
		return deviceState{}, fmt.Errorf("%w: % x", ErrBadStateFrame, data)
	}

	st := deviceState{
		on:     data[1] == 0x01,
		effect: data[2],
	}

	if data[3] != 0xFF {
		speed := data[3]
		st.speed = &speed
	}

	return st, nil
}
