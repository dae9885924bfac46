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

package models

// Advertisement is a transient record of a single BLE advertisement.
// It is processed once and discarded, never persisted.
type Advertisement struct {
	Address   string
	LocalName string
	RSSI      int16
	Services  []string
}

// HasService reports whether the advertisement announced the given
// service UUID.
func (a Advertisement) HasService(uuid string) bool {
	for _, s := range a.Services {
		if s == uuid {
			return true
		}
	}

	return false
}
