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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richibrics/ha-magicstrip/pkg/models"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8099", cfg.ListenAddr)
	assert.Equal(t, models.Duration(120*time.Second), cfg.PollInterval)
	assert.Equal(t, models.Duration(30*time.Second), cfg.RetryDelay)
	assert.Equal(t, "Off", cfg.Defaults.Effect)
	assert.Equal(t, models.RGB{R: 255, G: 255, B: 255}, cfg.Defaults.Color)
	assert.Equal(t, uint8(255), cfg.Defaults.Brightness)
	assert.Equal(t, uint8(128), cfg.Defaults.Speed)
	require.NotNil(t, cfg.Logging)
}

func TestLoad(t *testing.T) {
	path := writeConfigFile(t, `{
		"listen_addr": ":9000",
		"poll_interval": "60s",
		"retry_delay": "5s",
		"defaults": {
			"effect": "Solid",
			"color": {"r": 10, "g": 20, "b": 30},
			"brightness": 100,
			"speed": 64
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, models.Duration(time.Minute), cfg.PollInterval)
	assert.Equal(t, models.Duration(5*time.Second), cfg.RetryDelay)
	assert.Equal(t, "Solid", cfg.Defaults.Effect)
	assert.Equal(t, models.RGB{R: 10, G: 20, B: 30}, cfg.Defaults.Color)
	assert.Equal(t, uint8(100), cfg.Defaults.Brightness)
	assert.Equal(t, uint8(64), cfg.Defaults.Speed)
	require.NotNil(t, cfg.Logging)
}

func TestLoad_PartialFileFillsDefaults(t *testing.T) {
	path := writeConfigFile(t, `{"listen_addr": ":7070"}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, models.Duration(120*time.Second), cfg.PollInterval)
	assert.Equal(t, "Off", cfg.Defaults.Effect)
	assert.Equal(t, uint8(255), cfg.Defaults.Brightness)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := writeConfigFile(t, `{"listen_addr": }`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal config")
}

func TestLoad_NumericDuration(t *testing.T) {
	// Durations also accept raw nanoseconds.
	path := writeConfigFile(t, `{"poll_interval": 60000000000}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, models.Duration(time.Minute), cfg.PollInterval)
}
