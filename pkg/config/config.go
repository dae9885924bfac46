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

// Package config loads and validates the bridge configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/richibrics/ha-magicstrip/pkg/logger"
	"github.com/richibrics/ha-magicstrip/pkg/models"
)

// Defaults are the values substituted at the presentation boundary when the
// strip has not reported a field yet. The hardware omits brightness, color,
// effect and speed until they are first set, and the UI layer always needs a
// displayable value.
type Defaults struct {
	Effect     string     `json:"effect"`
	Color      models.RGB `json:"color"`
	Brightness uint8      `json:"brightness"`
	Speed      uint8      `json:"speed"`
}

// Config is the bridge configuration file.
type Config struct {
	ListenAddr   string          `json:"listen_addr"`
	PollInterval models.Duration `json:"poll_interval"`
	RetryDelay   models.Duration `json:"retry_delay"`
	Defaults     Defaults        `json:"defaults"`
	Logging      *logger.Config  `json:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()

	return cfg
}

// Load reads and validates a JSON configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config from '%s': %w", path, err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8099"
	}

	if c.PollInterval <= 0 {
		c.PollInterval = models.Duration(120 * time.Second)
	}

	if c.RetryDelay <= 0 {
		c.RetryDelay = models.Duration(30 * time.Second)
	}

	if c.Defaults.Effect == "" {
		c.Defaults.Effect = "Off"
	}

	if c.Defaults.Color == (models.RGB{}) {
		c.Defaults.Color = models.RGB{R: 255, G: 255, B: 255}
	}

	if c.Defaults.Brightness == 0 {
		c.Defaults.Brightness = 255
	}

	if c.Defaults.Speed == 0 {
		c.Defaults.Speed = 128
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}
}
