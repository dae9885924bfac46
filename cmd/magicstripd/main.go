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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/richibrics/ha-magicstrip/pkg/ble"
	"github.com/richibrics/ha-magicstrip/pkg/config"
	"github.com/richibrics/ha-magicstrip/pkg/hub"
	"github.com/richibrics/ha-magicstrip/pkg/logger"
	"github.com/richibrics/ha-magicstrip/pkg/magicstrip"
	"github.com/richibrics/ha-magicstrip/pkg/models"
	"github.com/richibrics/ha-magicstrip/pkg/web"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to bridge config file")
	flag.Parse()

	cfg := config.Default()

	if *configPath != "" {
		var err error

		cfg, err = config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	logr, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter := bluetooth.DefaultAdapter

	scanner, err := ble.NewAdapterScanner(adapter, []bluetooth.UUID{magicstrip.ServiceUUID()}, logr)
	if err != nil {
		return err
	}

	factory := func(adv models.Advertisement) hub.Session {
		transport := magicstrip.NewBLETransport(adapter, scanner, adv.Address, logr)
		return magicstrip.NewDevice(adv.Address, transport, logr)
	}

	filter := func(adv models.Advertisement) bool {
		return adv.HasService(magicstrip.ServiceUUIDString)
	}

	h := hub.New(scanner, hub.Config{
		Filter:       filter,
		Factory:      factory,
		PollInterval: time.Duration(cfg.PollInterval),
	}, logr)

	server := web.NewServer(h, cfg.Defaults, logr)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info().Str("addr", cfg.ListenAddr).Msg("Starting API server")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error().Err(err).Msg("API server failed")
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = httpServer.Shutdown(shutdownCtx)
	}()

	// A setup-level failure aborts the current attempt only; the bridge
	// retries after a delay, like a config entry marked "not ready".
	for {
		err := h.Run(ctx)

		if ctx.Err() != nil {
			logr.Info().Msg("Shutting down")
			return nil
		}

		if errors.Is(err, hub.ErrSetupFailed) {
			logr.Warn().Err(err).Dur("retry_in", time.Duration(cfg.RetryDelay)).Msg("Setup failed, retrying")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Duration(cfg.RetryDelay)):
				continue
			}
		}

		return err
	}
}
