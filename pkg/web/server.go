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

// Package web exposes the registered devices over a small HTTP API: the
// light and effect-speed controls, plus a websocket event stream.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/richibrics/ha-magicstrip/pkg/config"
	"github.com/richibrics/ha-magicstrip/pkg/hub"
	"github.com/richibrics/ha-magicstrip/pkg/logger"
	"github.com/richibrics/ha-magicstrip/pkg/magicstrip"
	"github.com/richibrics/ha-magicstrip/pkg/models"
	"github.com/richibrics/ha-magicstrip/pkg/poller"
)

// Server serves the device API backed by the hub's registry.
type Server struct {
	hub      *hub.Hub
	defaults config.Defaults
	log      logger.Logger

	clientsMu sync.Mutex
	clients   map[*wsClient]struct{}
}

// NewServer creates the API server and attaches it to the hub's fan-out so
// every registration and snapshot update reaches connected event streams.
func NewServer(h *hub.Hub, defaults config.Defaults, log logger.Logger) *Server {
	s := &Server{
		hub:      h,
		defaults: defaults,
		log:      log.WithComponent("web"),
		clients:  make(map[*wsClient]struct{}),
	}

	h.Subscribe(func(entry *hub.Entry) {
		snapshot, stale := entry.Coordinator.Snapshot()
		s.broadcast(event{
			Type:   eventRegistered,
			Device: viewOf(entry.Address, entry.Name, snapshot, stale, s.defaults),
		})

		entry.Coordinator.AddListener(func(u poller.Update) {
			typ := eventState
			if u.Failed {
				typ = eventPollFailed
			}

			s.broadcast(event{
				Type:   typ,
				Device: viewOf(entry.Address, entry.Name, u.Snapshot, u.Failed, s.defaults),
			})
		})
	})

	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/devices", s.handleListDevices)
	mux.HandleFunc("GET /api/devices/{address}", s.handleGetDevice)
	mux.HandleFunc("POST /api/devices/{address}/power", s.handleSetPower)
	mux.HandleFunc("POST /api/devices/{address}/brightness", s.handleSetBrightness)
	mux.HandleFunc("POST /api/devices/{address}/color", s.handleSetColor)
	mux.HandleFunc("POST /api/devices/{address}/effect", s.handleSetEffect)
	mux.HandleFunc("POST /api/devices/{address}/speed", s.handleSetSpeed)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	return mux
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	entries := s.hub.Devices()

	views := make([]DeviceView, 0, len(entries))
	for _, entry := range entries {
		snapshot, stale := entry.Coordinator.Snapshot()
		views = append(views, viewOf(entry.Address, entry.Name, snapshot, stale, s.defaults))
	}

	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	entry, err := s.hub.Device(r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}

	snapshot, stale := entry.Coordinator.Snapshot()
	writeJSON(w, http.StatusOK, viewOf(entry.Address, entry.Name, snapshot, stale, s.defaults))
}

func (s *Server) handleSetPower(w http.ResponseWriter, r *http.Request) {
	var req struct {
		On bool `json:"on"`
	}

	s.command(w, r, &req, func(entry *hub.Entry) error {
		return entry.Session.SetPower(r.Context(), req.On)
	})
}

func (s *Server) handleSetBrightness(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Brightness uint8 `json:"brightness"`
	}

	s.command(w, r, &req, func(entry *hub.Entry) error {
		return entry.Session.SetBrightness(r.Context(), req.Brightness)
	})
}

func (s *Server) handleSetColor(w http.ResponseWriter, r *http.Request) {
	var req models.RGB

	s.command(w, r, &req, func(entry *hub.Entry) error {
		return entry.Session.SetColor(r.Context(), req)
	})
}

func (s *Server) handleSetEffect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Effect string `json:"effect"`
	}

	s.command(w, r, &req, func(entry *hub.Entry) error {
		// Selecting the placeholder effect means "no effect".
		effect := req.Effect
		if effect == s.defaults.Effect {
			effect = ""
		}

		return entry.Session.SetEffect(r.Context(), effect)
	})
}

func (s *Server) handleSetSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed int `json:"speed"`
	}

	s.command(w, r, &req, func(entry *hub.Entry) error {
		if req.Speed < 0 || req.Speed > 100 {
			return errSpeedRange
		}

		return entry.Session.SetEffectSpeed(r.Context(), rebaseSpeedIn(req.Speed))
	})
}

// command looks up the entry, decodes the request body, runs the session
// call and responds with the refreshed view.
func (s *Server) command(w http.ResponseWriter, r *http.Request, req interface{}, fn func(*hub.Entry) error) {
	entry, err := s.hub.Device(r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := fn(entry); err != nil {
		writeError(w, err)
		return
	}

	snapshot, stale := entry.Coordinator.Snapshot()
	writeJSON(w, http.StatusOK, viewOf(entry.Address, entry.Name, snapshot, stale, s.defaults))
}

var errSpeedRange = errors.New("speed must be between 0 and 100")

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hub.ErrUnknownDevice):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, magicstrip.ErrUnknownEffect), errors.Is(err, errSpeedRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, magicstrip.ErrTimeout):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	case errors.Is(err, magicstrip.ErrConnection):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
