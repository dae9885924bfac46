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
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	eventRegistered = "registered"
	eventState      = "state"
	eventPollFailed = "poll_failed"

	wsSendBuffer   = 32
	wsWriteTimeout = 10 * time.Second
)

// event is one message on the /api/events stream.
type event struct {
	Type   string     `json:"type"`
	Device DeviceView `json:"device"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan event
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleEvents streams registration and state events. A new client first
// receives the currently registered devices, then live updates.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan event, wsSendBuffer),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	s.clientsMu.Unlock()

	// Catch the late joiner up on the existing registry.
	for _, entry := range s.hub.Devices() {
		snapshot, stale := entry.Coordinator.Snapshot()
		client.enqueue(event{
			Type:   eventRegistered,
			Device: viewOf(entry.Address, entry.Name, snapshot, stale, s.defaults),
		})
	}

	go s.writeLoop(client)
	s.readLoop(client)
}

// readLoop consumes (and discards) client frames until the connection dies,
// then detaches the client.
func (s *Server) readLoop(client *wsClient) {
	defer s.detach(client)

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(client *wsClient) {
	for ev := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))

		if err := client.conn.WriteJSON(ev); err != nil {
			s.log.Debug().Err(err).Msg("Websocket write failed")
			_ = client.conn.Close()

			return
		}
	}
}

func (s *Server) detach(client *wsClient) {
	s.clientsMu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
	s.clientsMu.Unlock()

	_ = client.conn.Close()
}

// broadcast fans an event out to every connected client. Slow clients drop
// events rather than block the publish path.
func (s *Server) broadcast(ev event) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for client := range s.clients {
		client.enqueue(ev)
	}
}

func (c *wsClient) enqueue(ev event) {
	select {
	case c.send <- ev:
	default:
	}
}
