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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richibrics/ha-magicstrip/pkg/config"
	"github.com/richibrics/ha-magicstrip/pkg/hub"
	"github.com/richibrics/ha-magicstrip/pkg/logger"
	"github.com/richibrics/ha-magicstrip/pkg/magicstrip"
	"github.com/richibrics/ha-magicstrip/pkg/models"
)

const testAddress = "AA:BB:CC:DD:EE:FF"

// fakeScanner replays advertisements pushed into its channel.
type fakeScanner struct {
	advs chan models.Advertisement
}

func (f *fakeScanner) Scan(ctx context.Context, handler func(models.Advertisement)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case adv := <-f.advs:
			handler(adv)
		}
	}
}

// fakeSession implements hub.Session and records the commands it receives.
// When err is set, every command fails with it.
type fakeSession struct {
	mu       sync.Mutex
	address  string
	snapshot models.Snapshot
	publish  func(models.Snapshot)
	err      error

	effects []string
	speeds  []uint8
}

func (f *fakeSession) Address() string { return f.address }
func (f *fakeSession) Name() string    { return "MagicStrip" }

func (f *fakeSession) DetectionUpdate(_ context.Context, adv models.Advertisement) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.snapshot.ConnectionQuality = adv.RSSI

	return nil
}

func (f *fakeSession) Refresh(context.Context) (models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.snapshot.Clone(), nil
}

func (f *fakeSession) Snapshot() models.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.snapshot.Clone()
}

func (f *fakeSession) SetPublishHook(fn func(models.Snapshot)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.publish = fn
}

func (f *fakeSession) apply(mutate func(*models.Snapshot)) error {
	f.mu.Lock()

	if f.err != nil {
		err := f.err
		f.mu.Unlock()

		return err
	}

	mutate(&f.snapshot)
	snapshot := f.snapshot.Clone()
	publish := f.publish
	f.mu.Unlock()

	if publish != nil {
		publish(snapshot)
	}

	return nil
}

func (f *fakeSession) SetPower(_ context.Context, on bool) error {
	return f.apply(func(s *models.Snapshot) { s.On = on })
}

func (f *fakeSession) SetBrightness(_ context.Context, value uint8) error {
	return f.apply(func(s *models.Snapshot) {
		v := value
		s.Brightness = &v
	})
}

func (f *fakeSession) SetColor(_ context.Context, color models.RGB) error {
	return f.apply(func(s *models.Snapshot) {
		c := color
		s.Color = &c
		s.Effect = nil
	})
}

func (f *fakeSession) SetEffect(_ context.Context, name string) error {
	return f.apply(func(s *models.Snapshot) {
		f.effects = append(f.effects, name)

		if name == "" {
			s.Effect = nil
			return
		}

		n := name
		s.Effect = &n
	})
}

func (f *fakeSession) SetEffectSpeed(_ context.Context, value uint8) error {
	return f.apply(func(s *models.Snapshot) {
		f.speeds = append(f.speeds, value)

		v := value
		s.EffectSpeed = &v
	})
}

func (f *fakeSession) Close() error { return nil }

func (f *fakeSession) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.err = err
}

func (f *fakeSession) sentEffects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.effects...)
}

func (f *fakeSession) sentSpeeds() []uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]uint8(nil), f.speeds...)
}

type webFixture struct {
	hub     *hub.Hub
	scanner *fakeScanner
	server  *httptest.Server
	session *fakeSession

	mu       sync.Mutex
	sessions map[string]*fakeSession
}

func testDefaults() config.Defaults {
	return config.Defaults{
		Effect:     "Off",
		Color:      models.RGB{R: 255, G: 255, B: 255},
		Brightness: 255,
		Speed:      128,
	}
}

func startWebFixture(t *testing.T) *webFixture {
	t.Helper()

	f := &webFixture{
		scanner:  &fakeScanner{advs: make(chan models.Advertisement, 16)},
		sessions: make(map[string]*fakeSession),
	}

	f.hub = hub.New(f.scanner, hub.Config{
		Filter: func(adv models.Advertisement) bool {
			return adv.HasService(magicstrip.ServiceUUIDString)
		},
		Factory: func(adv models.Advertisement) hub.Session {
			session := &fakeSession{
				address:  adv.Address,
				snapshot: models.Snapshot{Effects: magicstrip.EffectNames()},
			}

			f.mu.Lock()
			f.sessions[adv.Address] = session
			f.mu.Unlock()

			return session
		},
		PollInterval: time.Hour,
	}, logger.NewTestLogger())

	s := NewServer(f.hub, testDefaults(), logger.NewTestLogger())
	f.server = httptest.NewServer(s.Handler())

	runErr := make(chan error, 1)

	go func() {
		runErr <- f.hub.Run(context.Background())
	}()

	t.Cleanup(func() {
		f.server.Close()
		f.hub.Stop()

		select {
		case <-runErr:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop")
		}
	})

	return f
}

// registerDevice feeds an advertisement through the scanner and waits for the
// registry to pick it up.
func (f *webFixture) registerDevice(t *testing.T, address string) {
	t.Helper()

	f.scanner.advs <- models.Advertisement{
		Address:   address,
		LocalName: "MagicStrip",
		RSSI:      -48,
		Services:  []string{magicstrip.ServiceUUIDString},
	}

	require.Eventually(t, func() bool {
		_, err := f.hub.Device(address)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	f.mu.Lock()
	f.session = f.sessions[address]
	f.mu.Unlock()
}

func (f *webFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()

	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)

	return resp
}

func (f *webFixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)

	return resp
}

func decodeView(t *testing.T, resp *http.Response) DeviceView {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	var view DeviceView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))

	return view
}

func TestServer_ListDevices_SubstitutesDefaults(t *testing.T) {
	f := startWebFixture(t)
	f.registerDevice(t, testAddress)

	resp := f.get(t, "/api/devices")
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var views []DeviceView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	require.Len(t, views, 1)

	view := views[0]
	assert.Equal(t, testAddress, view.Address)
	assert.False(t, view.On)

	// Nothing has been read or set yet, so the view carries the defaults.
	assert.Equal(t, uint8(255), view.Brightness)
	assert.Equal(t, models.RGB{R: 255, G: 255, B: 255}, view.Color)
	assert.Equal(t, "Off", view.Effect)
	assert.Equal(t, 50, view.EffectSpeed)
	assert.Contains(t, view.Effects, "Off")
	assert.Contains(t, view.Effects, "Rainbow")
	assert.Equal(t, int16(-48), view.ConnectionQuality)
	assert.False(t, view.Stale)
}

func TestServer_GetDevice_Unknown(t *testing.T) {
	f := startWebFixture(t)

	resp := f.get(t, "/api/devices/"+testAddress)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_SetBrightness(t *testing.T) {
	f := startWebFixture(t)
	f.registerDevice(t, testAddress)

	resp := f.post(t, "/api/devices/"+testAddress+"/brightness", `{"brightness": 200}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	view := decodeView(t, resp)
	assert.Equal(t, uint8(200), view.Brightness)
}

func TestServer_SetColor_ClearsEffect(t *testing.T) {
	f := startWebFixture(t)
	f.registerDevice(t, testAddress)

	resp := f.post(t, "/api/devices/"+testAddress+"/effect", `{"effect": "Rainbow"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Rainbow", decodeView(t, resp).Effect)

	resp = f.post(t, "/api/devices/"+testAddress+"/color", `{"r": 10, "g": 20, "b": 30}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	view := decodeView(t, resp)
	assert.Equal(t, models.RGB{R: 10, G: 20, B: 30}, view.Color)

	// Back to the placeholder once the solid color replaced the effect.
	assert.Equal(t, "Off", view.Effect)
}

func TestServer_SetEffect_PlaceholderClears(t *testing.T) {
	f := startWebFixture(t)
	f.registerDevice(t, testAddress)

	resp := f.post(t, "/api/devices/"+testAddress+"/effect", `{"effect": "Off"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	// The placeholder is translated to "clear the effect" for the session.
	require.Equal(t, []string{""}, f.session.sentEffects())
}

func TestServer_SetSpeed_Rebases(t *testing.T) {
	f := startWebFixture(t)
	f.registerDevice(t, testAddress)

	resp := f.post(t, "/api/devices/"+testAddress+"/speed", `{"speed": 100}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	view := decodeView(t, resp)
	assert.Equal(t, 100, view.EffectSpeed)

	// Slider 100 maps to the full device range.
	require.Equal(t, []uint8{255}, f.session.sentSpeeds())
}

func TestServer_SetSpeed_OutOfRange(t *testing.T) {
	f := startWebFixture(t)
	f.registerDevice(t, testAddress)

	for _, body := range []string{`{"speed": 101}`, `{"speed": -1}`} {
		resp := f.post(t, "/api/devices/"+testAddress+"/speed", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	}

	assert.Empty(t, f.session.sentSpeeds())
}

func TestServer_ErrorMapping(t *testing.T) {
	f := startWebFixture(t)
	f.registerDevice(t, testAddress)

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"timeout", magicstrip.ErrTimeout, http.StatusGatewayTimeout},
		{"connection", magicstrip.ErrConnection, http.StatusBadGateway},
		{"unknown effect", magicstrip.ErrUnknownEffect, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.session.setError(fmt.Errorf("session: %w", tt.err))

			resp := f.post(t, "/api/devices/"+testAddress+"/power", `{"on": true}`)
			assert.Equal(t, tt.status, resp.StatusCode)
			_ = resp.Body.Close()
		})
	}
}

func TestServer_EventStream(t *testing.T) {
	f := startWebFixture(t)
	f.registerDevice(t, testAddress)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/events"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	defer func() {
		_ = conn.Close()

		if resp != nil {
			_ = resp.Body.Close()
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	// Catch-up: the already registered device arrives first.
	var ev event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, eventRegistered, ev.Type)
	assert.Equal(t, testAddress, ev.Device.Address)

	// A command pushes a state event without waiting for a poll.
	httpResp := f.post(t, "/api/devices/"+testAddress+"/brightness", `{"brightness": 42}`)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	_ = httpResp.Body.Close()

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, eventState, ev.Type)
	assert.Equal(t, uint8(42), ev.Device.Brightness)
}
