/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package control

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device/amp"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/flash"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/port"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/session"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/sim"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), "config"))
	cfg.DBPath = filepath.Join(t.TempDir(), "state.db")
	cfg.Boards = []int{0, 1}
	cfg.Flash.PollDelayMs = 0
	cfg.Flash.ResendDelayMs = 0
	cfg.Flash.SettleDelayMs = 0
	return cfg
}

func newTestServer(t *testing.T) (*ControlServer, *sim.Bus) {
	bus := sim.NewBus(sim.NewBoard(0), sim.NewBoard(1))
	s, err := NewControlServerWithPort(context.Background(), testConfig(t), port.NewFirewirePort(bus))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, bus
}

func serve(s *ControlServer, method, url string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, url, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewControlServerRejectsBadBoard(t *testing.T) {
	cfg := testConfig(t)
	cfg.Boards = []int{16}
	_, err := NewControlServerWithPort(context.Background(), cfg, port.NewFirewirePort(sim.NewBus()))
	var boardRange device.ErrBoardRange
	require.True(t, errors.As(err, &boardRange))
}

func TestQuadletsAreCached(t *testing.T) {
	s, bus := newTestServer(t)
	preload := device.MustChannelAddr(3, device.RegEncLoad).Address()

	require.NoError(t, s.WriteQuadlet(1, preload, 0x2000))
	value, err := s.ReadQuadlet(1, preload)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x2000), value)

	hw, err := s.ReadQuadlet(1, device.HardwareVersion)
	require.NoError(t, err)
	assert.Equal(t, sim.HardwareQLA1, hw)

	cached, err := s.CachedQuadlets(1)
	require.NoError(t, err)
	assert.Equal(t, map[uint64]uint32{preload: 0x2000, device.HardwareVersion: sim.HardwareQLA1}, cached)

	assert.Equal(t, []uint8{0, 1}, s.Boards())
	assert.Positive(t, bus.Transactions())
}

func TestSetMotorCurrentAndSnapshot(t *testing.T) {
	s, bus := newTestServer(t)

	require.NoError(t, s.SetMotorCurrent(0, 2, 0x8500))
	assert.Equal(t, uint32(0x8500), bus.Board(0).MotorCurrent(2))

	snap, err := s.Snapshot(0)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), snap.BoardID)
	assert.Equal(t, uint16(0x8500), snap.Channels[2].MotorCurrent)
	assert.Equal(t, uint16(0x8500), snap.Channels[2].CommandedCurrent)
	assert.Equal(t, uint16(device.MotorCurrentMidScale), snap.Channels[1].MotorCurrent)

	stored, err := s.state.GetSnapshot(0)
	require.NoError(t, err)
	assert.Equal(t, snap, stored)

	snaps, err := s.SnapshotAll()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, uint8(1), snaps[1].BoardID)
}

func TestSetMotorCurrentRejectsBadValues(t *testing.T) {
	s, _ := newTestServer(t)
	var channelRange device.ErrChannelRange
	require.True(t, errors.As(s.SetMotorCurrent(0, device.NumChannels, 0x8000), &channelRange))
	var valueRange device.ErrValueRange
	require.True(t, errors.As(s.SetMotorCurrent(0, 0, 0x10000), &valueRange))
	var notInSession session.ErrNotInSession
	require.True(t, errors.As(s.SetMotorCurrent(7, 0, 0x8000), &notInSession))
}

func TestSetPower(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.SetPower(1, device.StatusPowerMask|0x0f))

	snap, err := s.Snapshot(1)
	require.NoError(t, err)
	assert.True(t, snap.PowerStatus)
	assert.Equal(t, uint8(0x0f), snap.AmpEnable)

	cached, err := s.state.GetQuadlet(1, device.BoardStatus)
	require.NoError(t, err)
	assert.Equal(t, device.StatusPowerMask|0x0f, cached)
}

func TestDumpFlash(t *testing.T) {
	s, bus := newTestServer(t)
	bus.Board(0).SetFlash([]uint16{0x1234, 0x5678, 0x9abc, 0xdef0})

	stats, err := s.DumpFlash(context.Background(), 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Words)
	assert.Equal(t, 4, stats.Fetched)

	words, states, err := s.FlashImage(0)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x1234, 0x5678, 0x9abc, 0xdef0}, words)
	assert.Equal(t, []flash.WordState{flash.WordFetched, flash.WordFetched, flash.WordFetched, flash.WordFetched}, states)

	// a second dump replaces the first
	_, err = s.DumpFlash(context.Background(), 0, 2)
	require.NoError(t, err)
	words, _, err = s.FlashImage(0)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x1234, 0x5678}, words)
}

func TestApiBoards(t *testing.T) {
	s, _ := newTestServer(t)
	rec := serve(s, "GET", "/api/boards", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := &BoardList{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(list))
	assert.Equal(t, []int{0, 1}, list.Boards)
}

func TestApiQuadlets(t *testing.T) {
	s, _ := newTestServer(t)

	rec := serve(s, "GET", "/api/quad/r/0/0x0004", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	quad := &QuadHex{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(quad))
	assert.Equal(t, "0x0004", quad.Addr)
	assert.Equal(t, "0x514c4131", quad.Value)

	rec = serve(s, "POST", "/api/quad/w/1", &QuadHex{Addr: "0x0042", Value: "0x2000"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, "GET", "/api/quad/r/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cached []*QuadHex
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cached))
	assert.Equal(t, []*QuadHex{{Addr: "0x0042", Value: "0x00002000"}}, cached)

	rec = serve(s, "POST", "/api/quad/w/1", &QuadHex{Addr: "0x0042", Value: "zz"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(s, "GET", "/api/quad/r/9/0x0004", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(s, "GET", "/api/quad/r/99/0x0004", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(s, "GET", "/api/quad/r/300/0x0004", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "board id 300")

	rec = serve(s, "GET", "/api/board/99999999999999999999", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "99999999999999999999")
	assert.NotContains(t, rec.Body.String(), "board id 255")
}

func TestApiBoardControl(t *testing.T) {
	s, _ := newTestServer(t)

	rec := serve(s, "POST", "/api/board/0/current", &CurrentSetup{Channel: 2, Value: "0x8500"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, "GET", "/api/board/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := &amp.Snapshot{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(snap))
	assert.Equal(t, uint16(0x8500), snap.Channels[2].MotorCurrent)

	rec = serve(s, "GET", "/api/board", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snaps []*amp.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snaps))
	assert.Len(t, snaps, 2)

	rec = serve(s, "POST", "/api/board/0/current", &CurrentSetup{Channel: 9, Value: "0x8500"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(s, "POST", "/api/board/0/power", &PowerSetup{Value: "0x000c00ff"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, "GET", "/api/board/5", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApiFlash(t *testing.T) {
	s, bus := newTestServer(t)
	bus.Board(1).SetFlash([]uint16{0xbeef, 0x0102})

	rec := serve(s, "POST", "/api/flash/1", &FlashSetup{Words: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	result := &FlashResult{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(result))
	assert.Equal(t, 2, result.Fetched)

	rec = serve(s, "GET", "/api/flash/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := rec.Body.Bytes()
	require.Len(t, data, 4)
	assert.Equal(t, uint16(0xbeef), binary.LittleEndian.Uint16(data))
	assert.Equal(t, uint16(0x0102), binary.LittleEndian.Uint16(data[2:]))
}

func TestApiDocs(t *testing.T) {
	s, _ := newTestServer(t)

	rec := serve(s, "GET", SpecPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go-amp1394 API")

	rec = serve(s, "GET", DocsPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), SpecPath))
}

func TestRunStopsWithContext(t *testing.T) {
	cfg := testConfig(t)
	cfg.Api.Port = 0
	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewControlServerWithPort(ctx, cfg, port.NewFirewirePort(sim.NewBus(sim.NewBoard(0), sim.NewBoard(1))))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- s.Run()
	}()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("control server did not stop")
	}
	require.NoError(t, s.Close())
}
