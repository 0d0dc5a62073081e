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

package command

import (
	"bytes"
	"context"
	"net"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/flash"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/port"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/sim"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/srv/control"
)

// simConfig serves two simulated boards over UDP and returns a config pointing at them
func simConfig(t *testing.T) (*config.Config, *sim.Bus) {
	bus := sim.NewBus(sim.NewBoard(0), sim.NewBoard(1))
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sim.NewBridge(bus).ServeUDP(ctx, pc)

	cfg := config.NewDefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), "config"))
	cfg.DBPath = filepath.Join(t.TempDir(), "state.db")
	cfg.Port, err = config.ParsePortOption("udp:" + pc.LocalAddr().String())
	require.NoError(t, err)
	cfg.Port.TimeoutMs = 1000
	return cfg, bus
}

func TestDiscover(t *testing.T) {
	cfg, _ := simConfig(t)
	nodes, err := Discover(cfg)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	for i, n := range nodes {
		assert.Equal(t, port.NodeID(i), n.Node)
		assert.Equal(t, sim.HardwareQLA1, n.HardwareVersion)
		assert.Equal(t, device.MaxFirmwareVersion, n.FirmwareVersion)
	}
	assert.ElementsMatch(t, []uint8{0, 1}, []uint8{nodes[0].BoardID, nodes[1].BoardID})
}

func TestQuadReadWrite(t *testing.T) {
	cfg, bus := simConfig(t)
	preload := device.MustChannelAddr(3, device.RegEncLoad).Address()

	require.NoError(t, QuadWrite(cfg, 1, preload, 0x2000))
	value, err := QuadRead(cfg, 1, preload)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x2000), value)

	dac := device.MustChannelAddr(2, device.RegDacCtrl).Address()
	value, err = QuadRead(cfg, 0, dac)
	require.NoError(t, err)
	assert.Equal(t, bus.Board(0).MotorCurrent(2), value)
}

func TestBlockReadWrite(t *testing.T) {
	cfg, bus := simConfig(t)

	hub, err := BlockRead(cfg, 0, device.HubAddr, 2*(device.SegmentHeaderSize+device.ReadBufSize))
	require.NoError(t, err)
	_, count := device.ParseSegmentHeader(hub[0])
	assert.Equal(t, device.ReadBufSize, count)

	write := []uint32{0x8000, 0x8000, 0x8500, 0x8000, 0x8000, 0x8000, 0x8000}
	require.NoError(t, BlockWrite(cfg, 0, device.RealTimeAddr, write))
	assert.Equal(t, uint32(0x8500), bus.Board(0).MotorCurrent(2))
}

func TestInstrument(t *testing.T) {
	cfg, bus := simConfig(t)
	bus.Board(1).SetFlash([]uint16{0x0102, 0x0304, 0x0506})

	opts := flash.OptionsFromConfig(cfg.Flash)
	opts.Words = 3
	opts.Sleep = func(time.Duration) {}
	out := &bytes.Buffer{}
	stats, err := Instrument(context.Background(), cfg, 1, opts, out)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Fetched)
	assert.Equal(t, []byte{0x02, 0x01, 0x04, 0x03, 0x06, 0x05}, out.Bytes())
}

func TestServeSimStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, ServeSim(ctx, "127.0.0.1:0", []int{0, 1}, nil))
}

func TestApiClient(t *testing.T) {
	cfg, bus := simConfig(t)
	cfg.Boards = []int{0, 1}
	cfg.Flash.PollDelayMs = 0
	cfg.Flash.ResendDelayMs = 0
	cfg.Flash.SettleDelayMs = 0
	bus.Board(0).SetFlash([]uint16{0xabcd})

	p, err := port.Open(cfg.Port)
	require.NoError(t, err)
	s, err := control.NewControlServerWithPort(context.Background(), cfg, p)
	require.NoError(t, err)
	defer s.Close()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	cfg.Api.Address = host
	cfg.Api.Port, err = strconv.Atoi(portStr)
	require.NoError(t, err)
	c := NewApiClient(cfg)

	boards, err := c.Boards()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, boards)

	nodes, err := c.Scan()
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	value, err := c.QuadRead(1, "0x0004")
	require.NoError(t, err)
	assert.Equal(t, "0x514c4131", value)

	require.NoError(t, c.QuadWrite(1, "0x0044", "0x2000"))
	cached, err := c.QuadReadCached(1)
	require.NoError(t, err)
	assert.Equal(t, "0x00002000", cached["0x0044"])

	require.NoError(t, c.SetMotorCurrent(0, 2, "0x8500"))
	snap, err := c.Snapshot(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x8500), snap.Channels[2].MotorCurrent)

	snaps, err := c.SnapshotAll()
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	require.NoError(t, c.SetPower(0, "0x000c0001"))
	snap, err = c.Snapshot(0)
	require.NoError(t, err)
	assert.True(t, snap.PowerStatus)

	assert.Error(t, c.SetMotorCurrent(0, 9, "0x8000"))
	_, err = c.Snapshot(5)
	assert.Error(t, err)

	result, err := c.DumpFlash(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fetched)
	image, err := c.FlashImage(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xcd, 0xab}, image)
}
