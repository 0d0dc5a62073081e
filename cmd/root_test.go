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

package cmd

import (
	"bytes"
	"context"
	"io/ioutil"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/sim"
)

func run(t *testing.T, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd := NewRootCommand(out)
	cmd.SetErr(ioutil.Discard)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func serveSim(t *testing.T) (string, *sim.Bus) {
	bus := sim.NewBus(sim.NewBoard(0), sim.NewBoard(1))
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sim.NewBridge(bus).ServeUDP(ctx, pc)
	return "udp:" + pc.LocalAddr().String(), bus
}

func TestConfigInitAndShow(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, err := run(t, "config", "init", "--port", "udp:10.0.0.1", "--boards", "0,1")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration written to")

	_, err = run(t, "config", "init")
	require.Error(t, err)

	out, err = run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "kind: udp")
	assert.Contains(t, out, "address: 10.0.0.1")
}

func TestBadLogLevel(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cmd := NewRootCommand(ioutil.Discard)
	cmd.SetErr(ioutil.Discard)
	cmd.SetArgs([]string{"config", "show", "--log-level", "loud"})
	require.Error(t, cmd.Execute())
}

func TestQuadCommands(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	port, _ := serveSim(t)

	out, err := run(t, "quad", "read", "--port", port, "--board", "0", "--addr", "0x4")
	require.NoError(t, err)
	assert.Equal(t, "0x0004: 0x514c4131\n", out)

	_, err = run(t, "quad", "write", "--port", port, "--board", "1", "--addr", "0x44", "--value", "0x2000")
	require.NoError(t, err)
	out, err = run(t, "quad", "read", "--port", port, "--board", "1", "--addr", "0x44")
	require.NoError(t, err)
	assert.Equal(t, "0x0044: 0x00002000\n", out)

	_, err = run(t, "quad", "read", "--port", port, "--board", "20", "--addr", "0x4")
	require.Error(t, err)
}

func TestDiscoverCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	port, _ := serveSim(t)

	out, err := run(t, "discover", "--port", port)
	require.NoError(t, err)
	assert.Contains(t, out, "boardId: 1")
	assert.Contains(t, out, "hardwareVersion: 1363951921")
}

func TestInstrumentCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	port, bus := serveSim(t)
	bus.Board(0).SetFlash([]uint16{0x1122, 0x3344})
	file := filepath.Join(t.TempDir(), "dump.bin")

	out, err := run(t, "instrument", "--port", port, "--board", "0", "--words", "2", "--out", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Read 2 of 2 words")

	data, err := ioutil.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x22, 0x11, 0x44, 0x33}, data)
}

func TestCompletionCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	out, err := run(t, "completion")
	require.NoError(t, err)
	assert.Contains(t, out, "amp1394")
}
