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

package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePortOption(t *testing.T) {
	cases := []struct {
		option string
		kind   string
		number int
		addr   string
	}{
		{"fw", PortKindFirewire, 0, ""},
		{"fw1", PortKindFirewire, 1, ""},
		{"2", PortKindFirewire, 2, ""},
		{"eth0", PortKindEthRaw, 0, ""},
		{"udp", PortKindEthUdp, 0, DefaultUdpAddress},
		{"udp:10.0.0.7", PortKindEthUdp, 0, "10.0.0.7"},
		{"udp192.168.1.5", PortKindEthUdp, 0, "192.168.1.5"},
		{"udp:127.0.0.1:14000", PortKindEthUdp, 0, "127.0.0.1:14000"},
	}
	for _, c := range cases {
		t.Run(c.option, func(t *testing.T) {
			p, err := ParsePortOption(c.option)
			require.NoError(t, err)
			assert.Equal(t, c.kind, p.Kind)
			assert.Equal(t, c.number, p.Number)
			assert.Equal(t, c.addr, p.Address)
			assert.Equal(t, 100*time.Millisecond, p.Timeout())
		})
	}
}

func TestParsePortOptionRejects(t *testing.T) {
	for _, option := range []string{"", "fwx", "eth-1", "udp:not-an-ip", "serial"} {
		_, err := ParsePortOption(option)
		var optErr ErrPortOption
		assert.True(t, errors.As(err, &optErr), option)
	}
}

func TestInterfaceName(t *testing.T) {
	p := &PortConfig{Kind: PortKindEthRaw, Number: 1}
	assert.Equal(t, "eth1", p.InterfaceName())
	p.Interface = "enp3s0"
	assert.Equal(t, "enp3s0", p.InterfaceName())
	assert.Equal(t, "eth:enp3s0", p.String())
}

func TestPersistAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amp", "config")
	c := NewDefaultConfig()
	c.SetPath(path)
	c.Port.Kind = PortKindEthUdp
	c.Boards = []int{0, 1}
	c.Telemetry.Broker = "tcp://localhost:1883"
	require.NoError(t, c.Persist(false))

	var exists ErrConfigFileExists
	require.True(t, errors.As(c.Persist(false), &exists))
	require.NoError(t, c.Persist(true))

	loaded := NewDefaultConfig()
	loaded.SetPath(path)
	require.NoError(t, loaded.LoadConfig())
	assert.Equal(t, PortKindEthUdp, loaded.Port.Kind)
	assert.Equal(t, []int{0, 1}, loaded.Boards)
	assert.True(t, loaded.Telemetry.Enabled())
	assert.Equal(t, DefaultFlashMaxPolls, loaded.Flash.MaxPolls)
}

func TestLoadMissingKeepsDefaults(t *testing.T) {
	c := NewDefaultConfig()
	c.SetPath(filepath.Join(t.TempDir(), "none"))
	require.NoError(t, c.LoadConfig())
	assert.Equal(t, DefaultPortKind, c.Port.Kind)
}

func TestValidate(t *testing.T) {
	c := NewDefaultConfig()
	require.NoError(t, c.Validate())

	c.Boards = []int{3, 3}
	var invalid ErrInvalidConfig
	require.True(t, errors.As(c.Validate(), &invalid))
	assert.Equal(t, "boards", invalid.Field)

	c.Boards = []int{16}
	require.Error(t, c.Validate())

	c = NewDefaultConfig()
	c.Port.Kind = "serial"
	require.Error(t, c.Validate())

	c = NewDefaultConfig()
	c.Telemetry.Broker = "tcp://broker:1883"
	c.Telemetry.PeriodMs = 0
	require.Error(t, c.Validate())

	c = NewDefaultConfig()
	c.LogLevel = "chatty"
	require.True(t, errors.As(c.Validate(), &invalid))
	assert.Equal(t, "logLevel", invalid.Field)
	c.LogLevel = "debug"
	assert.NoError(t, c.Validate())
}
