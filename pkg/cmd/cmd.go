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
	"strconv"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device"
)

// Option names shared by the commands
const (
	PortOptionName    = "port"
	BoardOptionName   = "board"
	AddrOptionName    = "addr"
	ValueOptionName   = "value"
	ChannelOptionName = "channel"
	WordsOptionName   = "words"
	TimeoutOptionName = "timeout"
)

// LoadConfig returns the defaults overlaid with the config file. A broken
// file is reported when the command runs, not when it is built.
func LoadConfig() (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	return cfg, cfg.LoadConfig()
}

// ApplyPortOption replaces the configured port with the one given on the
// command line, e.g. fw0, eth1, udp or udp:169.254.0.100
func ApplyPortOption(cfg *config.Config, option string, timeoutMs int) error {
	if option != "" {
		p, err := config.ParsePortOption(option)
		if err != nil {
			return err
		}
		cfg.Port = p
	}
	if timeoutMs > 0 {
		cfg.Port.TimeoutMs = timeoutMs
	}
	return nil
}

func ParseBoard(s string) (uint8, error) {
	id, err := strconv.ParseUint(s, 0, 8)
	if err != nil || id >= device.MaxBoards {
		return 0, device.ErrBoardRange{BoardID: int(id)}
	}
	return uint8(id), nil
}

// ParseAddr parses a quadlet address, hexadecimal with 0x or decimal
func ParseAddr(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}

func ParseValue(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}
