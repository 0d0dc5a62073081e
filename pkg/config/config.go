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
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sigs.k8s.io/yaml"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/log"
)

type PortConfig struct {
	Kind      string `json:"kind"`
	Number    int    `json:"number"`
	Interface string `json:"interface,omitempty"`
	Address   string `json:"address,omitempty"`
	TimeoutMs int    `json:"timeoutMs"`
}

func (p *PortConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// InterfaceName is the network interface of a raw Ethernet port
func (p *PortConfig) InterfaceName() string {
	if p.Interface != "" {
		return p.Interface
	}
	return DefaultInterface + strconv.Itoa(p.Number)
}

func (p *PortConfig) String() string {
	switch p.Kind {
	case PortKindEthUdp:
		return PortKindEthUdp + ":" + p.Address
	case PortKindEthRaw:
		return PortKindEthRaw + ":" + p.InterfaceName()
	}
	return p.Kind + strconv.Itoa(p.Number)
}

type FlashConfig struct {
	Words         int  `json:"words"`
	PollDelayMs   int  `json:"pollDelayMs"`
	ResendDelayMs int  `json:"resendDelayMs"`
	SettleDelayMs int  `json:"settleDelayMs"`
	MaxPolls      int  `json:"maxPolls"`
	MaxResends    int  `json:"maxResends"`
	NoSkipBlank   bool `json:"noSkipBlank,omitempty"`
}

type ApiConfig struct {
	Address string `json:"address,omitempty"`
	Port    int    `json:"port,omitempty"`
}

func (a *ApiConfig) Endpoint() string {
	return net.JoinHostPort(a.Address, strconv.Itoa(a.Port))
}

type TelemetryConfig struct {
	Broker   string `json:"broker,omitempty"`
	ClientID string `json:"clientId,omitempty"`
	Topic    string `json:"topic,omitempty"`
	PeriodMs int    `json:"periodMs,omitempty"`
}

func (t *TelemetryConfig) Enabled() bool {
	return t != nil && t.Broker != ""
}

func (t *TelemetryConfig) Period() time.Duration {
	return time.Duration(t.PeriodMs) * time.Millisecond
}

type Config struct {
	Port      *PortConfig      `json:"port"`
	Boards    []int            `json:"boards"`
	Flash     *FlashConfig     `json:"flash,omitempty"`
	Api       *ApiConfig       `json:"api,omitempty"`
	Telemetry *TelemetryConfig `json:"telemetry,omitempty"`
	DBPath    string           `json:"dbPath,omitempty"`
	LogLevel  string           `json:"logLevel,omitempty"`
	filepath  string
}

func (c *Config) Path() string {
	return c.filepath
}

func (c *Config) SetPath(path string) {
	c.filepath = path
}

func (c *Config) Persist(overwrite bool) error {
	if _, err := os.Stat(c.filepath); err == nil && !overwrite {
		return ErrConfigFileExists{Path: c.filepath}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.filepath)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(c.filepath, data, 0644)
}

// LoadConfig reads the config file over the current values. A missing
// file keeps the defaults.
func (c *Config) LoadConfig() error {
	data, err := ioutil.ReadFile(c.filepath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	if c.Port == nil {
		return ErrInvalidConfig{Field: "port", Reason: "missing"}
	}
	switch c.Port.Kind {
	case PortKindFirewire, PortKindEthRaw, PortKindEthUdp:
	default:
		return ErrInvalidConfig{Field: "port.kind", Reason: "must be one of fw, eth, udp"}
	}
	if c.Port.Number < 0 {
		return ErrInvalidConfig{Field: "port.number", Reason: "must not be negative"}
	}
	if c.Port.TimeoutMs <= 0 {
		return ErrInvalidConfig{Field: "port.timeoutMs", Reason: "must be positive"}
	}
	seen := map[int]bool{}
	for _, id := range c.Boards {
		if id < 0 || id >= MaxBoards {
			return ErrInvalidConfig{Field: "boards", Reason: "board id " + strconv.Itoa(id) + " out of range"}
		}
		if seen[id] {
			return ErrInvalidConfig{Field: "boards", Reason: "board id " + strconv.Itoa(id) + " listed twice"}
		}
		seen[id] = true
	}
	if c.Flash != nil && (c.Flash.MaxPolls <= 0 || c.Flash.MaxResends < 0 || c.Flash.Words < 0) {
		return ErrInvalidConfig{Field: "flash", Reason: "maxPolls must be positive, maxResends and words not negative"}
	}
	if c.Api != nil && (c.Api.Port <= 0 || c.Api.Port > 65535) {
		return ErrInvalidConfig{Field: "api.port", Reason: "out of range"}
	}
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			return ErrInvalidConfig{Field: "logLevel", Reason: err.Error()}
		}
	}
	if c.Telemetry.Enabled() && c.Telemetry.PeriodMs <= 0 {
		return ErrInvalidConfig{Field: "telemetry.periodMs", Reason: "must be positive"}
	}
	return nil
}

// ParsePortOption parses the short port notation: fwN, ethN, udp,
// udp:IP, udpIP or a bare N meaning fwN.
func ParsePortOption(option string) (*PortConfig, error) {
	p := &PortConfig{TimeoutMs: DefaultPortTimeout}
	s := strings.TrimSpace(strings.ToLower(option))
	number := func(rest string) error {
		if rest == "" {
			return nil
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			return ErrPortOption{Option: option}
		}
		p.Number = n
		return nil
	}
	switch {
	case strings.HasPrefix(s, PortKindEthUdp):
		p.Kind = PortKindEthUdp
		addr := strings.TrimPrefix(strings.TrimPrefix(s, PortKindEthUdp), ":")
		if addr == "" {
			addr = DefaultUdpAddress
		}
		host := addr
		if h, _, err := net.SplitHostPort(addr); err == nil {
			host = h
		}
		if net.ParseIP(host) == nil {
			return nil, ErrPortOption{Option: option}
		}
		p.Address = addr
	case strings.HasPrefix(s, PortKindFirewire):
		p.Kind = PortKindFirewire
		if err := number(strings.TrimPrefix(s, PortKindFirewire)); err != nil {
			return nil, err
		}
	case strings.HasPrefix(s, PortKindEthRaw):
		p.Kind = PortKindEthRaw
		if err := number(strings.TrimPrefix(s, PortKindEthRaw)); err != nil {
			return nil, err
		}
	default:
		p.Kind = PortKindFirewire
		if s == "" {
			return nil, ErrPortOption{Option: option}
		}
		if err := number(s); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, ConfigFile)
}

func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, DBFile)
}

func NewDefaultConfig() *Config {
	return &Config{
		Port: &PortConfig{
			Kind:      DefaultPortKind,
			Address:   DefaultUdpAddress,
			TimeoutMs: DefaultPortTimeout,
		},
		Boards: []int{},
		Flash: &FlashConfig{
			Words:         DefaultFlashWords,
			PollDelayMs:   DefaultFlashPollDelay,
			ResendDelayMs: DefaultFlashResendDelay,
			SettleDelayMs: DefaultFlashSettleDelay,
			MaxPolls:      DefaultFlashMaxPolls,
			MaxResends:    DefaultFlashMaxResends,
		},
		Api: &ApiConfig{
			Address: DefaultApiAddress,
			Port:    DefaultApiPort,
		},
		Telemetry: &TelemetryConfig{
			ClientID: DefaultTelemetryClient,
			Topic:    DefaultTelemetryTopic,
			PeriodMs: DefaultTelemetryPeriod,
		},
		DBPath:   DefaultDBPath(),
		LogLevel: DefaultLogLevel,
		filepath: DefaultConfigPath(),
	}
}
