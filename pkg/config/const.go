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

const (
	ConfigDir  = ".go-amp1394"
	ConfigFile = "config"
	DBFile     = "state.db"

	PortKindFirewire = "fw"
	PortKindEthRaw   = "eth"
	PortKindEthUdp   = "udp"

	DefaultPortKind    = PortKindEthUdp
	DefaultUdpAddress  = "169.254.0.100"
	DefaultPortTimeout = 100
	DefaultInterface   = "eth"

	DefaultApiAddress = "127.0.0.1"
	DefaultApiPort    = 8003

	DefaultFlashWords       = 0xffffff
	DefaultFlashPollDelay   = 2
	DefaultFlashResendDelay = 10
	DefaultFlashSettleDelay = 500
	DefaultFlashMaxPolls    = 11
	DefaultFlashMaxResends  = 20

	DefaultTelemetryTopic  = "amp1394"
	DefaultTelemetryPeriod = 1000
	DefaultTelemetryClient = "go-amp1394"

	DefaultLogLevel = "info"

	MaxBoards = 16
)
