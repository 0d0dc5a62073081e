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

package port

import (
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/log"
)

// Open opens the port described by cfg. Native firewire needs a host
// adapter Bus and is opened with NewFirewirePort instead.
func Open(cfg *config.PortConfig) (Port, error) {
	kind, err := ParseKind(cfg.Kind)
	if err != nil {
		return nil, err
	}
	log.Debug("Opening %s port %s", kind, cfg)
	switch kind {
	case KindEthRaw:
		return OpenEthRawPort(cfg.InterfaceName(), cfg.Timeout())
	case KindEthUdp:
		return OpenEthUdpPort(cfg.Address, cfg.Timeout())
	}
	return nil, ErrFirewireUnavailable
}
