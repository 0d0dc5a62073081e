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
	"sync"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/log"
)

// Bus is the host adapter interface of a firewire port: generation
// tagged async transactions and bus reset notification.
type Bus interface {
	Generation() uint32
	NodeCount() int
	SetResetHandler(handler func(generation uint32))

	ReadQuadlet(generation uint32, node NodeID, addr uint64) (uint32, error)
	WriteQuadlet(generation uint32, node NodeID, addr uint64, data uint32) error
	ReadBlock(generation uint32, node NodeID, addr uint64, buf []uint32) error
	WriteBlock(generation uint32, node NodeID, addr uint64, data []uint32) error
}

type FirewirePort struct {
	bus Bus

	mu      sync.Mutex
	handler TopologyHandler
	closed  bool
}

var _ Port = &FirewirePort{}

func NewFirewirePort(bus Bus) *FirewirePort {
	p := &FirewirePort{bus: bus}
	bus.SetResetHandler(p.onReset)
	return p
}

func (p *FirewirePort) onReset(generation uint32) {
	log.Debug("Bus reset, generation %d", generation)
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler != nil {
		handler(generation)
	}
}

func (p *FirewirePort) Kind() Kind {
	return KindFirewire
}

func (p *FirewirePort) Generation() uint32 {
	return p.bus.Generation()
}

func (p *FirewirePort) NumNodes() (int, error) {
	if err := p.check(); err != nil {
		return 0, err
	}
	return p.bus.NodeCount(), nil
}

func (p *FirewirePort) SetTopologyHandler(handler TopologyHandler) {
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
}

func (p *FirewirePort) check() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return nil
}

func (p *FirewirePort) ReadQuadlet(generation uint32, node NodeID, addr uint64) (uint32, error) {
	if err := p.check(); err != nil {
		return 0, err
	}
	return p.bus.ReadQuadlet(generation, node, addr)
}

func (p *FirewirePort) WriteQuadlet(generation uint32, node NodeID, addr uint64, data uint32) error {
	if err := p.check(); err != nil {
		return err
	}
	return p.bus.WriteQuadlet(generation, node, addr, data)
}

func (p *FirewirePort) ReadBlock(generation uint32, node NodeID, addr uint64, buf []uint32) error {
	if err := p.check(); err != nil {
		return err
	}
	return p.bus.ReadBlock(generation, node, addr, buf)
}

func (p *FirewirePort) WriteBlock(generation uint32, node NodeID, addr uint64, data []uint32) error {
	if err := p.check(); err != nil {
		return err
	}
	return p.bus.WriteBlock(generation, node, addr, data)
}

func (p *FirewirePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.handler = nil
	p.mu.Unlock()
	p.bus.SetResetHandler(nil)
	return nil
}
