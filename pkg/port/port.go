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
	"errors"
	"fmt"
	"strings"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/layers"
)

// NodeID is the physical id of a node on the local bus
type NodeID uint16

const (
	// LocalBus is the bus id part of a full 16 bit node id
	LocalBus uint16 = 0xffc0
	// BroadcastNode addresses every node on the bus
	BroadcastNode NodeID = 0x3f
	// MaxNodes is the number of addressable nodes on one bus
	MaxNodes = 63
	// HostID is the source id the host uses in requests sent through the bridge
	HostID uint16 = LocalBus | 0x3e
)

// FullID returns the 16 bit destination id of node on the local bus
func (n NodeID) FullID() uint16 {
	return LocalBus | uint16(n)&0x3f
}

type Kind int

const (
	KindFirewire Kind = iota
	KindEthRaw
	KindEthUdp
)

var kindNames = map[Kind]string{
	KindFirewire: "fw",
	KindEthRaw:   "eth",
	KindEthUdp:   "udp",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind%d", int(k))
}

func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return KindFirewire, fmt.Errorf("unknown port kind %q, must be one of fw, eth, udp", s)
}

// TopologyHandler is called with the new generation after a bus reset.
// It may be called from a transport goroutine and must not block.
type TopologyHandler func(generation uint32)

// Port carries generation tagged quadlet and block transactions to
// nodes on one bus. A transaction tagged with a generation other than
// the current one fails with ErrStaleGeneration. Transactions are not
// retried by the port.
type Port interface {
	Kind() Kind
	Generation() uint32
	NumNodes() (int, error)
	SetTopologyHandler(handler TopologyHandler)

	ReadQuadlet(generation uint32, node NodeID, addr uint64) (uint32, error)
	WriteQuadlet(generation uint32, node NodeID, addr uint64, data uint32) error
	ReadBlock(generation uint32, node NodeID, addr uint64, buf []uint32) error
	WriteBlock(generation uint32, node NodeID, addr uint64, data []uint32) error

	Close() error
}

var (
	ErrNoResponse             = errors.New("no response from bus")
	ErrClosed                 = errors.New("port is closed")
	ErrFirewireUnavailable    = errors.New("native firewire ports are not available in this build, use eth or udp")
	ErrRawEthernetUnavailable = errors.New("raw ethernet ports are only available on linux")
)

// ErrStaleGeneration is returned for a transaction tagged with an
// outdated bus generation
type ErrStaleGeneration struct {
	Have    uint32
	Current uint32
}

func (e ErrStaleGeneration) Error() string {
	return fmt.Sprintf("stale bus generation %d, current is %d", e.Have, e.Current)
}

// ErrBusError is returned when a node answered with an error response
type ErrBusError struct {
	Node  NodeID
	RCode layers.RCode
}

func (e ErrBusError) Error() string {
	return fmt.Sprintf("node %d responded with %s", e.Node, e.RCode)
}

type ErrBlockLength struct {
	Want int
	Got  int
}

func (e ErrBlockLength) Error() string {
	return fmt.Sprintf("block response of %d quadlets, requested %d", e.Got, e.Want)
}

func IsStale(err error) bool {
	var stale ErrStaleGeneration
	return errors.As(err, &stale)
}
