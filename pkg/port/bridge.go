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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/layers"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/log"
)

const DefaultTimeout = 100 * time.Millisecond

// Conn carries bridge datagrams or frames to the hub board
type Conn interface {
	Send(data []byte) error
	// Recv returns ErrNoResponse when nothing arrives within timeout
	Recv(timeout time.Duration) ([]byte, error)
	Close() error
}

type framer interface {
	encode(br *layers.BridgeLayer, fw *layers.Fw1394Layer) ([]byte, error)
	decode(data []byte) (*layers.BridgeLayer, *layers.Fw1394Layer, error)
}

// bridgeClient runs one transaction at a time through the hub board's
// Ethernet bridge. Responses are matched by sequence number and tlabel,
// anything else that arrives is dropped.
type bridgeClient struct {
	kind    Kind
	conn    Conn
	framer  framer
	timeout time.Duration

	mu     sync.Mutex
	seq    uint8
	tlabel uint8
	closed bool

	generation uint32
	nodeCount  int32

	hmu     sync.Mutex
	handler TopologyHandler
}

func newBridgeClient(kind Kind, conn Conn, f framer, timeout time.Duration) *bridgeClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &bridgeClient{
		kind:    kind,
		conn:    conn,
		framer:  f,
		timeout: timeout,
	}
}

func (c *bridgeClient) Kind() Kind {
	return c.kind
}

func (c *bridgeClient) Generation() uint32 {
	return atomic.LoadUint32(&c.generation)
}

func (c *bridgeClient) SetTopologyHandler(handler TopologyHandler) {
	c.hmu.Lock()
	c.handler = handler
	c.hmu.Unlock()
}

// NumNodes asks the bridge for the current node count and generation
func (c *bridgeClient) NumNodes() (int, error) {
	if _, _, err := c.exchange(c.Generation(), layers.BridgeFlagProbe, nil); err != nil {
		return 0, err
	}
	return int(atomic.LoadInt32(&c.nodeCount)), nil
}

func (c *bridgeClient) observe(br *layers.BridgeLayer) {
	atomic.StoreInt32(&c.nodeCount, int32(br.NodeCount))
	generation := uint32(br.Generation)
	if atomic.SwapUint32(&c.generation, generation) == generation {
		return
	}
	log.Debug("%s bridge reports generation %d, %d nodes", c.kind, generation, br.NodeCount)
	c.hmu.Lock()
	handler := c.handler
	c.hmu.Unlock()
	if handler != nil {
		handler(generation)
	}
}

func (c *bridgeClient) exchange(generation uint32, flags layers.BridgeFlags, fw *layers.Fw1394Layer) (*layers.BridgeLayer, *layers.Fw1394Layer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, ErrClosed
	}

	c.seq++
	br := &layers.BridgeLayer{Flags: flags, Seq: c.seq, Generation: uint16(generation)}
	if fw != nil {
		c.tlabel = (c.tlabel + 1) & 0x3f
		fw.TLabel = c.tlabel
		fw.Src = HostID
	}
	data, err := c.framer.encode(br, fw)
	if err != nil {
		return nil, nil, err
	}
	if err := c.conn.Send(data); err != nil {
		return nil, nil, err
	}

	deadline := time.Now().Add(c.timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil, ErrNoResponse
		}
		raw, err := c.conn.Recv(remaining)
		if err != nil {
			return nil, nil, err
		}
		rbr, rfw, err := c.framer.decode(raw)
		if err != nil {
			log.Debug("Dropping %s response: %s", c.kind, err)
			continue
		}
		if rbr.Seq != br.Seq {
			log.Debug("Dropping late %s response seq %d, waiting for %d", c.kind, rbr.Seq, br.Seq)
			continue
		}
		if fw != nil && (rfw == nil || rfw.TLabel != fw.TLabel) {
			log.Debug("Dropping %s response with mismatched tlabel", c.kind)
			continue
		}
		c.observe(rbr)
		return rbr, rfw, nil
	}
}

func (c *bridgeClient) transaction(generation uint32, node NodeID, fw *layers.Fw1394Layer) (*layers.Fw1394Layer, error) {
	fw.Dst = node.FullID()
	br, resp, err := c.exchange(generation, 0, fw)
	if err != nil {
		return nil, err
	}
	if br.Flags.Has(layers.BridgeFlagStale) {
		return nil, ErrStaleGeneration{Have: generation, Current: uint32(br.Generation)}
	}
	if resp.RCode != layers.RCodeComplete {
		return nil, ErrBusError{Node: node, RCode: resp.RCode}
	}
	if br.Flags.Has(layers.BridgeFlagError) {
		return nil, ErrNoResponse
	}
	if resp.TCode != fw.TCode.Response() {
		return nil, fmt.Errorf("unexpected %s in response to %s", resp.TCode, fw.TCode)
	}
	return resp, nil
}

func (c *bridgeClient) ReadQuadlet(generation uint32, node NodeID, addr uint64) (uint32, error) {
	resp, err := c.transaction(generation, node, &layers.Fw1394Layer{
		TCode:  layers.TCodeReadQuadlet,
		Offset: addr,
	})
	if err != nil {
		return 0, err
	}
	return resp.Quadlet, nil
}

func (c *bridgeClient) WriteQuadlet(generation uint32, node NodeID, addr uint64, data uint32) error {
	_, err := c.transaction(generation, node, &layers.Fw1394Layer{
		TCode:   layers.TCodeWriteQuadlet,
		Offset:  addr,
		Quadlet: data,
	})
	return err
}

func (c *bridgeClient) ReadBlock(generation uint32, node NodeID, addr uint64, buf []uint32) error {
	resp, err := c.transaction(generation, node, &layers.Fw1394Layer{
		TCode:  layers.TCodeReadBlock,
		Offset: addr,
		Length: uint16(4 * len(buf)),
	})
	if err != nil {
		return err
	}
	if len(resp.Data) != len(buf) {
		return ErrBlockLength{Want: len(buf), Got: len(resp.Data)}
	}
	copy(buf, resp.Data)
	return nil
}

func (c *bridgeClient) WriteBlock(generation uint32, node NodeID, addr uint64, data []uint32) error {
	_, err := c.transaction(generation, node, &layers.Fw1394Layer{
		TCode:  layers.TCodeWriteBlock,
		Offset: addr,
		Data:   data,
	})
	return err
}

func (c *bridgeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
