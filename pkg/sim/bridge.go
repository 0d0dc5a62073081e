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

package sim

import (
	"context"
	"errors"
	"net"
	"sync"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/layers"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/log"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/port"
)

// HubMAC is the source address of frames sent by the simulated hub board
var HubMAC = net.HardwareAddr{0xfa, 0x61, 0x0e, 0x13, 0x94, 0x01}

// Bridge is the Ethernet bridge of a simulated hub board. It answers
// bridge datagrams and raw frames by running the carried transaction
// on the bus.
type Bridge struct {
	bus *Bus

	mu       sync.Mutex
	dropNext int
}

func NewBridge(bus *Bus) *Bridge {
	return &Bridge{bus: bus}
}

// DropNext makes the bridge silently drop the next n requests
func (br *Bridge) DropNext(n int) {
	br.mu.Lock()
	br.dropNext = n
	br.mu.Unlock()
}

func (br *Bridge) drop() bool {
	br.mu.Lock()
	defer br.mu.Unlock()
	if br.dropNext > 0 {
		br.dropNext--
		return true
	}
	return false
}

// ErrDropped is returned for requests dropped on purpose
var ErrDropped = errors.New("request dropped")

func (br *Bridge) HandleDatagram(data []byte) ([]byte, error) {
	req, fw, err := layers.DecodeBridged(data)
	if err != nil {
		return nil, err
	}
	if br.drop() {
		return nil, ErrDropped
	}
	resp, rfw := br.handle(req, fw)
	return layers.SerializeBridged(resp, rfw)
}

func (br *Bridge) HandleFrame(frame []byte) ([]byte, error) {
	eth, req, fw, err := layers.DecodeFrame(frame)
	if err != nil {
		return nil, err
	}
	if br.drop() {
		return nil, ErrDropped
	}
	resp, rfw := br.handle(req, fw)
	return layers.SerializeFrame(HubMAC, eth.SrcMAC, resp, rfw)
}

func (br *Bridge) generation(tagged uint16) uint32 {
	current := br.bus.Generation()
	if uint16(current) == tagged {
		return current
	}
	return uint32(tagged)
}

func (br *Bridge) handle(req *layers.BridgeLayer, fw *layers.Fw1394Layer) (*layers.BridgeLayer, *layers.Fw1394Layer) {
	resp := &layers.BridgeLayer{Seq: req.Seq}
	defer func() {
		resp.Generation = uint16(br.bus.Generation())
		resp.NodeCount = uint8(br.bus.NodeCount())
	}()
	if req.Flags.Has(layers.BridgeFlagProbe) || fw == nil {
		resp.Flags = layers.BridgeFlagProbe
		return resp, nil
	}

	rfw := &layers.Fw1394Layer{
		Dst:    fw.Src,
		TLabel: fw.TLabel,
		TCode:  fw.TCode.Response(),
		Src:    fw.Dst,
		RCode:  layers.RCodeComplete,
	}
	generation := br.generation(req.Generation)
	node := port.NodeID(fw.Dst & 0x3f)

	var err error
	switch fw.TCode {
	case layers.TCodeReadQuadlet:
		rfw.Quadlet, err = br.bus.ReadQuadlet(generation, node, fw.Offset)
	case layers.TCodeWriteQuadlet:
		err = br.bus.WriteQuadlet(generation, node, fw.Offset, fw.Quadlet)
	case layers.TCodeReadBlock:
		buf := make([]uint32, fw.Length/4)
		if err = br.bus.ReadBlock(generation, node, fw.Offset, buf); err == nil {
			rfw.Data = buf
		}
	case layers.TCodeWriteBlock:
		err = br.bus.WriteBlock(generation, node, fw.Offset, fw.Data)
	default:
		rfw.TCode = layers.TCodeWriteResponse
		rfw.RCode = layers.RCodeTypeError
	}

	var busErr port.ErrBusError
	switch {
	case err == nil:
	case port.IsStale(err):
		resp.Flags |= layers.BridgeFlagStale
	case errors.As(err, &busErr):
		rfw.RCode = busErr.RCode
	default:
		resp.Flags |= layers.BridgeFlagError
	}
	return resp, rfw
}

// ServeUDP answers bridge datagrams on conn until ctx is done
func (br *Bridge) ServeUDP(ctx context.Context, conn net.PacketConn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	buf := make([]byte, layers.MaxDatagramSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		resp, err := br.HandleDatagram(buf[:n])
		if err != nil {
			log.Debug("Not answering datagram from %s: %s", addr, err)
			continue
		}
		if _, err := conn.WriteTo(resp, addr); err != nil {
			log.Warning("Error while answering %s: %s", addr, err)
		}
	}
}
