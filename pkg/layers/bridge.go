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

package layers

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func init() {
	layers.EthernetTypeMetadata[EthernetTypeFw1394] = layers.EnumMetadata{
		DecodeWith: gopacket.DecodeFunc(DecodeBridgeLayer),
		Name:       "Fw1394Bridge",
		LayerType:  BridgeLayerType,
	}
}

const (
	// BridgeLayerNum identifies the layer
	BridgeLayerNum = 1993
	// BridgeMagic is the upper half of the first bridge quadlet
	BridgeMagic = 0x1394
	// BridgeHeaderSize is two quadlets
	BridgeHeaderSize = 8
	// EthernetTypeFw1394 is the EtherType of raw Ethernet frames exchanged with the hub board
	EthernetTypeFw1394 layers.EthernetType = 0x0801
	// UdpPort is the port the hub board listens on
	UdpPort = 1394
	// MaxDatagramSize bounds a bridge datagram: header, fw1394 header and max block
	MaxDatagramSize = BridgeHeaderSize + Fw1394HeaderSize + Fw1394MaxBlockSize + 4
)

// BoardMAC is the destination address of frames sent to the hub board
var BoardMAC = net.HardwareAddr{0xfa, 0x61, 0x0e, 0x13, 0x94, 0x00}

type BridgeFlags uint8

const (
	// BridgeFlagProbe asks the bridge only for generation and node count
	BridgeFlagProbe BridgeFlags = 1 << iota
	// BridgeFlagStale marks a response to a request tagged with an old generation
	BridgeFlagStale
	// BridgeFlagError marks a request the bridge could not deliver on the bus
	BridgeFlagError
)

func (f BridgeFlags) Has(flag BridgeFlags) bool {
	return f&flag != 0
}

// BridgeLayer is the header the hub board's Ethernet bridge puts in front
// of each fw1394 packet.
//
//	q0: magic 0x1394 (16) | flags (8) | sequence (8)
//	q1: bus generation (16) | node count (8) | 0 (8)
//
// Requests carry the generation the host believes current, responses
// carry the generation of the bus when the request was handled.
type BridgeLayer struct {
	layers.BaseLayer
	Flags      BridgeFlags
	Seq        uint8
	Generation uint16
	NodeCount  uint8
}

var BridgeLayerType = gopacket.RegisterLayerType(BridgeLayerNum,
	gopacket.LayerTypeMetadata{Name: "BridgeLayerType", Decoder: gopacket.DecodeFunc(DecodeBridgeLayer)})

func (br *BridgeLayer) LayerType() gopacket.LayerType {
	return BridgeLayerType
}

func (br *BridgeLayer) Serialize(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], BridgeMagic<<16|uint32(br.Flags)<<8|uint32(br.Seq))
	binary.BigEndian.PutUint32(buf[4:8], uint32(br.Generation)<<16|uint32(br.NodeCount)<<8)
}

func (br *BridgeLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	bytes, err := b.PrependBytes(BridgeHeaderSize)
	if err != nil {
		return err
	}
	br.Serialize(bytes)
	return nil
}

func (br *BridgeLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < BridgeHeaderSize {
		df.SetTruncated()
		return errors.New("bridge header too short")
	}
	q0 := binary.BigEndian.Uint32(data[0:4])
	if q0>>16 != BridgeMagic {
		return fmt.Errorf("wrong bridge magic 0x%04x. Must be 0x%04x", q0>>16, BridgeMagic)
	}
	q1 := binary.BigEndian.Uint32(data[4:8])
	br.Flags = BridgeFlags(q0 >> 8)
	br.Seq = uint8(q0)
	br.Generation = uint16(q1 >> 16)
	br.NodeCount = uint8(q1 >> 8)
	br.BaseLayer = layers.BaseLayer{
		Contents: data[:BridgeHeaderSize],
		Payload:  data[BridgeHeaderSize:],
	}
	return nil
}

func (br *BridgeLayer) CanDecode() gopacket.LayerClass {
	return BridgeLayerType
}

func (br *BridgeLayer) NextLayerType() gopacket.LayerType {
	if len(br.Payload) == 0 || br.Flags.Has(BridgeFlagProbe) {
		return gopacket.LayerTypeZero
	}
	return Fw1394LayerType
}

func DecodeBridgeLayer(data []byte, p gopacket.PacketBuilder) error {
	br := &BridgeLayer{}
	err := br.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(br)
	next := br.NextLayerType()
	if next == gopacket.LayerTypeZero {
		return nil
	}
	return p.NextDecoder(next)
}
