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
	"errors"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var serializeOptions = gopacket.SerializeOptions{}

// SerializeBridged serializes a bridge header followed by fw (which may be nil for probes)
func SerializeBridged(br *BridgeLayer, fw *Fw1394Layer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	var err error
	if fw == nil {
		err = gopacket.SerializeLayers(buf, serializeOptions, br)
	} else {
		err = gopacket.SerializeLayers(buf, serializeOptions, br, fw)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SerializeFrame wraps a bridged packet into an Ethernet frame
func SerializeFrame(src, dst net.HardwareAddr, br *BridgeLayer, fw *Fw1394Layer) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       dst,
		EthernetType: EthernetTypeFw1394,
	}
	buf := gopacket.NewSerializeBuffer()
	var err error
	if fw == nil {
		err = gopacket.SerializeLayers(buf, serializeOptions, eth, br)
	} else {
		err = gopacket.SerializeLayers(buf, serializeOptions, eth, br, fw)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBridged decodes a bridge datagram. fw is nil for probe responses.
func DecodeBridged(data []byte) (*BridgeLayer, *Fw1394Layer, error) {
	return decodePacket(gopacket.NewPacket(data, BridgeLayerType, gopacket.Default))
}

// DecodeFrame decodes an Ethernet frame carrying a bridge datagram
func DecodeFrame(data []byte) (*layers.Ethernet, *BridgeLayer, *Fw1394Layer, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return nil, nil, nil, errors.New("not an ethernet frame")
	}
	eth := ethLayer.(*layers.Ethernet)
	if eth.EthernetType != EthernetTypeFw1394 {
		return eth, nil, nil, ErrNotFw1394{EthernetType: eth.EthernetType}
	}
	br, fw, err := decodePacket(packet)
	return eth, br, fw, err
}

// ErrNotFw1394 is returned for frames of other protocols seen on the interface
type ErrNotFw1394 struct {
	EthernetType layers.EthernetType
}

func (e ErrNotFw1394) Error() string {
	return "ethernet frame of type " + e.EthernetType.String() + " is not a fw1394 bridge frame"
}

func decodePacket(packet gopacket.Packet) (*BridgeLayer, *Fw1394Layer, error) {
	if errLayer := packet.ErrorLayer(); errLayer != nil {
		return nil, nil, errLayer.Error()
	}
	brLayer := packet.Layer(BridgeLayerType)
	if brLayer == nil {
		return nil, nil, errors.New("bridge header missing")
	}
	br := brLayer.(*BridgeLayer)
	fwLayer := packet.Layer(Fw1394LayerType)
	if fwLayer == nil {
		if !br.Flags.Has(BridgeFlagProbe) {
			return br, nil, errors.New("fw1394 packet missing")
		}
		return br, nil, nil
	}
	return br, fwLayer.(*Fw1394Layer), nil
}
