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
	"hash/crc32"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// Fw1394LayerNum identifies the layer
	Fw1394LayerNum = 1994
	// Fw1394HeaderSize is four header quadlets followed by the header CRC quadlet
	Fw1394HeaderSize = 20
	// Fw1394MaxBlockSize is the largest block payload in bytes
	Fw1394MaxBlockSize = 2048
)

// TCode is the IEEE-1394 transaction code
type TCode uint8

const (
	TCodeWriteQuadlet        TCode = 0x0
	TCodeWriteBlock          TCode = 0x1
	TCodeWriteResponse       TCode = 0x2
	TCodeReadQuadlet         TCode = 0x4
	TCodeReadBlock           TCode = 0x5
	TCodeReadQuadletResponse TCode = 0x6
	TCodeReadBlockResponse   TCode = 0x7
)

var tcodeNames = map[TCode]string{
	TCodeWriteQuadlet:        "WriteQuadlet",
	TCodeWriteBlock:          "WriteBlock",
	TCodeWriteResponse:       "WriteResponse",
	TCodeReadQuadlet:         "ReadQuadlet",
	TCodeReadBlock:           "ReadBlock",
	TCodeReadQuadletResponse: "ReadQuadletResponse",
	TCodeReadBlockResponse:   "ReadBlockResponse",
}

func (t TCode) String() string {
	if name, ok := tcodeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TCode(%d)", uint8(t))
}

func (t TCode) Valid() bool {
	_, ok := tcodeNames[t]
	return ok
}

// IsResponse is true for the three response tcodes
func (t TCode) IsResponse() bool {
	return t == TCodeWriteResponse || t == TCodeReadQuadletResponse || t == TCodeReadBlockResponse
}

// HasBlock is true when the packet carries a data block after the header
func (t TCode) HasBlock() bool {
	return t == TCodeWriteBlock || t == TCodeReadBlockResponse
}

// Response returns the tcode the responder answers a request with
func (t TCode) Response() TCode {
	switch t {
	case TCodeWriteQuadlet, TCodeWriteBlock:
		return TCodeWriteResponse
	case TCodeReadQuadlet:
		return TCodeReadQuadletResponse
	case TCodeReadBlock:
		return TCodeReadBlockResponse
	}
	return t
}

// RCode is the response code of a response packet
type RCode uint8

const (
	RCodeComplete      RCode = 0x0
	RCodeConflictError RCode = 0x4
	RCodeDataError     RCode = 0x5
	RCodeTypeError     RCode = 0x6
	RCodeAddressError  RCode = 0x7
)

func (r RCode) String() string {
	switch r {
	case RCodeComplete:
		return "complete"
	case RCodeConflictError:
		return "conflict error"
	case RCodeDataError:
		return "data error"
	case RCodeTypeError:
		return "type error"
	case RCodeAddressError:
		return "address error"
	}
	return fmt.Sprintf("rcode %d", uint8(r))
}

// Fw1394Layer is an asynchronous IEEE-1394 packet as it is carried
// by the Ethernet bridge of the hub board. All quadlets are big endian.
//
//	q0: destination id (16) | tlabel (6) | retry (2) | tcode (4) | priority (4)
//	q1: source id (16) | offset high (16)   for requests
//	    source id (16) | rcode (4) | 0 (12) for responses
//	q2: offset low (32) for requests, 0 for responses
//	q3: quadlet data, or data length (16) | 0 (16) for block tcodes
//	q4: CRC32 of q0..q3
//
// Block tcodes that carry data are followed by the data quadlets and
// a CRC32 of the data.
type Fw1394Layer struct {
	layers.BaseLayer
	Dst     uint16
	TLabel  uint8
	TCode   TCode
	Src     uint16
	RCode   RCode
	Offset  uint64
	Quadlet uint32
	Length  uint16 // block length in bytes
	Data    []uint32
}

var Fw1394LayerType = gopacket.RegisterLayerType(Fw1394LayerNum,
	gopacket.LayerTypeMetadata{Name: "Fw1394LayerType", Decoder: gopacket.DecodeFunc(DecodeFw1394Layer)})

// ErrFw1394CRC is returned when the header or data CRC does not match
type ErrFw1394CRC struct {
	Part string
	Want uint32
	Got  uint32
}

func (e ErrFw1394CRC) Error() string {
	return fmt.Sprintf("fw1394 %s crc mismatch: want 0x%08x, got 0x%08x", e.Part, e.Want, e.Got)
}

func (fw *Fw1394Layer) LayerType() gopacket.LayerType {
	return Fw1394LayerType
}

// Len returns the serialized size of the packet in bytes
func (fw *Fw1394Layer) Len() int {
	if fw.TCode.HasBlock() {
		return Fw1394HeaderSize + 4*len(fw.Data) + 4
	}
	return Fw1394HeaderSize
}

// Serialize writes the packet into buf which must be at least Len() bytes
func (fw *Fw1394Layer) Serialize(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4],
		uint32(fw.Dst)<<16|uint32(fw.TLabel&0x3f)<<10|1<<8|uint32(fw.TCode&0xf)<<4)
	if fw.TCode.IsResponse() {
		binary.BigEndian.PutUint32(buf[4:8], uint32(fw.Src)<<16|uint32(fw.RCode&0xf)<<12)
		binary.BigEndian.PutUint32(buf[8:12], 0)
	} else {
		binary.BigEndian.PutUint32(buf[4:8], uint32(fw.Src)<<16|uint32(fw.Offset>>32)&0xffff)
		binary.BigEndian.PutUint32(buf[8:12], uint32(fw.Offset))
	}
	switch {
	case fw.TCode == TCodeWriteQuadlet || fw.TCode == TCodeReadQuadletResponse:
		binary.BigEndian.PutUint32(buf[12:16], fw.Quadlet)
	case fw.TCode.HasBlock():
		binary.BigEndian.PutUint32(buf[12:16], uint32(4*len(fw.Data))<<16)
	case fw.TCode == TCodeReadBlock:
		binary.BigEndian.PutUint32(buf[12:16], uint32(fw.Length)<<16)
	default:
		binary.BigEndian.PutUint32(buf[12:16], 0)
	}
	binary.BigEndian.PutUint32(buf[16:20], crc32.ChecksumIEEE(buf[0:16]))
	if !fw.TCode.HasBlock() {
		return
	}
	data := buf[Fw1394HeaderSize:]
	for i, q := range fw.Data {
		binary.BigEndian.PutUint32(data[4*i:4*i+4], q)
	}
	n := 4 * len(fw.Data)
	binary.BigEndian.PutUint32(data[n:n+4], crc32.ChecksumIEEE(data[:n]))
}

// SerializeTo serializes the packet into bytes and writes the bytes to the SerializeBuffer
func (fw *Fw1394Layer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	if fw.TCode.HasBlock() && 4*len(fw.Data) > Fw1394MaxBlockSize {
		return fmt.Errorf("fw1394 block of %d bytes exceeds %d", 4*len(fw.Data), Fw1394MaxBlockSize)
	}
	bytes, err := b.PrependBytes(fw.Len())
	if err != nil {
		return err
	}
	fw.Serialize(bytes)
	return nil
}

// DecodeFromBytes attempts to decode the byte slice as an asynchronous packet.
// Trailing bytes past the packet are ignored, Ethernet pads short frames.
func (fw *Fw1394Layer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < Fw1394HeaderSize {
		df.SetTruncated()
		return errors.New("fw1394 packet too short")
	}
	if want, got := binary.BigEndian.Uint32(data[16:20]), crc32.ChecksumIEEE(data[0:16]); want != got {
		return ErrFw1394CRC{Part: "header", Want: want, Got: got}
	}

	q0 := binary.BigEndian.Uint32(data[0:4])
	q1 := binary.BigEndian.Uint32(data[4:8])
	q2 := binary.BigEndian.Uint32(data[8:12])
	q3 := binary.BigEndian.Uint32(data[12:16])

	fw.Dst = uint16(q0 >> 16)
	fw.TLabel = uint8(q0>>10) & 0x3f
	fw.TCode = TCode(q0>>4) & 0xf
	if !fw.TCode.Valid() {
		return fmt.Errorf("unsupported fw1394 tcode %d", uint8(fw.TCode))
	}
	fw.Src = uint16(q1 >> 16)
	fw.Quadlet = 0
	fw.Length = 0
	fw.Data = nil
	fw.RCode = RCodeComplete
	fw.Offset = 0
	if fw.TCode.IsResponse() {
		fw.RCode = RCode(q1>>12) & 0xf
	} else {
		fw.Offset = uint64(q1&0xffff)<<32 | uint64(q2)
	}

	size := Fw1394HeaderSize
	switch {
	case fw.TCode == TCodeWriteQuadlet || fw.TCode == TCodeReadQuadletResponse:
		fw.Quadlet = q3
	case fw.TCode == TCodeReadBlock:
		fw.Length = uint16(q3 >> 16)
	case fw.TCode.HasBlock():
		fw.Length = uint16(q3 >> 16)
		if fw.Length%4 != 0 {
			return fmt.Errorf("fw1394 block length %d is not a multiple of 4", fw.Length)
		}
		size += int(fw.Length) + 4
		if len(data) < size {
			df.SetTruncated()
			return fmt.Errorf("fw1394 block truncated: need %d bytes, have %d", size, len(data))
		}
		block := data[Fw1394HeaderSize : Fw1394HeaderSize+int(fw.Length)]
		if want, got := binary.BigEndian.Uint32(data[size-4:size]), crc32.ChecksumIEEE(block); want != got {
			return ErrFw1394CRC{Part: "data", Want: want, Got: got}
		}
		fw.Data = make([]uint32, len(block)/4)
		for i := range fw.Data {
			fw.Data[i] = binary.BigEndian.Uint32(block[4*i : 4*i+4])
		}
	}

	fw.BaseLayer = layers.BaseLayer{
		Contents: data[:size],
		Payload:  []byte{},
	}
	return nil
}

func (fw *Fw1394Layer) CanDecode() gopacket.LayerClass {
	return Fw1394LayerType
}

func (fw *Fw1394Layer) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

func DecodeFw1394Layer(data []byte, p gopacket.PacketBuilder) error {
	fw := &Fw1394Layer{}
	err := fw.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}
	p.AddLayer(fw)
	return nil
}
