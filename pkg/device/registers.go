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

package device

import (
	"fmt"
	"strings"
)

const (
	// NumChannels is the number of motor channels on one board
	NumChannels = 7
	// MaxBoards is the number of distinct board ids selectable by the rotary switch
	MaxBoards = 16
	// ReadBufSize is timestamp, status and four quadlets per channel
	ReadBufSize = 2 + 4*NumChannels
	// WriteBufSize is one commanded current per channel
	WriteBufSize = NumChannels
)

// Offsets into the real-time read buffer
const (
	TimestampOffset        = 0
	StatusOffset           = 1
	MotorCurrentOffset     = 2
	AnalogPositionOffset   = 2
	EncoderPositionOffset  = MotorCurrentOffset + NumChannels
	EncoderVelocityOffset  = EncoderPositionOffset + NumChannels
	EncoderFrequencyOffset = EncoderVelocityOffset + NumChannels
)

// Offsets into the real-time write buffer
const (
	WriteCurrentOffset = 0
)

// The motor current and analog position share one quadlet
const (
	MotorCurrentMask     uint32 = 0x0000ffff
	AnalogPositionShift         = 16
	EncoderPositionMask  uint32 = 0x00ffffff
	MotorCurrentMax      uint32 = 0xffff
	MotorCurrentMidScale uint32 = 0x8000
)

// Status quadlet bits
const (
	StatusBoardIDMask     uint32 = 0x0f000000
	StatusBoardIDShift           = 24
	StatusPowerMask       uint32 = 0x000c0000
	StatusAmpStatusMask   uint32 = 0x0000ff00
	StatusAmpEnableMask   uint32 = 0x000000ff
	StatusAmpStatusShift         = 8
)

// Quadlet addresses of board level registers
const (
	BoardStatus     uint64 = 0x0
	HardwareVersion uint64 = 0x4
	FirmwareVersion uint64 = 0x7
)

// Flash readout registers. A command quadlet is opcode<<24 | word offset,
// the status quadlet echoes the low 16 bits of the offset in its upper
// half once the word in its lower half is valid.
const (
	FlashCommand uint64 = 0xa002
	FlashStatus  uint64 = 0xa031
	FlashOpRead  uint8  = 1
)

// Block addresses
const (
	// RealTimeAddr is the board's own real-time buffer
	RealTimeAddr uint64 = 0x0
	// HubAddr returns the real-time buffers of every board on the bus from the hub node
	HubAddr uint64 = 0x1000
	// BroadcastWriteAddr takes the concatenated write buffers of all boards
	BroadcastWriteAddr uint64 = 0xffffff000000
)

// Firmware versions whose real-time buffers match ReadBufSize and WriteBufSize
const (
	MinFirmwareVersion uint32 = 1
	MaxFirmwareVersion uint32 = 7
)

func FirmwareSupported(version uint32) bool {
	return version >= MinFirmwareVersion && version <= MaxFirmwareVersion
}

// BoardIDFromStatus returns the board id carried in the status quadlet
func BoardIDFromStatus(status uint32) uint8 {
	return uint8((status & StatusBoardIDMask) >> StatusBoardIDShift)
}

// ChannelReg is a per-channel device register. The quadlet address of
// a channel register is (channel+1)<<4 | reg.
type ChannelReg uint8

const (
	RegAdcData ChannelReg = iota
	RegDacCtrl
	RegPotCtrl
	RegPotData
	RegEncLoad
	RegEncData
	RegEncVel
	RegEncFrq
	ChannelRegLimit
)

var ChannelRegNames = map[ChannelReg]string{
	RegAdcData: "adc",
	RegDacCtrl: "dac",
	RegPotCtrl: "pot-ctrl",
	RegPotData: "pot-data",
	RegEncLoad: "enc-load",
	RegEncData: "enc-data",
	RegEncVel:  "enc-vel",
	RegEncFrq:  "enc-frq",
}

func (r ChannelReg) Valid() bool {
	return r < ChannelRegLimit
}

func (r ChannelReg) String() string {
	if name, ok := ChannelRegNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reg%d", uint8(r))
}

// ParseChannelReg accepts a register name from ChannelRegNames
func ParseChannelReg(name string) (ChannelReg, error) {
	for reg, n := range ChannelRegNames {
		if strings.EqualFold(n, name) {
			return reg, nil
		}
	}
	return ChannelRegLimit, fmt.Errorf("unknown channel register %q", name)
}

const channelAddrShift = 4

// ChannelAddr is a validated channel register address. The zero value
// is channel 0, RegAdcData.
type ChannelAddr struct {
	channel uint8
	reg     ChannelReg
}

func NewChannelAddr(channel int, reg ChannelReg) (ChannelAddr, error) {
	if channel < 0 || channel >= NumChannels {
		return ChannelAddr{}, ErrChannelRange{Channel: channel}
	}
	if !reg.Valid() {
		return ChannelAddr{}, ErrRegRange{Reg: uint8(reg)}
	}
	return ChannelAddr{channel: uint8(channel), reg: reg}, nil
}

// MustChannelAddr is NewChannelAddr that panics on invalid input
func MustChannelAddr(channel int, reg ChannelReg) ChannelAddr {
	addr, err := NewChannelAddr(channel, reg)
	if err != nil {
		panic(err)
	}
	return addr
}

// DecodeChannelAddr is the inverse of ChannelAddr.Encode. Addresses in
// the board level range (upper nibble 0) and channels past NumChannels
// are rejected.
func DecodeChannelAddr(v uint8) (ChannelAddr, error) {
	hi := int(v >> channelAddrShift)
	if hi == 0 || hi > NumChannels {
		return ChannelAddr{}, ErrChannelRange{Channel: hi - 1}
	}
	return NewChannelAddr(hi-1, ChannelReg(v&0x0f))
}

func (a ChannelAddr) Channel() int {
	return int(a.channel)
}

func (a ChannelAddr) Reg() ChannelReg {
	return a.reg
}

func (a ChannelAddr) Encode() uint8 {
	return (a.channel+1)<<channelAddrShift | uint8(a.reg)
}

// Address returns the quadlet address used on the bus
func (a ChannelAddr) Address() uint64 {
	return uint64(a.Encode())
}

func (a ChannelAddr) String() string {
	return fmt.Sprintf("ch%d/%s(0x%02x)", a.channel, a.reg, a.Encode())
}

// Real-time read buffer indices of per-channel fields

func MotorCurrentIndex(channel int) int {
	return MotorCurrentOffset + channel
}

func EncoderPositionIndex(channel int) int {
	return EncoderPositionOffset + channel
}

func EncoderVelocityIndex(channel int) int {
	return EncoderVelocityOffset + channel
}

func EncoderFrequencyIndex(channel int) int {
	return EncoderFrequencyOffset + channel
}

func WriteCurrentIndex(channel int) int {
	return WriteCurrentOffset + channel
}

// A segment of a hub read or broadcast write is one header quadlet
// followed by a board's buffer.
const (
	segmentCountMask uint32 = 0xffff
	SegmentHeaderSize       = 1
)

func SegmentHeader(boardID uint8, count int) uint32 {
	return uint32(boardID&0x0f)<<StatusBoardIDShift | uint32(count)&segmentCountMask
}

func ParseSegmentHeader(header uint32) (boardID uint8, count int) {
	return uint8(header>>StatusBoardIDShift) & 0x0f, int(header & segmentCountMask)
}
