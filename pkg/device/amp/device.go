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

package amp

import (
	"sync"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device"
	deviceifc "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device/ifc"
)

// Board decodes the real-time read buffer of one motor amplifier board
// and encodes its real-time write buffer. Buffers are allocated once.
// Getters panic with device.ErrChannelRange when the channel index is
// out of range, the same way slice indexing does.
type Board struct {
	id       uint8
	readBuf  [device.ReadBufSize]uint32
	writeBuf [device.WriteBufSize]uint32

	mu    sync.Mutex
	owner deviceifc.QuadletPort
}

var _ deviceifc.Board = &Board{}

func NewBoard(boardID uint8) (*Board, error) {
	if int(boardID) >= device.MaxBoards {
		return nil, device.ErrBoardRange{BoardID: int(boardID)}
	}
	b := &Board{id: boardID}
	for ch := 0; ch < device.NumChannels; ch++ {
		b.writeBuf[device.WriteCurrentIndex(ch)] = device.MotorCurrentMidScale
	}
	return b, nil
}

func (b *Board) BoardID() uint8 {
	return b.id
}

func (b *Board) ReadBuffer() []uint32 {
	return b.readBuf[:]
}

func (b *Board) WriteBuffer() []uint32 {
	return b.writeBuf[:]
}

func (b *Board) Attach(owner deviceifc.QuadletPort) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.owner != nil {
		return device.ErrAlreadyAttached{BoardID: b.id}
	}
	b.owner = owner
	return nil
}

func (b *Board) Detach() {
	b.mu.Lock()
	b.owner = nil
	b.mu.Unlock()
}

func (b *Board) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.owner != nil
}

func checkChannel(channel int) {
	if channel < 0 || channel >= device.NumChannels {
		panic(device.ErrChannelRange{Channel: channel})
	}
}

func (b *Board) GetTimestamp() uint32 {
	return b.readBuf[device.TimestampOffset]
}

func (b *Board) GetStatus() uint32 {
	return b.readBuf[device.StatusOffset]
}

// GetBoardID returns the id the board reports in its status quadlet
func (b *Board) GetBoardID() uint8 {
	return device.BoardIDFromStatus(b.GetStatus())
}

// GetPowerStatus is true when motor power is enabled and the supply voltage is good
func (b *Board) GetPowerStatus() bool {
	return b.GetStatus()&device.StatusPowerMask == device.StatusPowerMask
}

func (b *Board) GetAmpEnable() uint8 {
	return uint8(b.GetStatus() & device.StatusAmpEnableMask)
}

func (b *Board) GetAmpStatus() uint8 {
	return uint8((b.GetStatus() & device.StatusAmpStatusMask) >> device.StatusAmpStatusShift)
}

// GetMotorCurrent returns the measured current, the low half of the channel quadlet
func (b *Board) GetMotorCurrent(channel int) uint16 {
	checkChannel(channel)
	return uint16(b.readBuf[device.MotorCurrentIndex(channel)] & device.MotorCurrentMask)
}

// GetAnalogPosition returns the potentiometer reading, the high half of the channel quadlet
func (b *Board) GetAnalogPosition(channel int) uint16 {
	checkChannel(channel)
	return uint16(b.readBuf[device.MotorCurrentIndex(channel)] >> device.AnalogPositionShift)
}

// GetEncoderPosition returns the wrapping 24 bit encoder count
func (b *Board) GetEncoderPosition(channel int) uint32 {
	checkChannel(channel)
	return b.readBuf[device.EncoderPositionIndex(channel)] & device.EncoderPositionMask
}

// GetEncoderVelocity is negated, the hardware counts in the opposite direction
func (b *Board) GetEncoderVelocity(channel int) int32 {
	checkChannel(channel)
	return -int32(b.readBuf[device.EncoderVelocityIndex(channel)])
}

func (b *Board) GetEncoderFrequency(channel int) int32 {
	checkChannel(channel)
	return -int32(b.readBuf[device.EncoderFrequencyIndex(channel)])
}

// GetCommandedCurrent returns what the next WriteAllBoards sends for channel
func (b *Board) GetCommandedCurrent(channel int) uint16 {
	checkChannel(channel)
	return uint16(b.writeBuf[device.WriteCurrentIndex(channel)])
}

// EncoderDelta returns the signed distance from prev to the current
// encoder position, taking the 24 bit wraparound into account.
func (b *Board) EncoderDelta(channel int, prev uint32) int32 {
	cur := b.GetEncoderPosition(channel)
	d := (cur - prev) & device.EncoderPositionMask
	if d&0x00800000 != 0 {
		return int32(d) - 0x01000000
	}
	return int32(d)
}

// SetMotorCurrent stages a commanded current for the next WriteAllBoards
func (b *Board) SetMotorCurrent(channel int, value uint32) error {
	if channel < 0 || channel >= device.NumChannels {
		return device.ErrChannelRange{Channel: channel}
	}
	if value > device.MotorCurrentMax {
		return device.ErrValueRange{What: "motor current", Value: value, Max: device.MotorCurrentMax}
	}
	b.writeBuf[device.WriteCurrentIndex(channel)] = value
	return nil
}

func (b *Board) port() (deviceifc.QuadletPort, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.owner == nil {
		return nil, device.ErrNotAttached
	}
	return b.owner, nil
}

// SetPowerControl writes the board status register immediately
func (b *Board) SetPowerControl(value uint32) error {
	p, err := b.port()
	if err != nil {
		return err
	}
	return p.WriteQuadlet(b.id, device.BoardStatus, value)
}

// SetEncoderPreload writes the encoder preload register immediately
func (b *Board) SetEncoderPreload(channel int, value uint32) error {
	addr, err := device.NewChannelAddr(channel, device.RegEncLoad)
	if err != nil {
		return err
	}
	p, err := b.port()
	if err != nil {
		return err
	}
	return p.WriteQuadlet(b.id, addr.Address(), value)
}

// GetEncoderPreload reads the encoder preload register back from the board
func (b *Board) GetEncoderPreload(channel int) (uint32, error) {
	addr, err := device.NewChannelAddr(channel, device.RegEncLoad)
	if err != nil {
		return 0, err
	}
	p, err := b.port()
	if err != nil {
		return 0, err
	}
	return p.ReadQuadlet(b.id, addr.Address())
}

func (b *Board) ReadHardwareVersion() (uint32, error) {
	p, err := b.port()
	if err != nil {
		return 0, err
	}
	return p.ReadQuadlet(b.id, device.HardwareVersion)
}

func (b *Board) ReadFirmwareVersion() (uint32, error) {
	p, err := b.port()
	if err != nil {
		return 0, err
	}
	return p.ReadQuadlet(b.id, device.FirmwareVersion)
}
