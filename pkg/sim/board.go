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
	"sync"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/layers"
)

// HardwareQLA1 is the hardware version quadlet of a QLA1 board ("QLA1")
const HardwareQLA1 uint32 = 0x514c4131

// Board simulates the register file, real-time buffers and flash
// readout logic of one motor amplifier board.
type Board struct {
	mu        sync.Mutex
	id        uint8
	firmware  uint32
	hardware  uint32
	status    uint32
	timestamp uint32
	readWords int

	dac       [device.NumChannels]uint32
	pot       [device.NumChannels]uint32
	encoder   [device.NumChannels]uint32
	preload   [device.NumChannels]uint32
	velocity  [device.NumChannels]uint32
	frequency [device.NumChannels]uint32

	flash          []uint16
	flashStatus    uint32
	flashOffset    uint32
	flashPending   bool
	flashPollsLeft int
	echoAfter      int
	dropCommands   int
	flashPolls     int
	flashCommands  int
}

func NewBoard(id uint8) *Board {
	b := &Board{
		id:          id,
		firmware:    device.MaxFirmwareVersion,
		hardware:    HardwareQLA1,
		readWords:   device.ReadBufSize,
		echoAfter:   1,
		flashStatus: 0xffff0000,
	}
	for ch := 0; ch < device.NumChannels; ch++ {
		b.dac[ch] = device.MotorCurrentMidScale
		b.pot[ch] = device.MotorCurrentMidScale
	}
	return b
}

func (b *Board) ID() uint8 {
	return b.id
}

func (b *Board) SetFirmwareVersion(version uint32) {
	b.mu.Lock()
	b.firmware = version
	b.mu.Unlock()
}

// SetReadWords changes the length of the real-time buffer the board reports
func (b *Board) SetReadWords(n int) {
	b.mu.Lock()
	b.readWords = n
	b.mu.Unlock()
}

func (b *Board) SetAnalogPosition(channel int, value uint16) {
	b.mu.Lock()
	b.pot[channel] = uint32(value)
	b.mu.Unlock()
}

func (b *Board) SetEncoderVelocity(channel int, raw uint32) {
	b.mu.Lock()
	b.velocity[channel] = raw
	b.mu.Unlock()
}

func (b *Board) SetEncoderFrequency(channel int, raw uint32) {
	b.mu.Lock()
	b.frequency[channel] = raw
	b.mu.Unlock()
}

// MotorCurrent returns the current last commanded on channel
func (b *Board) MotorCurrent(channel int) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dac[channel]
}

func (b *Board) Status() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusLocked()
}

// SetFlash loads the flash image. Words past its end read as erased.
func (b *Board) SetFlash(words []uint16) {
	b.mu.Lock()
	b.flash = words
	b.mu.Unlock()
}

// SetFlashEchoAfter makes the status register echo a command on the
// k-th poll after it. A negative k never echoes.
func (b *Board) SetFlashEchoAfter(k int) {
	b.mu.Lock()
	b.echoAfter = k
	b.mu.Unlock()
}

// DropFlashCommands makes the board ignore the next n flash commands
func (b *Board) DropFlashCommands(n int) {
	b.mu.Lock()
	b.dropCommands = n
	b.mu.Unlock()
}

func (b *Board) FlashPolls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flashPolls
}

func (b *Board) FlashCommands() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flashCommands
}

func (b *Board) statusLocked() uint32 {
	return b.status&^device.StatusBoardIDMask | uint32(b.id)<<device.StatusBoardIDShift
}

func (b *Board) flashWord(offset uint32) uint16 {
	if int(offset) < len(b.flash) {
		return b.flash[offset]
	}
	return 0xffff
}

func (b *Board) flashCommand(cmd uint32) {
	b.flashCommands++
	if b.dropCommands > 0 {
		b.dropCommands--
		return
	}
	if uint8(cmd>>24) != device.FlashOpRead {
		return
	}
	b.flashOffset = cmd & 0xffffff
	b.flashPending = true
	b.flashPollsLeft = b.echoAfter
}

func (b *Board) pollFlash() uint32 {
	b.flashPolls++
	if b.flashPending && b.flashPollsLeft >= 0 {
		b.flashPollsLeft--
		if b.flashPollsLeft <= 0 {
			b.flashPending = false
			b.flashStatus = (b.flashOffset&0xffff)<<16 | uint32(b.flashWord(b.flashOffset))
		}
	}
	return b.flashStatus
}

func (b *Board) readQuadlet(addr uint64) (uint32, layers.RCode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch addr {
	case device.BoardStatus:
		return b.statusLocked(), layers.RCodeComplete
	case device.HardwareVersion:
		return b.hardware, layers.RCodeComplete
	case device.FirmwareVersion:
		return b.firmware, layers.RCodeComplete
	case device.FlashStatus:
		return b.pollFlash(), layers.RCodeComplete
	}
	if addr > 0xff {
		return 0, layers.RCodeAddressError
	}
	ca, err := device.DecodeChannelAddr(uint8(addr))
	if err != nil {
		return 0, layers.RCodeAddressError
	}
	ch := ca.Channel()
	switch ca.Reg() {
	case device.RegAdcData:
		return b.pot[ch]<<device.AnalogPositionShift | b.dac[ch]&device.MotorCurrentMask, layers.RCodeComplete
	case device.RegDacCtrl:
		return b.dac[ch], layers.RCodeComplete
	case device.RegPotData:
		return b.pot[ch], layers.RCodeComplete
	case device.RegEncLoad:
		return b.preload[ch], layers.RCodeComplete
	case device.RegEncData:
		return b.encoder[ch], layers.RCodeComplete
	case device.RegEncVel:
		return b.velocity[ch], layers.RCodeComplete
	case device.RegEncFrq:
		return b.frequency[ch], layers.RCodeComplete
	}
	return 0, layers.RCodeComplete
}

func (b *Board) writeQuadlet(addr uint64, data uint32) layers.RCode {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch addr {
	case device.BoardStatus:
		control := device.StatusPowerMask | device.StatusAmpEnableMask
		b.status = b.status&^control | data&control
		// amplifiers report ok only while motor power is on
		b.status &^= device.StatusAmpStatusMask
		if b.status&device.StatusPowerMask == device.StatusPowerMask {
			b.status |= (b.status & device.StatusAmpEnableMask) << device.StatusAmpStatusShift
		}
		return layers.RCodeComplete
	case device.FlashCommand:
		b.flashCommand(data)
		return layers.RCodeComplete
	}
	if addr > 0xff {
		return layers.RCodeAddressError
	}
	ca, err := device.DecodeChannelAddr(uint8(addr))
	if err != nil {
		return layers.RCodeAddressError
	}
	ch := ca.Channel()
	switch ca.Reg() {
	case device.RegDacCtrl:
		b.dac[ch] = data & device.MotorCurrentMask
	case device.RegEncLoad:
		b.preload[ch] = data
		b.encoder[ch] = data & device.EncoderPositionMask
	case device.RegPotCtrl:
	default:
		return layers.RCodeTypeError
	}
	return layers.RCodeComplete
}

// realTime returns the real-time read buffer, readWords long
func (b *Board) realTime() []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timestamp++
	buf := make([]uint32, device.ReadBufSize)
	buf[device.TimestampOffset] = b.timestamp
	buf[device.StatusOffset] = b.statusLocked()
	for ch := 0; ch < device.NumChannels; ch++ {
		buf[device.MotorCurrentIndex(ch)] = b.pot[ch]<<device.AnalogPositionShift | b.dac[ch]&device.MotorCurrentMask
		buf[device.EncoderPositionIndex(ch)] = b.encoder[ch]
		buf[device.EncoderVelocityIndex(ch)] = b.velocity[ch]
		buf[device.EncoderFrequencyIndex(ch)] = b.frequency[ch]
	}
	if b.readWords != len(buf) {
		resized := make([]uint32, b.readWords)
		copy(resized, buf)
		return resized
	}
	return buf
}

func (b *Board) writeRealTime(data []uint32) layers.RCode {
	if len(data) != device.WriteBufSize {
		return layers.RCodeDataError
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := 0; ch < device.NumChannels; ch++ {
		b.dac[ch] = data[device.WriteCurrentIndex(ch)] & device.MotorCurrentMask
	}
	return layers.RCodeComplete
}
