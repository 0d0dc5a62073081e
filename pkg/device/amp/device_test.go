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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device"
)

type quadletRecorder struct {
	writes map[uint64]uint32
}

func (q *quadletRecorder) ReadQuadlet(boardID uint8, addr uint64) (uint32, error) {
	return q.writes[addr], nil
}

func (q *quadletRecorder) WriteQuadlet(boardID uint8, addr uint64, data uint32) error {
	q.writes[addr] = data
	return nil
}

func TestNewBoardRejectsBadID(t *testing.T) {
	_, err := NewBoard(device.MaxBoards)
	var rangeErr device.ErrBoardRange
	require.True(t, errors.As(err, &rangeErr))
}

func TestReadBufferAccessors(t *testing.T) {
	b, err := NewBoard(2)
	require.NoError(t, err)
	buf := b.ReadBuffer()
	require.Len(t, buf, device.ReadBufSize)

	buf[device.TimestampOffset] = 1234
	buf[device.StatusOffset] = 0x020c0f03
	buf[device.MotorCurrentIndex(4)] = 0x12348500
	buf[device.EncoderPositionIndex(4)] = 0xff002000
	buf[device.EncoderVelocityIndex(4)] = 5
	buf[device.EncoderFrequencyIndex(4)] = 0xfffffffd

	assert.Equal(t, uint32(1234), b.GetTimestamp())
	assert.Equal(t, uint8(2), b.GetBoardID())
	assert.True(t, b.GetPowerStatus())
	assert.Equal(t, uint8(0x03), b.GetAmpEnable())
	assert.Equal(t, uint8(0x0f), b.GetAmpStatus())
	assert.Equal(t, uint16(0x8500), b.GetMotorCurrent(4))
	assert.Equal(t, uint16(0x1234), b.GetAnalogPosition(4))
	assert.Equal(t, uint32(0x002000), b.GetEncoderPosition(4))
	assert.Equal(t, int32(-5), b.GetEncoderVelocity(4))
	assert.Equal(t, int32(3), b.GetEncoderFrequency(4))
}

func TestEncoderDecodeIsPure(t *testing.T) {
	b, err := NewBoard(1)
	require.NoError(t, err)
	buf := b.ReadBuffer()
	for ch := 0; ch < device.NumChannels; ch++ {
		buf[device.EncoderPositionIndex(ch)] = 0xab000000 | uint32(ch)*0x10101
		buf[device.EncoderVelocityIndex(ch)] = 0xfffffff0 + uint32(ch)
		buf[device.EncoderFrequencyIndex(ch)] = uint32(ch) * 3
	}
	raw := append([]uint32(nil), buf...)

	for ch := 0; ch < device.NumChannels; ch++ {
		first := []interface{}{b.GetEncoderPosition(ch), b.GetEncoderVelocity(ch), b.GetEncoderFrequency(ch)}
		second := []interface{}{b.GetEncoderPosition(ch), b.GetEncoderVelocity(ch), b.GetEncoderFrequency(ch)}
		assert.Equal(t, first, second, "channel %d", ch)
		assert.Equal(t, uint32(ch)*0x10101, b.GetEncoderPosition(ch))
	}
	assert.Equal(t, raw, b.ReadBuffer())
}

func TestGettersPanicOnBadChannel(t *testing.T) {
	b, err := NewBoard(0)
	require.NoError(t, err)
	assert.PanicsWithValue(t, device.ErrChannelRange{Channel: device.NumChannels}, func() {
		b.GetMotorCurrent(device.NumChannels)
	})
	assert.Panics(t, func() { b.GetEncoderPosition(-1) })
}

func TestSetMotorCurrent(t *testing.T) {
	b, err := NewBoard(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x8000), b.GetCommandedCurrent(2))

	require.NoError(t, b.SetMotorCurrent(2, 0x8500))
	assert.Equal(t, uint32(0x8500), b.WriteBuffer()[device.WriteCurrentIndex(2)])

	err = b.SetMotorCurrent(2, 0x10000)
	var valErr device.ErrValueRange
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, uint32(0x8500), b.WriteBuffer()[2])

	err = b.SetMotorCurrent(7, 0)
	var chErr device.ErrChannelRange
	require.True(t, errors.As(err, &chErr))
}

func TestImmediateWritesNeedSession(t *testing.T) {
	b, err := NewBoard(1)
	require.NoError(t, err)
	assert.ErrorIs(t, b.SetPowerControl(0x000c0000), device.ErrNotAttached)
	assert.ErrorIs(t, b.SetEncoderPreload(0, 1), device.ErrNotAttached)

	rec := &quadletRecorder{writes: map[uint64]uint32{}}
	require.NoError(t, b.Attach(rec))
	var attachErr device.ErrAlreadyAttached
	require.True(t, errors.As(b.Attach(rec), &attachErr))

	require.NoError(t, b.SetEncoderPreload(3, 0x2000))
	assert.Equal(t, uint32(0x2000), rec.writes[0x44])
	v, err := b.GetEncoderPreload(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x2000), v)

	require.NoError(t, b.SetPowerControl(0x000c0000))
	assert.Equal(t, uint32(0x000c0000), rec.writes[device.BoardStatus])

	b.Detach()
	assert.False(t, b.Attached())
	assert.ErrorIs(t, b.SetPowerControl(0), device.ErrNotAttached)
}

func TestEncoderDeltaWraps(t *testing.T) {
	b, err := NewBoard(0)
	require.NoError(t, err)
	b.ReadBuffer()[device.EncoderPositionIndex(0)] = 0x000002
	assert.Equal(t, int32(4), b.EncoderDelta(0, 0xfffffe))
	assert.Equal(t, int32(-2), b.EncoderDelta(0, 0x000004))
}

func TestSnapshot(t *testing.T) {
	b, err := NewBoard(3)
	require.NoError(t, err)
	b.ReadBuffer()[device.MotorCurrentIndex(1)] = 0x00018123
	s := b.Snapshot()
	assert.Equal(t, uint8(3), s.BoardID)
	require.Len(t, s.Channels, device.NumChannels)
	assert.Equal(t, uint16(0x8123), s.Channels[1].MotorCurrent)
	assert.Equal(t, uint16(1), s.Channels[1].AnalogPosition)
	assert.Equal(t, uint16(0x8000), s.Channels[1].CommandedCurrent)
}
