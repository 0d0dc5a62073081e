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
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device"
)

type ChannelSnapshot struct {
	Channel          int    `json:"channel"`
	MotorCurrent     uint16 `json:"motorCurrent"`
	AnalogPosition   uint16 `json:"analogPosition"`
	EncoderPosition  uint32 `json:"encoderPosition"`
	EncoderVelocity  int32  `json:"encoderVelocity"`
	EncoderFrequency int32  `json:"encoderFrequency"`
	CommandedCurrent uint16 `json:"commandedCurrent"`
}

// Snapshot is the decoded state of a board after the last ReadAllBoards
type Snapshot struct {
	BoardID     uint8             `json:"boardId"`
	Timestamp   uint32            `json:"timestamp"`
	Status      uint32            `json:"status"`
	PowerStatus bool              `json:"powerStatus"`
	AmpEnable   uint8             `json:"ampEnable"`
	Channels    []ChannelSnapshot `json:"channels"`
}

func (b *Board) Snapshot() *Snapshot {
	s := &Snapshot{
		BoardID:     b.id,
		Timestamp:   b.GetTimestamp(),
		Status:      b.GetStatus(),
		PowerStatus: b.GetPowerStatus(),
		AmpEnable:   b.GetAmpEnable(),
		Channels:    make([]ChannelSnapshot, device.NumChannels),
	}
	for ch := range s.Channels {
		s.Channels[ch] = ChannelSnapshot{
			Channel:          ch,
			MotorCurrent:     b.GetMotorCurrent(ch),
			AnalogPosition:   b.GetAnalogPosition(ch),
			EncoderPosition:  b.GetEncoderPosition(ch),
			EncoderVelocity:  b.GetEncoderVelocity(ch),
			EncoderFrequency: b.GetEncoderFrequency(ch),
			CommandedCurrent: b.GetCommandedCurrent(ch),
		}
	}
	return s
}
