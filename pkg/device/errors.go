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
	"errors"
	"fmt"
)

var ErrNotAttached = errors.New("board is not attached to a bus session")

type ErrChannelRange struct {
	Channel int
}

func (e ErrChannelRange) Error() string {
	return fmt.Sprintf("channel %d out of range [0, %d)", e.Channel, NumChannels)
}

type ErrRegRange struct {
	Reg uint8
}

func (e ErrRegRange) Error() string {
	return fmt.Sprintf("channel register %d out of range [0, %d)", e.Reg, ChannelRegLimit)
}

type ErrBoardRange struct {
	BoardID int
}

func (e ErrBoardRange) Error() string {
	return fmt.Sprintf("board id %d out of range [0, %d)", e.BoardID, MaxBoards)
}

type ErrValueRange struct {
	What  string
	Value uint32
	Max   uint32
}

func (e ErrValueRange) Error() string {
	return fmt.Sprintf("%s 0x%x exceeds 0x%x", e.What, e.Value, e.Max)
}

type ErrAlreadyAttached struct {
	BoardID uint8
}

func (e ErrAlreadyAttached) Error() string {
	return fmt.Sprintf("board %d is already attached to a bus session", e.BoardID)
}

// ErrLayoutMismatch means a board's buffers do not have the layout this
// package decodes. Buffers are never interpreted when it is returned.
type ErrLayoutMismatch struct {
	BoardID uint8
	What    string
	Want    uint32
	Got     uint32
}

func (e ErrLayoutMismatch) Error() string {
	return fmt.Sprintf("board %d layout mismatch: %s is %d, expected %d", e.BoardID, e.What, e.Got, e.Want)
}
