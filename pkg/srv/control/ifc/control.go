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

package ifc

import (
	"context"
	"net/http"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device/amp"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/flash"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/session"
)

type ControlServer interface {
	Run() error
	Close() error

	// Boards returns the ids of the boards in the session
	Boards() []uint8
	Scan() ([]session.NodeInfo, error)

	ReadQuadlet(boardID uint8, addr uint64) (uint32, error)
	WriteQuadlet(boardID uint8, addr uint64, data uint32) error
	// CachedQuadlets returns the last value read or written per address
	CachedQuadlets(boardID uint8) (map[uint64]uint32, error)

	// Snapshot runs a read cycle and returns the decoded state of one board
	Snapshot(boardID uint8) (*amp.Snapshot, error)
	SnapshotAll() ([]*amp.Snapshot, error)
	SetMotorCurrent(boardID uint8, channel int, value uint32) error
	SetPower(boardID uint8, value uint32) error

	DumpFlash(ctx context.Context, boardID uint8, words int) (flash.Stats, error)
	FlashImage(boardID uint8) ([]uint16, []flash.WordState, error)
}

type ApiServer interface {
	Run() error
	Handler() http.Handler
}

// Publisher sends telemetry messages to a broker
type Publisher interface {
	Connect() error
	Publish(topic string, payload []byte) error
	Disconnect()
}
