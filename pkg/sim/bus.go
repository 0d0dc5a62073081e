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
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/port"
)

// Bus simulates a firewire bus of boards. Node ids are positions in
// the board list, every reset rotates the list so that node ids change
// the way they can after a real bus reset.
type Bus struct {
	mu           sync.Mutex
	boards       []*Board
	generation   uint32
	handler      func(generation uint32)
	resetBefore  int
	transactions int
}

var _ port.Bus = &Bus{}

func NewBus(boards ...*Board) *Bus {
	return &Bus{
		boards:     boards,
		generation: 1,
	}
}

func (b *Bus) Generation() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

func (b *Bus) NodeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.boards)
}

func (b *Bus) SetResetHandler(handler func(generation uint32)) {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()
}

// Transactions is the number of transactions the bus has seen
func (b *Bus) Transactions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transactions
}

func (b *Bus) Board(boardID uint8) *Board {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, board := range b.boards {
		if board.id == boardID {
			return board
		}
	}
	return nil
}

// Node returns the current node id of a board
func (b *Bus) Node(boardID uint8) (port.NodeID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, board := range b.boards {
		if board.id == boardID {
			return port.NodeID(i), true
		}
	}
	return 0, false
}

// Reset increments the generation, renumbers the nodes and notifies the reset handler
func (b *Bus) Reset() {
	b.mu.Lock()
	b.generation++
	if len(b.boards) > 1 {
		b.boards = append(b.boards[1:], b.boards[0])
	}
	generation := b.generation
	handler := b.handler
	b.mu.Unlock()
	if handler != nil {
		handler(generation)
	}
}

// ResetBeforeNext makes each of the next n transactions run right after a bus reset
func (b *Bus) ResetBeforeNext(n int) {
	b.mu.Lock()
	b.resetBefore = n
	b.mu.Unlock()
}

func (b *Bus) AddBoard(board *Board) {
	b.mu.Lock()
	b.boards = append(b.boards, board)
	b.mu.Unlock()
	b.Reset()
}

func (b *Bus) RemoveBoard(boardID uint8) {
	b.mu.Lock()
	for i, board := range b.boards {
		if board.id == boardID {
			b.boards = append(b.boards[:i], b.boards[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	b.Reset()
}

func (b *Bus) begin(generation uint32, node port.NodeID) (*Board, []*Board, error) {
	b.mu.Lock()
	reset := b.resetBefore > 0
	if reset {
		b.resetBefore--
	}
	b.mu.Unlock()
	if reset {
		b.Reset()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.transactions++
	if generation != b.generation {
		return nil, nil, port.ErrStaleGeneration{Have: generation, Current: b.generation}
	}
	boards := append([]*Board(nil), b.boards...)
	if node == port.BroadcastNode {
		return nil, boards, nil
	}
	if int(node) >= len(b.boards) {
		return nil, nil, port.ErrNoResponse
	}
	return b.boards[node], boards, nil
}

func busError(node port.NodeID, rcode layers.RCode) error {
	if rcode == layers.RCodeComplete {
		return nil
	}
	return port.ErrBusError{Node: node, RCode: rcode}
}

func (b *Bus) ReadQuadlet(generation uint32, node port.NodeID, addr uint64) (uint32, error) {
	board, _, err := b.begin(generation, node)
	if err != nil {
		return 0, err
	}
	if board == nil {
		return 0, busError(node, layers.RCodeTypeError)
	}
	v, rcode := board.readQuadlet(addr)
	return v, busError(node, rcode)
}

func (b *Bus) WriteQuadlet(generation uint32, node port.NodeID, addr uint64, data uint32) error {
	board, boards, err := b.begin(generation, node)
	if err != nil {
		return err
	}
	if board == nil {
		for _, board := range boards {
			board.writeQuadlet(addr, data)
		}
		return nil
	}
	return busError(node, board.writeQuadlet(addr, data))
}

// ReadBlock fills buf. The hub address returns a segment per board in
// node order, truncated or zero padded to the requested length.
func (b *Bus) ReadBlock(generation uint32, node port.NodeID, addr uint64, buf []uint32) error {
	board, boards, err := b.begin(generation, node)
	if err != nil {
		return err
	}
	if board == nil {
		return busError(node, layers.RCodeTypeError)
	}
	var data []uint32
	switch addr {
	case device.RealTimeAddr:
		data = board.realTime()
	case device.HubAddr:
		for _, board := range boards {
			rt := board.realTime()
			data = append(data, device.SegmentHeader(board.id, len(rt)))
			data = append(data, rt...)
		}
	default:
		return busError(node, layers.RCodeAddressError)
	}
	n := copy(buf, data)
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

// WriteBlock to the broadcast node at BroadcastWriteAddr hands every
// board its segment, a write to one node sets its real-time write buffer.
func (b *Bus) WriteBlock(generation uint32, node port.NodeID, addr uint64, data []uint32) error {
	board, boards, err := b.begin(generation, node)
	if err != nil {
		return err
	}
	if board != nil {
		if addr != device.RealTimeAddr {
			return busError(node, layers.RCodeAddressError)
		}
		return busError(node, board.writeRealTime(data))
	}
	if addr != device.BroadcastWriteAddr {
		return nil
	}
	byID := map[uint8]*Board{}
	for _, board := range boards {
		byID[board.id] = board
	}
	for i := 0; i < len(data); {
		id, n := device.ParseSegmentHeader(data[i])
		i += device.SegmentHeaderSize
		if i+n > len(data) {
			break
		}
		if board, ok := byID[id]; ok {
			board.writeRealTime(data[i : i+n])
		}
		i += n
	}
	return nil
}
