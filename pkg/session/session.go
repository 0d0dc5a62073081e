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

package session

import (
	"errors"
	"sort"
	"sync/atomic"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device"
	deviceifc "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device/ifc"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/log"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/port"
)

type State int

const (
	StateIdle State = iota
	StateResolving
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

type NodeInfo struct {
	Node            port.NodeID `json:"node"`
	BoardID         uint8       `json:"boardId"`
	HardwareVersion uint32      `json:"hardwareVersion"`
	FirmwareVersion uint32      `json:"firmwareVersion"`
}

// Session owns a port and the boards attached to it. It maps board ids
// to node ids for the current bus generation and runs the collective
// read and write transactions of a control cycle.
//
// A Session is used from one goroutine at a time. HandleTopologyChange
// is the exception, the port may call it from any goroutine.
type Session struct {
	port   port.Port
	boards []deviceifc.Board

	state       State
	generation  uint32
	nodes       map[uint8]port.NodeID
	nodeCount   int
	resolutions int

	pending uint32
	dirty   int32

	readBuf  []uint32
	writeBuf []uint32
}

var _ deviceifc.QuadletPort = &Session{}

func New(p port.Port) *Session {
	s := &Session{
		port:  p,
		nodes: map[uint8]port.NodeID{},
	}
	p.SetTopologyHandler(s.HandleTopologyChange)
	return s
}

func (s *Session) Port() port.Port {
	return s.port
}

func (s *Session) State() State {
	return s.state
}

// Generation is the bus generation of the current node map
func (s *Session) Generation() uint32 {
	return s.generation
}

// Resolutions counts successful node map resolutions
func (s *Session) Resolutions() int {
	return s.resolutions
}

func (s *Session) NodeCount() int {
	return s.nodeCount
}

func (s *Session) Boards() []deviceifc.Board {
	return append([]deviceifc.Board(nil), s.boards...)
}

func (s *Session) Board(boardID uint8) deviceifc.Board {
	for _, b := range s.boards {
		if b.BoardID() == boardID {
			return b
		}
	}
	return nil
}

// HandleTopologyChange records a new bus generation. The node map is
// rebuilt once before the next transaction, however many times this is
// called in between.
func (s *Session) HandleTopologyChange(generation uint32) {
	atomic.StoreUint32(&s.pending, generation)
	atomic.StoreInt32(&s.dirty, 1)
}

func (s *Session) AddBoard(b deviceifc.Board) error {
	id := b.BoardID()
	if int(id) >= device.MaxBoards {
		return device.ErrBoardRange{BoardID: int(id)}
	}
	for _, existing := range s.boards {
		if existing.BoardID() == id {
			return ErrDuplicateBoard{BoardID: id}
		}
	}
	if n := len(b.ReadBuffer()); n != device.ReadBufSize {
		return device.ErrLayoutMismatch{BoardID: id, What: "read buffer length", Want: device.ReadBufSize, Got: uint32(n)}
	}
	if n := len(b.WriteBuffer()); n != device.WriteBufSize {
		return device.ErrLayoutMismatch{BoardID: id, What: "write buffer length", Want: device.WriteBufSize, Got: uint32(n)}
	}
	if err := b.Attach(s); err != nil {
		return err
	}
	s.boards = append(s.boards, b)
	s.writeBuf = make([]uint32, 0, len(s.boards)*(device.SegmentHeaderSize+device.WriteBufSize))
	if s.state == StateReady {
		s.state = StateResolving
	}
	log.Debug("Board %d added to session", id)
	return nil
}

func (s *Session) RemoveBoard(boardID uint8) error {
	for i, b := range s.boards {
		if b.BoardID() != boardID {
			continue
		}
		b.Detach()
		s.boards = append(s.boards[:i], s.boards[i+1:]...)
		log.Debug("Board %d removed from session", boardID)
		return nil
	}
	return ErrNotInSession{BoardID: boardID}
}

// Close detaches all boards and stops listening for topology changes.
// The port stays open.
func (s *Session) Close() {
	for _, b := range s.boards {
		b.Detach()
	}
	s.boards = nil
	s.port.SetTopologyHandler(nil)
	s.state = StateIdle
}

func fatal(err error) bool {
	var layout device.ErrLayoutMismatch
	var dup ErrDuplicateNode
	var transport *TransportError
	return errors.As(err, &layout) || errors.As(err, &dup) || errors.As(err, &transport)
}

func wrap(op string, err error, retried bool) error {
	if err == nil || fatal(err) {
		return err
	}
	return &TransportError{Op: op, Retried: retried, Err: err}
}

// nonBoard reports whether a failed status read means the node is not
// a board, like the host adapter itself.
func nonBoard(err error) bool {
	var busErr port.ErrBusError
	return errors.Is(err, port.ErrNoResponse) || errors.As(err, &busErr)
}

func (s *Session) resolveOnce() error {
	// The generation is taken first so a reset before the node count
	// makes the scan reads stale.
	generation := s.port.Generation()
	n, err := s.port.NumNodes()
	if err != nil {
		return err
	}
	nodes := make(map[uint8]port.NodeID, n)
	for i := 0; i < n && i < port.MaxNodes; i++ {
		node := port.NodeID(i)
		status, err := s.port.ReadQuadlet(generation, node, device.BoardStatus)
		if nonBoard(err) {
			log.Debug("Skipping node %d: %s", node, err)
			continue
		}
		if err != nil {
			return err
		}
		id := device.BoardIDFromStatus(status)
		if _, ok := nodes[id]; ok {
			return ErrDuplicateNode{BoardID: id}
		}
		nodes[id] = node
	}
	for _, b := range s.boards {
		node, ok := nodes[b.BoardID()]
		if !ok {
			return ErrBoardNotFound{BoardID: b.BoardID()}
		}
		version, err := s.port.ReadQuadlet(generation, node, device.FirmwareVersion)
		if err != nil {
			return err
		}
		if !device.FirmwareSupported(version) {
			return device.ErrLayoutMismatch{
				BoardID: b.BoardID(),
				What:    "firmware version",
				Want:    device.MaxFirmwareVersion,
				Got:     version,
			}
		}
	}

	if current := s.port.Generation(); current != generation {
		return port.ErrStaleGeneration{Have: generation, Current: current}
	}

	s.nodes = nodes
	s.nodeCount = n
	s.generation = generation
	size := len(nodes) * (device.SegmentHeaderSize + device.ReadBufSize)
	if cap(s.readBuf) < size {
		s.readBuf = make([]uint32, size)
	}
	s.readBuf = s.readBuf[:size]
	return nil
}

// resolve rebuilds the node map. A bus reset in the middle of it
// restarts it once.
func (s *Session) resolve() error {
	s.state = StateResolving
	err := s.resolveOnce()
	if port.IsStale(err) {
		log.Debug("Bus reset while resolving nodes, resolving again")
		err = s.resolveOnce()
	}
	if err != nil {
		return wrap("resolve", err, false)
	}
	s.resolutions++
	s.state = StateReady
	log.Info("Resolved %d nodes at generation %d", s.nodeCount, s.generation)
	return nil
}

func (s *Session) begin() error {
	if atomic.SwapInt32(&s.dirty, 0) == 1 && atomic.LoadUint32(&s.pending) != s.generation {
		log.Debug("Bus generation changed to %d", atomic.LoadUint32(&s.pending))
		s.state = StateResolving
	}
	if s.state != StateReady {
		return s.resolve()
	}
	return nil
}

// transact runs fn with the current generation. If the generation
// turns out to be stale the node map is rebuilt and fn runs once more.
func (s *Session) transact(op string, fn func(generation uint32) error) error {
	if err := s.begin(); err != nil {
		return err
	}
	err := fn(s.generation)
	var layout device.ErrLayoutMismatch
	if errors.As(err, &layout) {
		s.state = StateResolving
	}
	if !port.IsStale(err) {
		return wrap(op, err, false)
	}
	log.Debug("Bus reset during %s, re-resolving and retrying", op)
	if err := s.resolve(); err != nil {
		return err
	}
	return wrap(op, fn(s.generation), true)
}

func (s *Session) node(boardID uint8) (port.NodeID, error) {
	node, ok := s.nodes[boardID]
	if !ok {
		return 0, ErrBoardNotFound{BoardID: boardID}
	}
	return node, nil
}

// ReadAllBoards fetches the real-time buffers of all boards with one
// block read from the hub node. Board buffers change only if the whole
// response is consistent.
func (s *Session) ReadAllBoards() error {
	if len(s.boards) == 0 {
		return nil
	}
	return s.transact("read all boards", func(generation uint32) error {
		hub, err := s.node(s.boards[0].BoardID())
		if err != nil {
			return err
		}
		if err := s.port.ReadBlock(generation, hub, device.HubAddr, s.readBuf); err != nil {
			return err
		}
		return s.commit(s.readBuf)
	})
}

func (s *Session) commit(data []uint32) error {
	var segments [device.MaxBoards][]uint32
	for i := 0; i < len(data) && data[i] != 0; {
		id, n := device.ParseSegmentHeader(data[i])
		i += device.SegmentHeaderSize
		if n != device.ReadBufSize {
			return device.ErrLayoutMismatch{BoardID: id, What: "read buffer length", Want: device.ReadBufSize, Got: uint32(n)}
		}
		if i+n > len(data) {
			return device.ErrLayoutMismatch{BoardID: id, What: "hub response length", Want: uint32(i + n), Got: uint32(len(data))}
		}
		segments[id] = data[i : i+n]
		i += n
	}
	for _, b := range s.boards {
		if segments[b.BoardID()] == nil {
			return ErrBoardNotFound{BoardID: b.BoardID()}
		}
	}
	for _, b := range s.boards {
		copy(b.ReadBuffer(), segments[b.BoardID()])
	}
	return nil
}

// WriteAllBoards sends the write buffers of all boards in one broadcast block write
func (s *Session) WriteAllBoards() error {
	if len(s.boards) == 0 {
		return nil
	}
	return s.transact("write all boards", func(generation uint32) error {
		buf := s.writeBuf[:0]
		for _, b := range s.boards {
			wb := b.WriteBuffer()
			buf = append(buf, device.SegmentHeader(b.BoardID(), len(wb)))
			buf = append(buf, wb...)
		}
		return s.port.WriteBlock(generation, port.BroadcastNode, device.BroadcastWriteAddr, buf)
	})
}

func (s *Session) ReadQuadlet(boardID uint8, addr uint64) (uint32, error) {
	var data uint32
	err := s.transact("read quadlet", func(generation uint32) error {
		node, err := s.node(boardID)
		if err != nil {
			return err
		}
		data, err = s.port.ReadQuadlet(generation, node, addr)
		return err
	})
	return data, err
}

func (s *Session) WriteQuadlet(boardID uint8, addr uint64, data uint32) error {
	return s.transact("write quadlet", func(generation uint32) error {
		node, err := s.node(boardID)
		if err != nil {
			return err
		}
		return s.port.WriteQuadlet(generation, node, addr, data)
	})
}

func (s *Session) ReadBlock(boardID uint8, addr uint64, buf []uint32) error {
	return s.transact("read block", func(generation uint32) error {
		node, err := s.node(boardID)
		if err != nil {
			return err
		}
		return s.port.ReadBlock(generation, node, addr, buf)
	})
}

func (s *Session) WriteBlock(boardID uint8, addr uint64, data []uint32) error {
	return s.transact("write block", func(generation uint32) error {
		node, err := s.node(boardID)
		if err != nil {
			return err
		}
		return s.port.WriteBlock(generation, node, addr, data)
	})
}

// Scan lists every board on the bus with its versions, sorted by node
func (s *Session) Scan() ([]NodeInfo, error) {
	var infos []NodeInfo
	err := s.transact("scan", func(generation uint32) error {
		infos = infos[:0]
		for id, node := range s.nodes {
			hw, err := s.port.ReadQuadlet(generation, node, device.HardwareVersion)
			if err != nil {
				return err
			}
			fw, err := s.port.ReadQuadlet(generation, node, device.FirmwareVersion)
			if err != nil {
				return err
			}
			infos = append(infos, NodeInfo{Node: node, BoardID: id, HardwareVersion: hw, FirmwareVersion: fw})
		}
		return nil
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].Node < infos[j].Node })
	return infos, err
}
