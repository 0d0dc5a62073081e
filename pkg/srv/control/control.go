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

package control

import (
	"context"
	"net/http"
	"sync"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device/amp"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/flash"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/log"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/port"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/session"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/srv"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/srv/control/ifc"
)

// ControlServer owns the bus session. The API handlers and the telemetry
// loop go through it, one bus operation at a time.
type ControlServer struct {
	srv.Server
	mu        sync.Mutex
	port      port.Port
	session   *session.Session
	boards    map[uint8]*amp.Board
	order     []uint8
	state     *State
	api       ifc.ApiServer
	telemetry *Telemetry
	closed    bool
}

var _ ifc.ControlServer = &ControlServer{}

func NewControlServer(ctx context.Context, cfg *config.Config) (*ControlServer, error) {
	p, err := port.Open(cfg.Port)
	if err != nil {
		return nil, err
	}
	s, err := NewControlServerWithPort(ctx, cfg, p)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewControlServerWithPort builds the server over an already open port.
// The server closes the port when it stops.
func NewControlServerWithPort(ctx context.Context, cfg *config.Config, p port.Port) (*ControlServer, error) {
	log.Info("Initializing control server: port: %s boards: %v", cfg.Port, cfg.Boards)

	ids := make([]uint8, 0, len(cfg.Boards))
	for _, id := range cfg.Boards {
		if id < 0 || id >= device.MaxBoards {
			return nil, device.ErrBoardRange{BoardID: id}
		}
		ids = append(ids, uint8(id))
	}

	state, err := NewState(cfg.DBPath, ids)
	if err != nil {
		return nil, err
	}

	s := &ControlServer{
		Server: srv.Server{
			Context: ctx,
			Config:  cfg,
		},
		port:    p,
		session: session.New(p),
		boards:  map[uint8]*amp.Board{},
		order:   ids,
		state:   state,
	}

	for _, id := range ids {
		b, err := amp.NewBoard(id)
		if err == nil {
			err = s.session.AddBoard(b)
		}
		if err != nil {
			s.session.Close()
			state.Close()
			return nil, err
		}
		s.boards[id] = b
	}

	api, err := NewApiServer(ctx, cfg, s)
	if err != nil {
		s.session.Close()
		state.Close()
		return nil, err
	}
	s.api = api

	if cfg.Telemetry.Enabled() {
		s.telemetry = NewTelemetry(cfg.Telemetry, NewMqttPublisher(cfg.Telemetry), s)
	}
	return s, nil
}

func (s *ControlServer) Handler() http.Handler {
	return s.api.Handler()
}

func (s *ControlServer) Run() error {
	log.Info("Starting control server")
	errChan := make(chan error, 2)
	go func() {
		errChan <- s.api.Run()
	}()
	if s.telemetry != nil {
		go func() {
			errChan <- s.telemetry.Run(s.Context)
		}()
	}

	select {
	case <-s.Done():
		log.Info("Stopping control server")
		return s.Close()
	case err := <-errChan:
		if err != nil {
			log.Error("Control server failed: %s", err)
		}
		s.Close()
		return err
	}
}

// Close detaches the boards and releases the port and the state database
func (s *ControlServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.session.Close()
	err := s.port.Close()
	if serr := s.state.Close(); err == nil {
		err = serr
	}
	return err
}

func (s *ControlServer) Boards() []uint8 {
	return append([]uint8(nil), s.order...)
}

func (s *ControlServer) board(boardID uint8) (*amp.Board, error) {
	b, ok := s.boards[boardID]
	if !ok {
		return nil, session.ErrNotInSession{BoardID: boardID}
	}
	return b, nil
}

func (s *ControlServer) Scan() ([]session.NodeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Scan()
}

func (s *ControlServer) cache(boardID uint8, addr uint64, value uint32) {
	err := s.state.AddBoards(boardID)
	if err == nil {
		err = s.state.SetQuadlet(boardID, addr, value)
	}
	if err != nil {
		log.Warning("Failed to cache quadlet 0x%x of board %d: %s", addr, boardID, err)
	}
}

func (s *ControlServer) ReadQuadlet(boardID uint8, addr uint64) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, err := s.session.ReadQuadlet(boardID, addr)
	if err != nil {
		return 0, err
	}
	s.cache(boardID, addr, value)
	return value, nil
}

func (s *ControlServer) WriteQuadlet(boardID uint8, addr uint64, data uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.WriteQuadlet(boardID, addr, data); err != nil {
		return err
	}
	s.cache(boardID, addr, data)
	return nil
}

func (s *ControlServer) CachedQuadlets(boardID uint8) (map[uint64]uint32, error) {
	return s.state.Quadlets(boardID)
}

func (s *ControlServer) Snapshot(boardID uint8) (*amp.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.board(boardID)
	if err != nil {
		return nil, err
	}
	if err := s.session.ReadAllBoards(); err != nil {
		return nil, err
	}
	return s.store(b.Snapshot()), nil
}

func (s *ControlServer) SnapshotAll() ([]*amp.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.ReadAllBoards(); err != nil {
		return nil, err
	}
	snaps := make([]*amp.Snapshot, 0, len(s.order))
	for _, id := range s.order {
		snaps = append(snaps, s.store(s.boards[id].Snapshot()))
	}
	return snaps, nil
}

func (s *ControlServer) store(snap *amp.Snapshot) *amp.Snapshot {
	if err := s.state.PutSnapshot(snap); err != nil {
		log.Warning("Failed to store snapshot of board %d: %s", snap.BoardID, err)
	}
	return snap
}

// SetMotorCurrent stages the current and sends the write buffers of all boards
func (s *ControlServer) SetMotorCurrent(boardID uint8, channel int, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.board(boardID)
	if err != nil {
		return err
	}
	if err := b.SetMotorCurrent(channel, value); err != nil {
		return err
	}
	return s.session.WriteAllBoards()
}

func (s *ControlServer) SetPower(boardID uint8, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.board(boardID)
	if err != nil {
		return err
	}
	if err := b.SetPowerControl(value); err != nil {
		return err
	}
	s.cache(boardID, device.BoardStatus, value)
	return nil
}

// DumpFlash reads words flash words of a board into the state database.
// A non positive words uses the configured length. The bus is held for
// the whole dump.
func (s *ControlServer) DumpFlash(ctx context.Context, boardID uint8, words int) (flash.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.AddBoards(boardID); err != nil {
		return flash.Stats{}, err
	}
	if err := s.state.ClearFlash(boardID); err != nil {
		return flash.Stats{}, err
	}
	opts := flash.OptionsFromConfig(s.Config.Flash)
	if words > 0 {
		opts.Words = words
	}
	opts.Sink = s.state
	log.Info("Dumping %d flash words of board %d", opts.Words, boardID)
	_, stats, err := flash.NewExtractor(s.session, boardID, opts).Extract(ctx)
	if err != nil {
		return stats, err
	}
	log.Info("Flash of board %d dumped: %d words in %s, %.0f words/s",
		boardID, stats.Words, stats.Elapsed, stats.WordsPerSecond())
	return stats, nil
}

func (s *ControlServer) FlashImage(boardID uint8) ([]uint16, []flash.WordState, error) {
	return s.state.FlashImage(boardID)
}
