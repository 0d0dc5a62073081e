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

package command

import (
	"context"
	"io"
	"net"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device/amp"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/flash"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/log"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/port"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/session"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/sim"
)

// Bus is a session opened directly on the configured port, without a
// control server in between.
type Bus struct {
	Port    port.Port
	Session *session.Session
	Boards  map[uint8]*amp.Board
}

// OpenBus opens the configured port and adds the given boards to a new session
func OpenBus(cfg *config.Config, boards ...uint8) (*Bus, error) {
	p, err := port.Open(cfg.Port)
	if err != nil {
		return nil, err
	}
	b := &Bus{
		Port:    p,
		Session: session.New(p),
		Boards:  map[uint8]*amp.Board{},
	}
	for _, id := range boards {
		board, err := amp.NewBoard(id)
		if err == nil {
			err = b.Session.AddBoard(board)
		}
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Boards[id] = board
	}
	return b, nil
}

func (b *Bus) Close() error {
	b.Session.Close()
	return b.Port.Close()
}

// Discover lists the boards on the bus
func Discover(cfg *config.Config) ([]session.NodeInfo, error) {
	b, err := OpenBus(cfg)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	return b.Session.Scan()
}

func QuadRead(cfg *config.Config, boardID uint8, addr uint64) (uint32, error) {
	b, err := OpenBus(cfg)
	if err != nil {
		return 0, err
	}
	defer b.Close()
	return b.Session.ReadQuadlet(boardID, addr)
}

func QuadWrite(cfg *config.Config, boardID uint8, addr uint64, value uint32) error {
	b, err := OpenBus(cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	return b.Session.WriteQuadlet(boardID, addr, value)
}

func BlockRead(cfg *config.Config, boardID uint8, addr uint64, n int) ([]uint32, error) {
	b, err := OpenBus(cfg)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	buf := make([]uint32, n)
	if err := b.Session.ReadBlock(boardID, addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func BlockWrite(cfg *config.Config, boardID uint8, addr uint64, data []uint32) error {
	b, err := OpenBus(cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	return b.Session.WriteBlock(boardID, addr, data)
}

// Instrument reads the flash of a board and writes the words read so far
// to out, little endian. The image is written even when the extraction
// fails part way.
func Instrument(ctx context.Context, cfg *config.Config, boardID uint8, opts flash.Options, out io.Writer) (flash.Stats, error) {
	b, err := OpenBus(cfg)
	if err != nil {
		return flash.Stats{}, err
	}
	defer b.Close()

	img, stats, err := flash.NewExtractor(b.Session, boardID, opts).Extract(ctx)
	if img != nil {
		if _, werr := img.WriteTo(out); werr != nil && err == nil {
			err = werr
		}
	}
	return stats, err
}

// ServeSim answers bridge datagrams on addr with simulated boards until ctx is done
func ServeSim(ctx context.Context, addr string, boards []int, flashWords []uint16) error {
	bus := sim.NewBus()
	for _, id := range boards {
		board := sim.NewBoard(uint8(id))
		board.SetFlash(flashWords)
		bus.AddBoard(board)
	}
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return err
	}
	log.Info("Simulating boards %v on %s", boards, conn.LocalAddr())
	return sim.NewBridge(bus).ServeUDP(ctx, conn)
}
