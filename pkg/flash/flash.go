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

package flash

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device"
	deviceifc "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device/ifc"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/log"
)

const (
	// BlockWords is the granularity of blank skipping and of Sink writes
	BlockWords = 0x100
	// BlankWord is what erased flash reads as
	BlankWord uint16 = 0xffff
	// MaxWords is the size of the flash offset field
	MaxWords = 0x1000000
)

// Command builds the command quadlet for opcode at word offset
func Command(opcode uint8, offset uint32) uint32 {
	return uint32(opcode)<<24 | offset&0xffffff
}

// Matches tells whether status echoes offset, i.e. its data half is the word at offset
func Matches(offset uint32, status uint32) bool {
	return offset&0xffff == status>>16
}

type State int

const (
	StateRequesting State = iota
	StatePolling
	StateResend
	StateReady
	StateFailed
)

func (s State) String() string {
	return [...]string{"requesting", "polling", "resend", "ready", "failed"}[s]
}

type WordState uint8

const (
	WordUnfetched WordState = iota
	WordFetched
	WordSkippedBlank
)

type Options struct {
	Words       int
	PollDelay   time.Duration
	ResendDelay time.Duration
	SettleDelay time.Duration
	// MaxPolls unmatched polls trigger a resend of the command
	MaxPolls int
	// MaxResends resends without a match fail the word
	MaxResends int
	// NoSkipBlank fetches every word even in blocks starting with BlankWord
	NoSkipBlank bool
	Sleep       func(time.Duration)
	Sink        Sink
}

func DefaultOptions() Options {
	return Options{
		Words:       config.DefaultFlashWords,
		PollDelay:   config.DefaultFlashPollDelay * time.Millisecond,
		ResendDelay: config.DefaultFlashResendDelay * time.Millisecond,
		SettleDelay: config.DefaultFlashSettleDelay * time.Millisecond,
		MaxPolls:    config.DefaultFlashMaxPolls,
		MaxResends:  config.DefaultFlashMaxResends,
		Sleep:       time.Sleep,
	}
}

func OptionsFromConfig(cfg *config.FlashConfig) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	opts.Words = cfg.Words
	opts.PollDelay = time.Duration(cfg.PollDelayMs) * time.Millisecond
	opts.ResendDelay = time.Duration(cfg.ResendDelayMs) * time.Millisecond
	opts.SettleDelay = time.Duration(cfg.SettleDelayMs) * time.Millisecond
	opts.MaxPolls = cfg.MaxPolls
	opts.MaxResends = cfg.MaxResends
	opts.NoSkipBlank = cfg.NoSkipBlank
	return opts
}

// Sink receives every finished block of an extraction
type Sink interface {
	PutBlock(boardID uint8, offset int, data []uint16, states []WordState) error
}

// Image is the flash content read so far. Words before Confirmed are final.
type Image struct {
	Data      []uint16
	States    []WordState
	Confirmed int
}

func NewImage(words int) *Image {
	return &Image{
		Data:   make([]uint16, words),
		States: make([]WordState, words),
	}
}

func (im *Image) Counts() (fetched, skipped int) {
	for _, s := range im.States {
		switch s {
		case WordFetched:
			fetched++
		case WordSkippedBlank:
			skipped++
		}
	}
	return fetched, skipped
}

// WriteTo writes the confirmed words little endian
func (im *Image) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, 2*BlockWords)
	var total int64
	for base := 0; base < im.Confirmed; base += BlockWords {
		end := base + BlockWords
		if end > im.Confirmed {
			end = im.Confirmed
		}
		for i, v := range im.Data[base:end] {
			binary.LittleEndian.PutUint16(buf[2*i:], v)
		}
		n, err := w.Write(buf[:2*(end-base)])
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type Stats struct {
	Words   int           `json:"words"`
	Fetched int           `json:"fetched"`
	Skipped int           `json:"skipped"`
	Polls   int           `json:"polls"`
	Resends int           `json:"resends"`
	Elapsed time.Duration `json:"elapsed"`
}

func (s Stats) WordsPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Fetched+s.Skipped) / s.Elapsed.Seconds()
}

// ErrPollExhausted is returned when a word never showed up in the status
// register. The image returned with it holds every word before Offset.
type ErrPollExhausted struct {
	BoardID uint8
	Offset  uint32
	Polls   int
	Resends int
	LastErr error
}

func (e *ErrPollExhausted) Error() string {
	msg := fmt.Sprintf("board %d flash word 0x%06x not echoed after %d polls and %d resends",
		e.BoardID, e.Offset, e.Polls, e.Resends)
	if e.LastErr != nil {
		msg += ": " + e.LastErr.Error()
	}
	return msg
}

func (e *ErrPollExhausted) Unwrap() error {
	return e.LastErr
}

type ErrWords struct {
	Words int
}

func (e ErrWords) Error() string {
	return fmt.Sprintf("flash length %d out of range [0, 0x%x]", e.Words, MaxWords)
}

// Extractor reads flash words through the command and status quadlets
// of one board.
type Extractor struct {
	port    deviceifc.QuadletPort
	boardID uint8
	opts    Options
	settled bool
	stats   Stats
}

func NewExtractor(p deviceifc.QuadletPort, boardID uint8, opts Options) *Extractor {
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = config.DefaultFlashMaxPolls
	}
	return &Extractor{
		port:    p,
		boardID: boardID,
		opts:    opts,
	}
}

func (e *Extractor) Stats() Stats {
	return e.stats
}

type fetch struct {
	offset  uint32
	state   State
	polls   int
	resends int
	total   int
	data    uint16
	lastErr error
}

// ReadWord runs the request, poll and resend cycle for one word
func (e *Extractor) ReadWord(offset uint32) (uint16, error) {
	f := &fetch{offset: offset, state: StateRequesting}
	for {
		switch f.state {
		case StateRequesting:
			cmd := Command(device.FlashOpRead, offset)
			if err := e.port.WriteQuadlet(e.boardID, device.FlashCommand, cmd); err != nil {
				log.Debug("Flash command 0x%08x to board %d failed: %s", cmd, e.boardID, err)
				f.lastErr = err
			}
			if !e.settled {
				e.opts.Sleep(e.opts.SettleDelay)
				e.settled = true
			}
			f.polls = 0
			f.state = StatePolling
		case StatePolling:
			e.opts.Sleep(e.opts.PollDelay)
			status, err := e.port.ReadQuadlet(e.boardID, device.FlashStatus)
			f.polls++
			f.total++
			e.stats.Polls++
			if err != nil {
				f.lastErr = err
			} else if Matches(offset, status) {
				f.data = uint16(status)
				f.state = StateReady
				continue
			}
			if f.polls >= e.opts.MaxPolls {
				if f.resends >= e.opts.MaxResends {
					f.state = StateFailed
				} else {
					f.state = StateResend
				}
			}
		case StateResend:
			e.opts.Sleep(e.opts.ResendDelay)
			f.resends++
			e.stats.Resends++
			log.Debug("Resending flash command for 0x%06x, resend %d", offset, f.resends)
			f.state = StateRequesting
		case StateReady:
			return f.data, nil
		case StateFailed:
			return 0, &ErrPollExhausted{
				BoardID: e.boardID,
				Offset:  offset,
				Polls:   f.total,
				Resends: f.resends,
				LastErr: f.lastErr,
			}
		}
	}
}

// Extract reads Options.Words words from offset 0. On error the image
// is returned with everything before the failing word confirmed.
func (e *Extractor) Extract(ctx context.Context) (*Image, Stats, error) {
	words := e.opts.Words
	if words < 0 || words > MaxWords {
		return nil, Stats{}, ErrWords{Words: words}
	}
	img := NewImage(words)
	e.stats = Stats{Words: words}
	start := time.Now()

	var err error
	for base := 0; base < words && err == nil; base += BlockWords {
		end := base + BlockWords
		if end > words {
			end = words
		}
		err = e.readBlock(ctx, img, base, end)
		if err == nil || img.Confirmed > base {
			if serr := e.flush(img, base); serr != nil && err == nil {
				err = serr
			}
		}
		if base%(BlockWords*0x100) == 0 {
			log.Debug("Board %d flash at 0x%06x, %d polls, %d resends", e.boardID, base, e.stats.Polls, e.stats.Resends)
		}
	}

	e.stats.Fetched, e.stats.Skipped = img.Counts()
	e.stats.Elapsed = time.Since(start)
	return img, e.stats, err
}

func (e *Extractor) readBlock(ctx context.Context, img *Image, base, end int) error {
	for i := base; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := e.ReadWord(uint32(i))
		if err != nil {
			return err
		}
		img.Data[i] = v
		img.States[i] = WordFetched
		img.Confirmed = i + 1
		if i == base && v == BlankWord && !e.opts.NoSkipBlank {
			for j := base + 1; j < end; j++ {
				img.States[j] = WordSkippedBlank
			}
			img.Confirmed = end
			return nil
		}
	}
	return nil
}

func (e *Extractor) flush(img *Image, base int) error {
	if e.opts.Sink == nil {
		return nil
	}
	end := img.Confirmed
	return e.opts.Sink.PutBlock(e.boardID, base, img.Data[base:end], img.States[base:end])
}
