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
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/port"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/session"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/sim"
)

type sleepRecorder struct {
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(d time.Duration) {
	r.sleeps = append(r.sleeps, d)
}

func (r *sleepRecorder) count(d time.Duration) int {
	n := 0
	for _, s := range r.sleeps {
		if s == d {
			n++
		}
	}
	return n
}

type blockRecorder struct {
	offsets []int
	lengths []int
}

func (b *blockRecorder) PutBlock(boardID uint8, offset int, data []uint16, states []WordState) error {
	b.offsets = append(b.offsets, offset)
	b.lengths = append(b.lengths, len(data))
	return nil
}

// echoer answers flash commands immediately until neverFrom
type echoer struct {
	words     []uint16
	neverFrom uint32
	offset    uint32
	status    uint32
}

func (e *echoer) WriteQuadlet(boardID uint8, addr uint64, data uint32) error {
	if addr == device.FlashCommand {
		e.offset = data & 0xffffff
		if e.offset < e.neverFrom {
			e.status = (e.offset&0xffff)<<16 | uint32(e.words[e.offset])
		}
	}
	return nil
}

func (e *echoer) ReadQuadlet(boardID uint8, addr uint64) (uint32, error) {
	return e.status, nil
}

func simSession(t *testing.T) (*sim.Board, *session.Session) {
	board := sim.NewBoard(0)
	s := session.New(port.NewFirewirePort(sim.NewBus(board)))
	return board, s
}

func testOptions(r *sleepRecorder, words int) Options {
	opts := DefaultOptions()
	opts.Words = words
	opts.Sleep = r.sleep
	return opts
}

func pattern(words int) []uint16 {
	data := make([]uint16, words)
	for i := range data {
		data[i] = uint16(i*7 + 1)
	}
	return data
}

func TestCommandAndEcho(t *testing.T) {
	assert.Equal(t, uint32(0x01000123), Command(device.FlashOpRead, 0x123))
	assert.Equal(t, uint32(0x01ffffff), Command(device.FlashOpRead, 0x1ffffff))
	assert.True(t, Matches(0x12345, 0x2345abcd))
	assert.False(t, Matches(0x12345, 0x2344abcd))
}

func TestEchoAfterKPollsTakesKPolls(t *testing.T) {
	board, s := simSession(t)
	words := pattern(16)
	board.SetFlash(words)
	for k := 1; k <= config.DefaultFlashMaxPolls; k++ {
		board.SetFlashEchoAfter(k)
		r := &sleepRecorder{}
		ex := NewExtractor(s, 0, testOptions(r, 16))
		v, err := ex.ReadWord(uint32(k))
		require.NoError(t, err)
		assert.Equal(t, words[k], v)
		assert.Equal(t, k, ex.Stats().Polls, "k=%d", k)
		assert.Equal(t, 0, ex.Stats().Resends)
		assert.Equal(t, k, r.count(2*time.Millisecond))
		assert.Equal(t, 1, r.count(500*time.Millisecond))
	}
}

func TestResendAfterUnmatchedPolls(t *testing.T) {
	board, s := simSession(t)
	board.SetFlash(pattern(16))
	board.DropFlashCommands(1)

	r := &sleepRecorder{}
	ex := NewExtractor(s, 0, testOptions(r, 16))
	v, err := ex.ReadWord(5)
	require.NoError(t, err)
	assert.Equal(t, pattern(16)[5], v)
	assert.Equal(t, config.DefaultFlashMaxPolls+1, ex.Stats().Polls)
	assert.Equal(t, 1, ex.Stats().Resends)
	assert.Equal(t, 2, board.FlashCommands())
	assert.Equal(t, 1, r.count(10*time.Millisecond))
	assert.Equal(t, 1, r.count(500*time.Millisecond), "settle only after the first command")
}

func TestNeverEchoExhaustsWithPrefixIntact(t *testing.T) {
	words := pattern(0x200)
	e := &echoer{words: words, neverFrom: 0x105, status: 0xffff0000}
	r := &sleepRecorder{}
	sink := &blockRecorder{}
	opts := testOptions(r, 0x200)
	opts.MaxResends = 2
	opts.NoSkipBlank = true
	opts.Sink = sink

	img, stats, err := NewExtractor(e, 3, opts).Extract(context.Background())
	var exhausted *ErrPollExhausted
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, uint32(0x105), exhausted.Offset)
	assert.Equal(t, uint8(3), exhausted.BoardID)
	assert.Equal(t, 3*config.DefaultFlashMaxPolls, exhausted.Polls)
	assert.Equal(t, 2, exhausted.Resends)

	require.NotNil(t, img)
	assert.Equal(t, 0x105, img.Confirmed)
	assert.Equal(t, words[:0x105], img.Data[:0x105])
	for i := 0; i < 0x105; i++ {
		require.Equal(t, WordFetched, img.States[i], "word %d", i)
	}
	assert.Equal(t, WordUnfetched, img.States[0x105])
	assert.Equal(t, 0x105, stats.Fetched)
	assert.Equal(t, 2, stats.Resends)

	assert.Equal(t, []int{0, 0x100}, sink.offsets)
	assert.Equal(t, []int{0x100, 5}, sink.lengths)
}

func blankBlockImage() []uint16 {
	words := pattern(0x300)
	words[0x100] = BlankWord
	for i := 0x101; i < 0x200; i++ {
		words[i] = 0x4242
	}
	words[0x205] = 0
	return words
}

func TestBlankRunSkip(t *testing.T) {
	board, s := simSession(t)
	words := blankBlockImage()
	board.SetFlash(words)

	r := &sleepRecorder{}
	img, stats, err := NewExtractor(s, 0, testOptions(r, 0x300)).Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0x300, img.Confirmed)
	assert.Equal(t, 0x201, stats.Polls)
	assert.Equal(t, 0x201, stats.Fetched)
	assert.Equal(t, 0xff, stats.Skipped)

	assert.Equal(t, WordFetched, img.States[0x100])
	assert.Equal(t, BlankWord, img.Data[0x100])
	assert.Equal(t, WordSkippedBlank, img.States[0x101])
	assert.Equal(t, uint16(0), img.Data[0x101])
	assert.Equal(t, WordFetched, img.States[0x205])
	assert.Equal(t, uint16(0), img.Data[0x205])
	assert.Equal(t, words[0x2ff], img.Data[0x2ff])
}

func TestNoSkipBlankFetchesEverything(t *testing.T) {
	board, s := simSession(t)
	words := blankBlockImage()
	board.SetFlash(words)

	r := &sleepRecorder{}
	opts := testOptions(r, 0x300)
	opts.NoSkipBlank = true
	img, stats, err := NewExtractor(s, 0, opts).Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0x300, stats.Fetched)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, words, img.Data)
}

func TestExtractCancelled(t *testing.T) {
	e := &echoer{words: pattern(0x10), neverFrom: 0x10}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &sleepRecorder{}
	img, _, err := NewExtractor(e, 0, testOptions(r, 0x10)).Extract(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, img.Confirmed)
}

func TestExtractRejectsLength(t *testing.T) {
	r := &sleepRecorder{}
	_, _, err := NewExtractor(&echoer{}, 0, testOptions(r, MaxWords+1)).Extract(context.Background())
	var wordsErr ErrWords
	require.True(t, errors.As(err, &wordsErr))
}

func TestImageWriteTo(t *testing.T) {
	img := NewImage(3)
	img.Data = []uint16{0x1234, 0xabcd, 0x5555}
	img.Confirmed = 2
	var buf bytes.Buffer
	n, err := img.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, []byte{0x34, 0x12, 0xcd, 0xab}, buf.Bytes())
}

func TestStatsWordsPerSecond(t *testing.T) {
	s := Stats{Fetched: 1000, Skipped: 1000, Elapsed: 2 * time.Second}
	assert.InDelta(t, 1000.0, s.WordsPerSecond(), 0.001)
	assert.Equal(t, 0.0, Stats{}.WordsPerSecond())
}
