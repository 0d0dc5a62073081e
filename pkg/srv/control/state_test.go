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
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device/amp"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/flash"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/srv"
)

func newTestState(t *testing.T) *State {
	s, err := NewState(filepath.Join(t.TempDir(), "db", "amp1394.db"), []uint8{2})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStateQuadlets(t *testing.T) {
	s := newTestState(t)
	require.NoError(t, s.SetQuadlet(2, 0x4, 0xdeadbeef))
	require.NoError(t, s.SetQuadlet(2, 0x4, 0x12345678))
	require.NoError(t, s.SetQuadlet(2, 0x1000, 1))

	v, err := s.GetQuadlet(2, 0x4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), v)

	all, err := s.Quadlets(2)
	require.NoError(t, err)
	assert.Equal(t, map[uint64]uint32{0x4: 0x12345678, 0x1000: 1}, all)

	_, err = s.GetQuadlet(2, 0x8)
	var keyErr srv.ErrKeyNotFound
	assert.True(t, errors.As(err, &keyErr))

	var bucketErr srv.ErrBucketNotFound
	assert.True(t, errors.As(s.SetQuadlet(5, 0, 0), &bucketErr))
	require.NoError(t, s.AddBoards(5))
	assert.NoError(t, s.SetQuadlet(5, 0, 0))
}

func TestStateSnapshot(t *testing.T) {
	s := newTestState(t)
	_, err := s.GetSnapshot(2)
	require.Error(t, err)

	snap := &amp.Snapshot{BoardID: 2, Timestamp: 77, Status: 0x000c0000, PowerStatus: true, AmpEnable: 0x3}
	require.NoError(t, s.PutSnapshot(snap))
	got, err := s.GetSnapshot(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(77), got.Timestamp)
	assert.True(t, got.PowerStatus)
	assert.Equal(t, uint8(0x3), got.AmpEnable)
}

func TestStateFlashBlocks(t *testing.T) {
	s := newTestState(t)
	require.NoError(t, s.PutBlock(2, 4, []uint16{0xffff, 0xffff}, []flash.WordState{flash.WordSkippedBlank, flash.WordSkippedBlank}))
	require.NoError(t, s.PutBlock(2, 0, []uint16{1, 2, 3, 0xabcd}, []flash.WordState{
		flash.WordFetched, flash.WordFetched, flash.WordFetched, flash.WordFetched,
	}))

	words, states, err := s.FlashImage(2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 2, 3, 0xabcd, 0xffff, 0xffff}, words)
	assert.Equal(t, flash.WordSkippedBlank, states[5])
	assert.Equal(t, flash.WordFetched, states[0])

	require.NoError(t, s.ClearFlash(2))
	words, _, err = s.FlashImage(2)
	require.NoError(t, err)
	assert.Empty(t, words)
}
