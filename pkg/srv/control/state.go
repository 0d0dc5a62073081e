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
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"sigs.k8s.io/yaml"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device/amp"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/flash"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/log"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/srv"
)

// State keeps what the control server learned from the boards: the last
// value seen at every quadlet address, the last snapshot of every board
// and flash dumps.
type State struct {
	DB *bbolt.DB
}

var _ flash.Sink = &State{}

func NewState(path string, boards []uint8) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	s := &State{DB: db}
	if err := s.AddBoards(boards...); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// AddBoards creates the buckets of the given boards
func (s *State) AddBoards(boards ...uint8) error {
	return s.DB.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(SnapshotBucket)); err != nil {
			return err
		}
		for _, id := range boards {
			if _, err := tx.CreateBucketIfNotExists([]byte(regBucket(id))); err != nil {
				return err
			}
			if _, err := tx.CreateBucketIfNotExists([]byte(flashBucket(id))); err != nil {
				return err
			}
		}
		return nil
	})
}

func regBucket(boardID uint8) string {
	return fmt.Sprintf("%s%d", RegBucketPrefix, boardID)
}

func flashBucket(boardID uint8) string {
	return fmt.Sprintf("%s%d", FlashBucketPrefix, boardID)
}

func uint64ToByte(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func uint32ToByte(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func (s *State) Close() error {
	return s.DB.Close()
}

func (s *State) SetQuadlet(boardID uint8, addr uint64, value uint32) error {
	log.Debug("Caching quadlet: board: %d addr: 0x%x value: 0x%08x", boardID, addr, value)
	return s.DB.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(regBucket(boardID)))
		if b == nil {
			return srv.ErrBucketNotFound{Bucket: regBucket(boardID)}
		}
		return b.Put(uint64ToByte(addr), uint32ToByte(value))
	})
}

func (s *State) GetQuadlet(boardID uint8, addr uint64) (uint32, error) {
	var value uint32
	err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(regBucket(boardID)))
		if b == nil {
			return srv.ErrBucketNotFound{Bucket: regBucket(boardID)}
		}
		v := b.Get(uint64ToByte(addr))
		if v == nil {
			return srv.ErrKeyNotFound{Bucket: regBucket(boardID), Key: fmt.Sprintf("0x%x", addr)}
		}
		value = binary.BigEndian.Uint32(v)
		return nil
	})
	return value, err
}

func (s *State) Quadlets(boardID uint8) (map[uint64]uint32, error) {
	quadlets := map[uint64]uint32{}
	err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(regBucket(boardID)))
		if b == nil {
			return srv.ErrBucketNotFound{Bucket: regBucket(boardID)}
		}
		return b.ForEach(func(k, v []byte) error {
			quadlets[binary.BigEndian.Uint64(k)] = binary.BigEndian.Uint32(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return quadlets, nil
}

// PutSnapshot stores the snapshot as yaml under the board id
func (s *State) PutSnapshot(snap *amp.Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}
	return s.DB.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(SnapshotBucket))
		if b == nil {
			return srv.ErrBucketNotFound{Bucket: SnapshotBucket}
		}
		return b.Put([]byte{snap.BoardID}, data)
	})
}

func (s *State) GetSnapshot(boardID uint8) (*amp.Snapshot, error) {
	var data []byte
	err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(SnapshotBucket))
		if b == nil {
			return srv.ErrBucketNotFound{Bucket: SnapshotBucket}
		}
		v := b.Get([]byte{boardID})
		if v == nil {
			return srv.ErrKeyNotFound{Bucket: SnapshotBucket, Key: fmt.Sprintf("%d", boardID)}
		}
		data = append(data, v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	snap := &amp.Snapshot{}
	if err := yaml.Unmarshal(data, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// ClearFlash drops the stored flash blocks of a board
func (s *State) ClearFlash(boardID uint8) error {
	return s.DB.Update(func(tx *bbolt.Tx) error {
		name := []byte(flashBucket(boardID))
		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
}

// PutBlock stores a flash block keyed by its word offset. The value holds
// the words little endian followed by one state byte per word.
func (s *State) PutBlock(boardID uint8, offset int, data []uint16, states []flash.WordState) error {
	value := make([]byte, 3*len(data))
	for i, w := range data {
		binary.LittleEndian.PutUint16(value[2*i:], w)
		value[2*len(data)+i] = byte(states[i])
	}
	return s.DB.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(flashBucket(boardID)))
		if b == nil {
			return srv.ErrBucketNotFound{Bucket: flashBucket(boardID)}
		}
		return b.Put(uint32ToByte(uint32(offset)), value)
	})
}

// FlashImage reassembles the stored blocks of a board. It returns the
// words up to the end of the last block and their states.
func (s *State) FlashImage(boardID uint8) ([]uint16, []flash.WordState, error) {
	var words []uint16
	var states []flash.WordState
	err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(flashBucket(boardID)))
		if b == nil {
			return srv.ErrBucketNotFound{Bucket: flashBucket(boardID)}
		}
		return b.ForEach(func(k, v []byte) error {
			offset := int(binary.BigEndian.Uint32(k))
			n := len(v) / 3
			if end := offset + n; end > len(words) {
				words = append(words, make([]uint16, end-len(words))...)
				states = append(states, make([]flash.WordState, end-len(states))...)
			}
			for i := 0; i < n; i++ {
				words[offset+i] = binary.LittleEndian.Uint16(v[2*i:])
				states[offset+i] = flash.WordState(v[2*n+i])
			}
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return words, states, nil
}
