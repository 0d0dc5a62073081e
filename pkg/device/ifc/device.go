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

// QuadletPort addresses single quadlets on a board by board id.
// The bus session implements it.
type QuadletPort interface {
	ReadQuadlet(boardID uint8, addr uint64) (uint32, error)
	WriteQuadlet(boardID uint8, addr uint64, data uint32) error
}

// Board is the view a bus session has of a board device. The session
// copies the board's segment of a hub read into ReadBuffer and sends
// WriteBuffer in the broadcast write.
type Board interface {
	BoardID() uint8
	ReadBuffer() []uint32
	WriteBuffer() []uint32

	Attach(owner QuadletPort) error
	Detach()
}
