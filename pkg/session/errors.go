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
	"fmt"
)

// TransportError wraps a port failure. The session does not retry
// these except once after a generation change.
type TransportError struct {
	Op      string
	Retried bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Retried {
		return fmt.Sprintf("%s failed after re-resolving the bus: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type ErrDuplicateBoard struct {
	BoardID uint8
}

func (e ErrDuplicateBoard) Error() string {
	return fmt.Sprintf("board %d is already in the session", e.BoardID)
}

type ErrBoardNotFound struct {
	BoardID uint8
}

func (e ErrBoardNotFound) Error() string {
	return fmt.Sprintf("board %d not found on the bus", e.BoardID)
}

type ErrNotInSession struct {
	BoardID uint8
}

func (e ErrNotInSession) Error() string {
	return fmt.Sprintf("board %d is not in the session", e.BoardID)
}

// ErrDuplicateNode means two nodes report the same board id
type ErrDuplicateNode struct {
	BoardID uint8
}

func (e ErrDuplicateNode) Error() string {
	return fmt.Sprintf("board id %d is set on more than one node", e.BoardID)
}
