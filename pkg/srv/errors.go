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

package srv

import (
	"fmt"
)

// ErrUnknownOperation is returned for requests the server can not map to an operation
type ErrUnknownOperation struct {
	What string
}

func (e ErrUnknownOperation) Error() string {
	return fmt.Sprintf("Unknown operation: %s", e.What)
}

// ErrInvalidParam is returned for a request parameter that does not parse
type ErrInvalidParam struct {
	Name  string
	Value string
}

func (e ErrInvalidParam) Error() string {
	return fmt.Sprintf("Invalid %s: %s", e.Name, e.Value)
}

type ErrBucketNotFound struct {
	Bucket string
}

func (e ErrBucketNotFound) Error() string {
	return fmt.Sprintf("Bucket not found: %s", e.Bucket)
}

type ErrKeyNotFound struct {
	Bucket string
	Key    string
}

func (e ErrKeyNotFound) Error() string {
	return fmt.Sprintf("Key not found: %s in bucket %s", e.Key, e.Bucket)
}
