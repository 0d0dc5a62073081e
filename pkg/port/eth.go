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

package port

import (
	"net"
	"time"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/layers"
)

type ethFramer struct {
	src net.HardwareAddr
	dst net.HardwareAddr
}

func (f ethFramer) encode(br *layers.BridgeLayer, fw *layers.Fw1394Layer) ([]byte, error) {
	return layers.SerializeFrame(f.src, f.dst, br, fw)
}

func (f ethFramer) decode(data []byte) (*layers.BridgeLayer, *layers.Fw1394Layer, error) {
	_, br, fw, err := layers.DecodeFrame(data)
	return br, fw, err
}

// EthRawPort reaches the bus with raw Ethernet frames of type 0x0801
type EthRawPort struct {
	*bridgeClient
}

var _ Port = &EthRawPort{}

// NewEthRawPort sends frames from src through conn to the hub board
func NewEthRawPort(conn Conn, src net.HardwareAddr, timeout time.Duration) *EthRawPort {
	f := ethFramer{src: src, dst: layers.BoardMAC}
	return &EthRawPort{bridgeClient: newBridgeClient(KindEthRaw, conn, f, timeout)}
}

// OpenEthRawPort opens a packet socket on the named interface
func OpenEthRawPort(ifname string, timeout time.Duration) (*EthRawPort, error) {
	conn, src, err := openRawConn(ifname)
	if err != nil {
		return nil, err
	}
	return NewEthRawPort(conn, src, timeout), nil
}
