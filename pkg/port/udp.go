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
	"errors"
	"net"
	"strconv"
	"time"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/layers"
)

const DefaultUdpIP = "169.254.0.100"

type udpFramer struct{}

func (udpFramer) encode(br *layers.BridgeLayer, fw *layers.Fw1394Layer) ([]byte, error) {
	return layers.SerializeBridged(br, fw)
}

func (udpFramer) decode(data []byte) (*layers.BridgeLayer, *layers.Fw1394Layer, error) {
	return layers.DecodeBridged(data)
}

// udpConn is an unconnected socket so opening needs no route to the
// bridge. Datagrams from other sources are dropped.
type udpConn struct {
	conn  *net.UDPConn
	raddr *net.UDPAddr
	buf   []byte
}

func (c *udpConn) Send(data []byte) error {
	_, err := c.conn.WriteToUDP(data, c.raddr)
	return err
}

func (c *udpConn) Recv(timeout time.Duration) ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	for {
		n, from, err := c.conn.ReadFromUDP(c.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, ErrNoResponse
			}
			return nil, err
		}
		if !from.IP.Equal(c.raddr.IP) || from.Port != c.raddr.Port {
			continue
		}
		data := make([]byte, n)
		copy(data, c.buf[:n])
		return data, nil
	}
}

func (c *udpConn) Close() error {
	return c.conn.Close()
}

// UdpAddr resolves addr, either an IP or host:port, to the bridge address
func UdpAddr(addr string) (*net.UDPAddr, error) {
	if addr == "" {
		addr = DefaultUdpIP
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(layers.UdpPort))
	}
	return net.ResolveUDPAddr("udp4", addr)
}

func DialUdp(addr string) (Conn, error) {
	raddr, err := UdpAddr(addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	return &udpConn{conn: conn, raddr: raddr, buf: make([]byte, layers.MaxDatagramSize)}, nil
}

// EthUdpPort reaches the bus through the hub board's UDP bridge
type EthUdpPort struct {
	*bridgeClient
}

var _ Port = &EthUdpPort{}

func NewEthUdpPort(conn Conn, timeout time.Duration) *EthUdpPort {
	return &EthUdpPort{bridgeClient: newBridgeClient(KindEthUdp, conn, udpFramer{}, timeout)}
}

func OpenEthUdpPort(addr string, timeout time.Duration) (*EthUdpPort, error) {
	conn, err := DialUdp(addr)
	if err != nil {
		return nil, err
	}
	return NewEthUdpPort(conn, timeout), nil
}
