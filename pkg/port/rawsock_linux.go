//go:build linux

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
	"time"

	"golang.org/x/sys/unix"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/layers"
)

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

type rawConn struct {
	fd   int
	addr unix.SockaddrLinklayer
	buf  []byte
}

func openRawConn(ifname string) (Conn, net.HardwareAddr, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, nil, err
	}
	proto := htons(uint16(layers.EthernetTypeFw1394))
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		return nil, nil, err
	}
	bind := &unix.SockaddrLinklayer{Protocol: proto, Ifindex: iface.Index}
	if err := unix.Bind(fd, bind); err != nil {
		unix.Close(fd)
		return nil, nil, err
	}
	c := &rawConn{
		fd:  fd,
		buf: make([]byte, layers.MaxDatagramSize+64),
		addr: unix.SockaddrLinklayer{
			Protocol: proto,
			Ifindex:  iface.Index,
			Halen:    6,
		},
	}
	copy(c.addr.Addr[:], layers.BoardMAC)
	return c, iface.HardwareAddr, nil
}

func (c *rawConn) Send(data []byte) error {
	return unix.Sendto(c.fd, data, 0, &c.addr)
}

func (c *rawConn) Recv(timeout time.Duration) ([]byte, error) {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return nil, err
	}
	for {
		n, _, err := unix.Recvfrom(c.fd, c.buf, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrNoResponse
		}
		if err != nil {
			return nil, err
		}
		data := make([]byte, n)
		copy(data, c.buf[:n])
		return data, nil
	}
}

func (c *rawConn) Close() error {
	return unix.Close(c.fd)
}
