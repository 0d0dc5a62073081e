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

package shell

import (
	"fmt"
	"strings"

	"sigs.k8s.io/yaml"

	pkgcmd "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/cmd"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/command"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device/amp"
)

// console runs the shell commands against an open bus. Every method
// takes the raw arguments and returns the text to print.
type console struct {
	bus *command.Bus
}

func needArgs(args []string, usage string) error {
	if len(args) < strings.Count(usage, " ")+1 {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func (c *console) board(s string) (*amp.Board, error) {
	id, err := pkgcmd.ParseBoard(s)
	if err != nil {
		return nil, err
	}
	b, ok := c.bus.Boards[id]
	if !ok {
		return nil, fmt.Errorf("board %d is not in the session", id)
	}
	return b, nil
}

func (c *console) scan(args []string) (string, error) {
	nodes, err := c.bus.Session.Scan()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, n := range nodes {
		fmt.Fprintf(&sb, "node %2d: board %2d hardware 0x%08x firmware %d\n", n.Node, n.BoardID, n.HardwareVersion, n.FirmwareVersion)
	}
	return sb.String(), nil
}

func (c *console) read(args []string) (string, error) {
	if err := needArgs(args, "BOARD ADDR"); err != nil {
		return "", err
	}
	id, err := pkgcmd.ParseBoard(args[0])
	if err != nil {
		return "", err
	}
	addr, err := pkgcmd.ParseAddr(args[1])
	if err != nil {
		return "", err
	}
	v, err := c.bus.Session.ReadQuadlet(id, addr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%04x: 0x%08x\n", addr, v), nil
}

func (c *console) write(args []string) (string, error) {
	if err := needArgs(args, "BOARD ADDR VALUE"); err != nil {
		return "", err
	}
	id, err := pkgcmd.ParseBoard(args[0])
	if err != nil {
		return "", err
	}
	addr, err := pkgcmd.ParseAddr(args[1])
	if err != nil {
		return "", err
	}
	v, err := pkgcmd.ParseValue(args[2])
	if err != nil {
		return "", err
	}
	return "OK\n", c.bus.Session.WriteQuadlet(id, addr, v)
}

// cycle reads all boards and prints the snapshot of each
func (c *console) cycle(args []string) (string, error) {
	if err := c.bus.Session.ReadAllBoards(); err != nil {
		return "", err
	}
	snaps := []*amp.Snapshot{}
	for _, b := range c.bus.Session.Boards() {
		snaps = append(snaps, c.bus.Boards[b.BoardID()].Snapshot())
	}
	data, err := yaml.Marshal(snaps)
	return string(data), err
}

func (c *console) current(args []string) (string, error) {
	if err := needArgs(args, "BOARD CHANNEL VALUE"); err != nil {
		return "", err
	}
	b, err := c.board(args[0])
	if err != nil {
		return "", err
	}
	var ch int
	if _, err := fmt.Sscan(args[1], &ch); err != nil {
		return "", err
	}
	v, err := pkgcmd.ParseValue(args[2])
	if err != nil {
		return "", err
	}
	if err := b.SetMotorCurrent(ch, v); err != nil {
		return "", err
	}
	return "OK\n", c.bus.Session.WriteAllBoards()
}

func (c *console) power(args []string) (string, error) {
	if err := needArgs(args, "BOARD VALUE"); err != nil {
		return "", err
	}
	b, err := c.board(args[0])
	if err != nil {
		return "", err
	}
	v, err := pkgcmd.ParseValue(args[1])
	if err != nil {
		return "", err
	}
	return "OK\n", b.SetPowerControl(v)
}

func (c *console) preload(args []string) (string, error) {
	if err := needArgs(args, "BOARD CHANNEL VALUE"); err != nil {
		return "", err
	}
	b, err := c.board(args[0])
	if err != nil {
		return "", err
	}
	var ch int
	if _, err := fmt.Sscan(args[1], &ch); err != nil {
		return "", err
	}
	v, err := pkgcmd.ParseValue(args[2])
	if err != nil {
		return "", err
	}
	if v > device.EncoderPositionMask {
		return "", device.ErrValueRange{What: "encoder preload", Value: v, Max: device.EncoderPositionMask}
	}
	if err := b.SetEncoderPreload(ch, v); err != nil {
		return "", err
	}
	back, err := b.GetEncoderPreload(ch)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("preload 0x%06x\n", back), nil
}

func (c *console) status(args []string) (string, error) {
	s := c.bus.Session
	return fmt.Sprintf("port %s state %s generation %d nodes %d resolutions %d\n",
		c.bus.Port.Kind(), s.State(), s.Generation(), s.NodeCount(), s.Resolutions()), nil
}
