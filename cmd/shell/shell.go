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
	"github.com/abiosoft/ishell"
	"github.com/spf13/cobra"

	pkgcmd "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/cmd"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/command"
)

const (
	prompt = "amp1394> "
)

type action func(args []string) (string, error)

func wrap(fn action) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		out, err := fn(c.Args)
		if err != nil {
			c.Err(err)
			return
		}
		c.Print(out)
	}
}

func newShell(con *console) *ishell.Shell {
	sh := ishell.New()
	sh.SetPrompt(prompt)
	cmds := []*ishell.Cmd{
		{Name: "scan", Help: "list boards on the bus", Func: wrap(con.scan)},
		{Name: "read", Aliases: []string{"r"}, Help: "BOARD ADDR", Func: wrap(con.read)},
		{Name: "write", Aliases: []string{"w"}, Help: "BOARD ADDR VALUE", Func: wrap(con.write)},
		{Name: "cycle", Aliases: []string{"c"}, Help: "read all boards and print them", Func: wrap(con.cycle)},
		{Name: "current", Help: "BOARD CHANNEL VALUE, then write all boards", Func: wrap(con.current)},
		{Name: "power", Help: "BOARD VALUE", Func: wrap(con.power)},
		{Name: "preload", Help: "BOARD CHANNEL VALUE", Func: wrap(con.preload)},
		{Name: "status", Help: "session state", Func: wrap(con.status)},
	}
	for _, cmd := range cmds {
		sh.AddCmd(cmd)
	}
	return sh
}

// NewCommand opens the bus with the configured boards and starts an
// interactive console. Arguments are run as a single console command.
func NewCommand() *cobra.Command {
	var port string
	var timeout int
	cmd := &cobra.Command{
		Use:   "shell [command args...]",
		Short: "Interactive console to peek and poke boards",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pkgcmd.LoadConfig()
			if err != nil {
				return err
			}
			if err := pkgcmd.ApplyPortOption(cfg, port, timeout); err != nil {
				return err
			}
			ids := make([]uint8, 0, len(cfg.Boards))
			for _, id := range cfg.Boards {
				ids = append(ids, uint8(id))
			}
			bus, err := command.OpenBus(cfg, ids...)
			if err != nil {
				return err
			}
			defer bus.Close()

			sh := newShell(&console{bus: bus})
			if len(args) > 0 {
				return sh.Process(args...)
			}
			sh.Println("Boards", cfg.Boards, "on", cfg.Port)
			sh.Run()
			return nil
		},
	}
	cmd.Flags().StringVar(&port, pkgcmd.PortOptionName, "", "Port, one of fwN, ethN, udp, udp:IP")
	cmd.Flags().IntVar(&timeout, pkgcmd.TimeoutOptionName, 0, "Transaction timeout in milliseconds")
	return cmd
}
