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

package quad

import (
	"github.com/spf13/cobra"

	pkgcmd "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/cmd"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
)

// busFlags are the flags of every command that opens the bus itself
type busFlags struct {
	port    string
	timeout int
	board   string
	addr    string
}

func (f *busFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.port, pkgcmd.PortOptionName, "", "Port, one of fwN, ethN, udp, udp:IP")
	cmd.Flags().IntVar(&f.timeout, pkgcmd.TimeoutOptionName, 0, "Transaction timeout in milliseconds")
	cmd.Flags().StringVar(&f.board, pkgcmd.BoardOptionName, "", "Board id")
	cmd.MarkFlagRequired(pkgcmd.BoardOptionName)
	cmd.Flags().StringVar(&f.addr, pkgcmd.AddrOptionName, "", "Address (hexadecimal)")
	cmd.MarkFlagRequired(pkgcmd.AddrOptionName)
}

func (f *busFlags) parse() (*config.Config, uint8, uint64, error) {
	cfg, err := pkgcmd.LoadConfig()
	if err != nil {
		return nil, 0, 0, err
	}
	if err := pkgcmd.ApplyPortOption(cfg, f.port, f.timeout); err != nil {
		return nil, 0, 0, err
	}
	board, err := pkgcmd.ParseBoard(f.board)
	if err != nil {
		return nil, 0, 0, err
	}
	addr, err := pkgcmd.ParseAddr(f.addr)
	if err != nil {
		return nil, 0, 0, err
	}
	return cfg, board, addr, nil
}

// NewCommand peeks and pokes single quadlets
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quad",
		Short: "Read and write board quadlets",
	}
	cmd.AddCommand(NewReadCommand())
	cmd.AddCommand(NewWriteCommand())
	return cmd
}
