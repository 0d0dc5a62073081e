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
	"fmt"

	"github.com/spf13/cobra"

	pkgcmd "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/cmd"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/command"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
)

const (
	ApiAddressOptionName = "api-address"
	BoardsOptionName     = "boards"
)

func NewStartCommand() *cobra.Command {
	var apiAddress, port string
	var boards []int
	var timeout int
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start control server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pkgcmd.LoadConfig()
			if err != nil {
				return err
			}
			if err := pkgcmd.ApplyPortOption(cfg, port, timeout); err != nil {
				return err
			}
			if apiAddress != "" {
				cfg.Api.Address = apiAddress
			}
			if len(boards) > 0 {
				cfg.Boards = boards
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return command.StartControlServer(cfg)
		},
	}
	cmd.Flags().StringVar(&apiAddress, ApiAddressOptionName, "", fmt.Sprintf("IP to bind the API to. E.g. %s", config.DefaultApiAddress))
	cmd.Flags().StringVar(&port, pkgcmd.PortOptionName, "", "Port, one of fwN, ethN, udp, udp:IP")
	cmd.Flags().IntVar(&timeout, pkgcmd.TimeoutOptionName, 0, "Transaction timeout in milliseconds")
	cmd.Flags().IntSliceVar(&boards, BoardsOptionName, nil, "Board ids of the session, e.g. 0,1")

	return cmd
}
