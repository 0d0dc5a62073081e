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

package discover

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	pkgcmd "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/cmd"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/command"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/session"
)

func NewCommand() *cobra.Command {
	var port string
	var timeout int
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List the boards on the bus with their hardware and firmware versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pkgcmd.LoadConfig()
			if err != nil {
				return err
			}
			if err := pkgcmd.ApplyPortOption(cfg, port, timeout); err != nil {
				return err
			}
			nodes, err := command.Discover(cfg)
			if err != nil {
				return err
			}
			return printNodes(cmd.OutOrStdout(), nodes)
		},
	}
	cmd.Flags().StringVar(&port, pkgcmd.PortOptionName, "", "Port, one of fwN, ethN, udp, udp:IP")
	cmd.Flags().IntVar(&timeout, pkgcmd.TimeoutOptionName, 0, "Transaction timeout in milliseconds")
	cmd.AddCommand(NewListCommand())
	return cmd
}

func printNodes(out io.Writer, nodes []session.NodeInfo) error {
	if len(nodes) == 0 {
		fmt.Fprintln(out, "No boards found")
		return nil
	}
	data, err := yaml.Marshal(nodes)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}
