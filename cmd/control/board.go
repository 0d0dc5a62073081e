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
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	pkgcmd "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/cmd"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/command"
)

func NewBoardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Read board state and command currents and power",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show [BOARD]",
		Short: "Run a read cycle and print one or all boards",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pkgcmd.LoadConfig()
			if err != nil {
				return err
			}
			apiClient := command.NewApiClient(cfg)
			var v interface{}
			if len(args) == 1 {
				board, err := boardArg(args)
				if err != nil {
					return err
				}
				if v, err = apiClient.Snapshot(board); err != nil {
					return err
				}
			} else if v, err = apiClient.SnapshotAll(); err != nil {
				return err
			}
			data, err := yaml.Marshal(v)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "current BOARD CHANNEL VALUE",
		Short: "Command a motor current (DAC value, 0x8000 is zero) and write all boards",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pkgcmd.LoadConfig()
			if err != nil {
				return err
			}
			board, err := boardArg(args)
			if err != nil {
				return err
			}
			channel, err := channelArg(args[1])
			if err != nil {
				return err
			}
			return command.NewApiClient(cfg).SetMotorCurrent(board, channel, args[2])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "power BOARD VALUE",
		Short: "Write the power control register",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pkgcmd.LoadConfig()
			if err != nil {
				return err
			}
			board, err := boardArg(args)
			if err != nil {
				return err
			}
			return command.NewApiClient(cfg).SetPower(board, args[1])
		},
	})
	return cmd
}
