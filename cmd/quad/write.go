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
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/command"
)

func NewWriteCommand() *cobra.Command {
	var value string
	flags := &busFlags{}
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write a quadlet",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, board, addr, err := flags.parse()
			if err != nil {
				return err
			}
			v, err := pkgcmd.ParseValue(value)
			if err != nil {
				return err
			}
			return command.QuadWrite(cfg, board, addr, v)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&value, pkgcmd.ValueOptionName, "", "Value (hexadecimal)")
	cmd.MarkFlagRequired(pkgcmd.ValueOptionName)
	return cmd
}
