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
	"fmt"

	"github.com/spf13/cobra"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/command"
)

func NewReadCommand() *cobra.Command {
	flags := &busFlags{}
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read a quadlet",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, board, addr, err := flags.parse()
			if err != nil {
				return err
			}
			value, err := command.QuadRead(cfg, board, addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "0x%04x: 0x%08x\n", addr, value)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
