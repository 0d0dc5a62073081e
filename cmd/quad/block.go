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

	pkgcmd "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/cmd"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/command"
)

const (
	CountOptionName = "count"
)

// NewBlockCommand reads and writes quadlet blocks
func NewBlockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Read and write blocks of quadlets",
	}
	cmd.AddCommand(newBlockReadCommand())
	cmd.AddCommand(newBlockWriteCommand())
	return cmd
}

func newBlockReadCommand() *cobra.Command {
	var count int
	flags := &busFlags{}
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read a block of quadlets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, board, addr, err := flags.parse()
			if err != nil {
				return err
			}
			data, err := command.BlockRead(cfg, board, addr, count)
			if err != nil {
				return err
			}
			for i, v := range data {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d: 0x%08x\n", i, v)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&count, CountOptionName, 1, "Number of quadlets")
	return cmd
}

func newBlockWriteCommand() *cobra.Command {
	var values []string
	flags := &busFlags{}
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write a block of quadlets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, board, addr, err := flags.parse()
			if err != nil {
				return err
			}
			data := make([]uint32, 0, len(values))
			for _, s := range values {
				v, err := pkgcmd.ParseValue(s)
				if err != nil {
					return err
				}
				data = append(data, v)
			}
			return command.BlockWrite(cfg, board, addr, data)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringSliceVar(&values, pkgcmd.ValueOptionName, nil, "Values (hexadecimal), comma separated")
	cmd.MarkFlagRequired(pkgcmd.ValueOptionName)
	return cmd
}
