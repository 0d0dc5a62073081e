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
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	pkgcmd "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/cmd"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/command"
)

func NewQuadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quad",
		Short: "Read and write quadlets through the control server",
	}
	cmd.AddCommand(NewQuadReadCommand())
	cmd.AddCommand(NewQuadWriteCommand())
	return cmd
}

func NewQuadReadCommand() *cobra.Command {
	var board int
	var addr string
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read a quadlet, or list the cached ones when no address is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pkgcmd.LoadConfig()
			if err != nil {
				return err
			}
			apiClient := command.NewApiClient(cfg)
			out := cmd.OutOrStdout()
			if addr != "" {
				value, err := apiClient.QuadRead(board, addr)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Quadlet: %s = %s\n", addr, value)
				return nil
			}
			quads, err := apiClient.QuadReadCached(board)
			if err != nil {
				return err
			}
			var keys []string
			for key := range quads {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintf(out, "Quadlet: %s = %s\n", key, quads[key])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&board, pkgcmd.BoardOptionName, 0, "Board id")
	cmd.MarkFlagRequired(pkgcmd.BoardOptionName)
	cmd.Flags().StringVar(&addr, pkgcmd.AddrOptionName, "", "Quadlet address (hexadecimal)")

	return cmd
}

func NewQuadWriteCommand() *cobra.Command {
	var board int
	var addr, value string
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write a quadlet",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pkgcmd.LoadConfig()
			if err != nil {
				return err
			}
			return command.NewApiClient(cfg).QuadWrite(board, addr, value)
		},
	}
	cmd.Flags().IntVar(&board, pkgcmd.BoardOptionName, 0, "Board id")
	cmd.MarkFlagRequired(pkgcmd.BoardOptionName)
	cmd.Flags().StringVar(&addr, pkgcmd.AddrOptionName, "", "Quadlet address (hexadecimal)")
	cmd.MarkFlagRequired(pkgcmd.AddrOptionName)
	cmd.Flags().StringVar(&value, pkgcmd.ValueOptionName, "", "Quadlet value (hexadecimal)")
	cmd.MarkFlagRequired(pkgcmd.ValueOptionName)

	return cmd
}

func boardArg(args []string) (int, error) {
	id, err := pkgcmd.ParseBoard(args[0])
	return int(id), err
}

func channelArg(s string) (int, error) {
	return strconv.Atoi(s)
}
