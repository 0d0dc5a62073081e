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

package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	pkgcmd "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/cmd"
	pkgconfig "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
)

const (
	OverwriteOptionName = "overwrite"
	BoardsOptionName    = "boards"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(NewInitCommand())
	cmd.AddCommand(NewShowCommand())
	return cmd
}

func NewInitCommand() *cobra.Command {
	var overwrite bool
	var port string
	var boards []int
	cmd := &cobra.Command{
		Use:   "init",
		Short: fmt.Sprintf("Write the default configuration to %s", pkgconfig.DefaultConfigPath()),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := pkgconfig.NewDefaultConfig()
			if err := pkgcmd.ApplyPortOption(cfg, port, 0); err != nil {
				return err
			}
			cfg.Boards = append(cfg.Boards, boards...)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Persist(overwrite); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", cfg.Path())
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, OverwriteOptionName, false, "Overwrite an existing configuration file")
	cmd.Flags().StringVar(&port, pkgcmd.PortOptionName, "", "Port, one of fwN, ethN, udp, udp:IP")
	cmd.Flags().IntSliceVar(&boards, BoardsOptionName, nil, "Board ids of the session, e.g. 0,1")
	return cmd
}

func NewShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pkgcmd.LoadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	return cmd
}
