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

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"lcsr.jhu.edu/mechatronics/go-amp1394/cmd/completion"
	"lcsr.jhu.edu/mechatronics/go-amp1394/cmd/config"
	"lcsr.jhu.edu/mechatronics/go-amp1394/cmd/control"
	"lcsr.jhu.edu/mechatronics/go-amp1394/cmd/discover"
	"lcsr.jhu.edu/mechatronics/go-amp1394/cmd/instrument"
	"lcsr.jhu.edu/mechatronics/go-amp1394/cmd/quad"
	"lcsr.jhu.edu/mechatronics/go-amp1394/cmd/shell"
	"lcsr.jhu.edu/mechatronics/go-amp1394/cmd/sim"
	pkgconfig "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/log"
)

const (
	LogLevelOptionName = "log-level"
)

func NewRootCommand(out io.Writer) *cobra.Command {
	var logLevel string
	cfg := pkgconfig.NewDefaultConfig()
	cfg.LoadConfig()
	cmd := &cobra.Command{
		Use:          "amp1394",
		Short:        "Tool to work with FPGA motor amplifier boards over IEEE-1394 and Ethernet",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := log.SetLevel(cfg.LogLevel); err != nil {
				return err
			}
			log.Init(cmd.ErrOrStderr(), cfg.LogLevel)
			return nil
		},
	}
	cmd.SetOut(out)
	cmd.AddCommand(config.NewCommand())
	cmd.AddCommand(control.NewCommand())
	cmd.AddCommand(discover.NewCommand())
	cmd.AddCommand(quad.NewCommand())
	cmd.AddCommand(quad.NewBlockCommand())
	cmd.AddCommand(instrument.NewCommand())
	cmd.AddCommand(sim.NewCommand())
	cmd.AddCommand(shell.NewCommand())
	cmd.AddCommand(completion.NewCommand())
	cmd.PersistentFlags().StringVar(&logLevel, LogLevelOptionName, "", fmt.Sprintf("Log level. %s", log.HelpLevels))
	return cmd
}
