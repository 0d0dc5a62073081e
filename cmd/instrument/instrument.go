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

package instrument

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	pkgcmd "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/cmd"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/command"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/flash"
)

const (
	OutOptionName         = "out"
	NoSkipBlankOptionName = "no-skip-blank"
)

// NewCommand dumps the flash of a board to a file
func NewCommand() *cobra.Command {
	var port, board, out string
	var timeout, words int
	var noSkipBlank bool
	cmd := &cobra.Command{
		Use:   "instrument",
		Short: "Dump the flash of a board to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pkgcmd.LoadConfig()
			if err != nil {
				return err
			}
			if err := pkgcmd.ApplyPortOption(cfg, port, timeout); err != nil {
				return err
			}
			id, err := pkgcmd.ParseBoard(board)
			if err != nil {
				return err
			}
			opts := flash.OptionsFromConfig(cfg.Flash)
			if words > 0 {
				opts.Words = words
			}
			opts.NoSkipBlank = opts.NoSkipBlank || noSkipBlank
			if out == "" {
				out = fmt.Sprintf("flash-%d.bin", id)
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			stats, err := command.Instrument(ctx, cfg, id, opts, f)
			fmt.Fprintf(cmd.OutOrStdout(), "Read %d of %d words (%d blank) in %s, %.0f words/s, %d resends, saved to %s\n",
				stats.Fetched+stats.Skipped, stats.Words, stats.Skipped, stats.Elapsed, stats.WordsPerSecond(), stats.Resends, out)
			return err
		},
	}
	cmd.Flags().StringVar(&port, pkgcmd.PortOptionName, "", "Port, one of fwN, ethN, udp, udp:IP")
	cmd.Flags().IntVar(&timeout, pkgcmd.TimeoutOptionName, 0, "Transaction timeout in milliseconds")
	cmd.Flags().StringVar(&board, pkgcmd.BoardOptionName, "", "Board id")
	cmd.MarkFlagRequired(pkgcmd.BoardOptionName)
	cmd.Flags().IntVar(&words, pkgcmd.WordsOptionName, 0, "Number of flash words, 0 for the configured length")
	cmd.Flags().StringVar(&out, OutOptionName, "", "Output file, flash-<board>.bin by default")
	cmd.Flags().BoolVar(&noSkipBlank, NoSkipBlankOptionName, false, "Fetch every word of blank blocks")
	return cmd
}
