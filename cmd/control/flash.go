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
	"io/ioutil"

	"github.com/spf13/cobra"

	pkgcmd "lcsr.jhu.edu/mechatronics/go-amp1394/pkg/cmd"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/command"
)

const (
	OutOptionName = "out"
)

func NewFlashCommand() *cobra.Command {
	var words int
	var out string
	cmd := &cobra.Command{
		Use:   "flash BOARD",
		Short: "Dump the flash of a board on the server, optionally download it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pkgcmd.LoadConfig()
			if err != nil {
				return err
			}
			board, err := boardArg(args)
			if err != nil {
				return err
			}
			apiClient := command.NewApiClient(cfg)
			result, err := apiClient.DumpFlash(board, words)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Read %d words (%d blank) in %s, %.0f words/s\n",
				result.Fetched+result.Skipped, result.Skipped, result.Elapsed, result.WordsPerSecond)
			if out == "" {
				return nil
			}
			image, err := apiClient.FlashImage(board)
			if err != nil {
				return err
			}
			return ioutil.WriteFile(out, image, 0644)
		},
	}
	cmd.Flags().IntVar(&words, pkgcmd.WordsOptionName, 0, "Number of flash words, 0 for the configured length")
	cmd.Flags().StringVar(&out, OutOptionName, "", "Download the image to this file")
	return cmd
}
