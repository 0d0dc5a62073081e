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

package sim

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/command"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/layers"
)

const (
	AddressOptionName    = "address"
	BoardsOptionName     = "boards"
	FlashWordsOptionName = "flash-words"
)

// NewCommand serves simulated boards to udp ports
func NewCommand() *cobra.Command {
	var address string
	var boards []int
	var flashWords int
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Simulate boards behind an Ethernet bridge on UDP",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range boards {
				if id < 0 || id >= config.MaxBoards {
					return fmt.Errorf("board id %d out of range", id)
				}
			}
			// a counting pattern makes dumps easy to check
			words := make([]uint16, flashWords)
			for i := range words {
				words[i] = uint16(i)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return command.ServeSim(ctx, address, boards, words)
		},
	}
	cmd.Flags().StringVar(&address, AddressOptionName,
		net.JoinHostPort("127.0.0.1", strconv.Itoa(layers.UdpPort)), "Address to listen on")
	cmd.Flags().IntSliceVar(&boards, BoardsOptionName, []int{0, 1}, "Simulated board ids")
	cmd.Flags().IntVar(&flashWords, FlashWordsOptionName, 0x1000, "Programmed flash words per board")
	return cmd
}
