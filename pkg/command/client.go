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

package command

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/imroc/req"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device/amp"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/session"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/srv/control"
)

// ApiClient talks to a running control server
type ApiClient struct {
	*config.Config
	ApiPrefix string
}

func NewApiClient(cfg *config.Config) *ApiClient {
	return &ApiClient{
		Config:    cfg,
		ApiPrefix: fmt.Sprintf("http://%s%s", cfg.Api.Endpoint(), control.ApiPrefix),
	}
}

func check(r *req.Resp) error {
	if r.Response().StatusCode != http.StatusOK {
		msg, _ := r.ToString()
		return errors.New(r.Response().Status + ": " + msg)
	}
	return nil
}

func (c *ApiClient) get(url string, v interface{}) error {
	r, err := req.Get(url)
	if err != nil {
		return err
	}
	if err := check(r); err != nil {
		return err
	}
	return r.ToJSON(v)
}

func (c *ApiClient) post(url string, body interface{}, v interface{}) error {
	r, err := req.Post(url, req.BodyJSON(body))
	if err != nil {
		return err
	}
	if err := check(r); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return r.ToJSON(v)
}

// Boards lists the boards the control server drives
func (c *ApiClient) Boards() ([]int, error) {
	list := &control.BoardList{}
	if err := c.get(c.ApiPrefix+"/boards", list); err != nil {
		return nil, err
	}
	return list.Boards, nil
}

func (c *ApiClient) Scan() ([]session.NodeInfo, error) {
	var nodes []session.NodeInfo
	if err := c.get(c.ApiPrefix+"/scan", &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// QuadRead reads a quadlet, addr is hexadecimal
func (c *ApiClient) QuadRead(board int, addr string) (string, error) {
	quad := &control.QuadHex{}
	if err := c.get(fmt.Sprintf("%s/quad/r/%d/%s", c.ApiPrefix, board, addr), quad); err != nil {
		return "", err
	}
	return quad.Value, nil
}

// QuadReadCached returns the last known value of every quadlet the server touched
func (c *ApiClient) QuadReadCached(board int) (map[string]string, error) {
	var quads []*control.QuadHex
	if err := c.get(fmt.Sprintf("%s/quad/r/%d", c.ApiPrefix, board), &quads); err != nil {
		return nil, err
	}
	result := make(map[string]string)
	for _, q := range quads {
		result[q.Addr] = q.Value
	}
	return result, nil
}

func (c *ApiClient) QuadWrite(board int, addr, value string) error {
	quad := &control.QuadHex{
		Addr:  addr,
		Value: value,
	}
	return c.post(fmt.Sprintf("%s/quad/w/%d", c.ApiPrefix, board), quad, nil)
}

func (c *ApiClient) Snapshot(board int) (*amp.Snapshot, error) {
	snap := &amp.Snapshot{}
	if err := c.get(fmt.Sprintf("%s/board/%d", c.ApiPrefix, board), snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (c *ApiClient) SnapshotAll() ([]*amp.Snapshot, error) {
	var snaps []*amp.Snapshot
	if err := c.get(c.ApiPrefix+"/board", &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

func (c *ApiClient) SetMotorCurrent(board, channel int, value string) error {
	setup := &control.CurrentSetup{
		Channel: channel,
		Value:   value,
	}
	return c.post(fmt.Sprintf("%s/board/%d/current", c.ApiPrefix, board), setup, nil)
}

func (c *ApiClient) SetPower(board int, value string) error {
	return c.post(fmt.Sprintf("%s/board/%d/power", c.ApiPrefix, board), &control.PowerSetup{Value: value}, nil)
}

// DumpFlash makes the server read the flash of a board into its database
func (c *ApiClient) DumpFlash(board, words int) (*control.FlashResult, error) {
	result := &control.FlashResult{}
	if err := c.post(fmt.Sprintf("%s/flash/%d", c.ApiPrefix, board), &control.FlashSetup{Words: words}, result); err != nil {
		return nil, err
	}
	return result, nil
}

// FlashImage downloads the last flash dump of a board, words little endian
func (c *ApiClient) FlashImage(board int) ([]byte, error) {
	r, err := req.Get(fmt.Sprintf("%s/flash/%d", c.ApiPrefix, board))
	if err != nil {
		return nil, err
	}
	if err := check(r); err != nil {
		return nil, err
	}
	return r.ToBytes()
}
