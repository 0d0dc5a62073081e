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
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishRecorder struct {
	mu           sync.Mutex
	connectErr   error
	connected    int
	disconnected int
	topics       []string
	payloads     [][]byte
}

func (p *publishRecorder) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected++
	return p.connectErr
}

func (p *publishRecorder) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *publishRecorder) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected++
}

func (p *publishRecorder) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.topics)
}

func TestTelemetryPublishOnce(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.SetMotorCurrent(1, 4, 0x7000))

	pub := &publishRecorder{}
	tm := NewTelemetry(s.Config.Telemetry, pub, s)
	require.NoError(t, tm.PublishOnce())

	assert.Equal(t, []string{"amp1394/board/0", "amp1394/board/1"}, pub.topics)
	msg := &TelemetryMessage{}
	require.NoError(t, json.Unmarshal(pub.payloads[1], msg))
	assert.Positive(t, msg.Time)
	assert.Equal(t, uint8(1), msg.Snapshot.BoardID)
	assert.Equal(t, uint16(0x7000), msg.Snapshot.Channels[4].MotorCurrent)
}

func TestTelemetryRun(t *testing.T) {
	s, _ := newTestServer(t)
	s.Config.Telemetry.PeriodMs = 1

	pub := &publishRecorder{}
	tm := NewTelemetry(s.Config.Telemetry, pub, s)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- tm.Run(ctx)
	}()

	require.Eventually(t, func() bool { return pub.published() >= 4 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, pub.connected)
	assert.Equal(t, 1, pub.disconnected)
}

func TestTelemetryConnectError(t *testing.T) {
	s, _ := newTestServer(t)
	pub := &publishRecorder{connectErr: errors.New("broker down")}
	err := NewTelemetry(s.Config.Telemetry, pub, s).Run(context.Background())
	require.EqualError(t, err, "broker down")
	assert.Equal(t, 0, pub.disconnected)
}
