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
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device/amp"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/log"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/srv"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/srv/control/ifc"
)

// MqttPublisher publishes telemetry to an MQTT broker
type MqttPublisher struct {
	Client paho.Client
}

var _ ifc.Publisher = &MqttPublisher{}

func NewMqttPublisher(cfg *config.TelemetryConfig) *MqttPublisher {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warning("Telemetry broker connection lost: %s", err)
		})
	return &MqttPublisher{Client: paho.NewClient(opts)}
}

func (p *MqttPublisher) Connect() error {
	token := p.Client.Connect()
	token.Wait()
	return token.Error()
}

func (p *MqttPublisher) Publish(topic string, payload []byte) error {
	token := p.Client.Publish(topic, 0, false, payload)
	token.Wait()
	return token.Error()
}

func (p *MqttPublisher) Disconnect() {
	p.Client.Disconnect(250)
}

// TelemetryMessage is the payload published for every board each period
type TelemetryMessage struct {
	// Time is unix time in milliseconds
	Time     uint64        `json:"time"`
	Snapshot *amp.Snapshot `json:"snapshot"`
}

// Telemetry reads all boards every period and publishes one message per
// board to <topic>/board/<id>.
type Telemetry struct {
	cfg  *config.TelemetryConfig
	pub  ifc.Publisher
	ctrl ifc.ControlServer
}

func NewTelemetry(cfg *config.TelemetryConfig, pub ifc.Publisher, ctrl ifc.ControlServer) *Telemetry {
	return &Telemetry{
		cfg:  cfg,
		pub:  pub,
		ctrl: ctrl,
	}
}

func (t *Telemetry) Topic(boardID uint8) string {
	return fmt.Sprintf(t.cfg.Topic+TelemetryBoardTopic, boardID)
}

// PublishOnce runs one read cycle and publishes its snapshots
func (t *Telemetry) PublishOnce() error {
	snaps, err := t.ctrl.SnapshotAll()
	if err != nil {
		return err
	}
	now := srv.Now()
	for _, snap := range snaps {
		payload, err := json.Marshal(&TelemetryMessage{Time: now, Snapshot: snap})
		if err != nil {
			return err
		}
		if err := t.pub.Publish(t.Topic(snap.BoardID), payload); err != nil {
			return err
		}
	}
	return nil
}

// Run publishes until ctx is done. A failed cycle is logged and the next
// one runs on schedule.
func (t *Telemetry) Run(ctx context.Context) error {
	log.Info("Publishing telemetry to %s every %s", t.cfg.Broker, t.cfg.Period())
	if err := t.pub.Connect(); err != nil {
		return err
	}
	defer t.pub.Disconnect()

	ticker := time.NewTicker(t.cfg.Period())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := t.PublishOnce(); err != nil {
				log.Warning("Telemetry cycle failed: %s", err)
			}
		}
	}
}
