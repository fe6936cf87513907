// Package publish pushes committed snapshot readings to an MQTT broker so a
// home-automation frontend can subscribe to them. Publishing is best effort;
// a broker outage never disturbs the poll loop.
package publish

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ovum-tools/acp-poller/internal/snapshot"
)

// Config selects the broker and topic layout.
type Config struct {
	Broker      string `yaml:"broker"` // host:port
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// mqttClient is the slice of the paho client the publisher uses.
type mqttClient interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher mirrors snapshot commits onto MQTT topics:
//
//	<prefix>/<key>/state   JSON reading, retained
//	<prefix>/availability  "online"/"offline", retained last-will
type Publisher struct {
	client mqttClient
	prefix string
}

// statePayload is the wire form of one reading.
type statePayload struct {
	Value     string    `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Stale     bool      `json:"stale"`
}

// New builds a publisher. Connect must be called before use.
func New(cfg Config) *Publisher {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "ovum"
	}

	opts := paho.NewClientOptions()
	opts.AddBroker("tcp://" + cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetWill(prefix+"/availability", "offline", 1, true)
	opts.SetOnConnectHandler(func(c paho.Client) {
		log.Printf("publish: connected to broker %s", cfg.Broker)
		c.Publish(prefix+"/availability", 1, true, "online")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Printf("publish: broker connection lost: %v", err)
	})

	return &Publisher{client: paho.NewClient(opts), prefix: prefix}
}

// Connect dials the broker once; auto-reconnect takes over afterwards.
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish: connect: %w", token.Error())
	}
	return nil
}

// PublishSnapshot sends every reading of a committed snapshot. Suitable as a
// poller commit hook.
func (p *Publisher) PublishSnapshot(view snapshot.View) {
	for key, r := range view {
		body, err := json.Marshal(statePayload{
			Value:     r.Value.String(),
			Unit:      r.Unit,
			Timestamp: r.Timestamp,
			Stale:     r.Stale,
		})
		if err != nil {
			log.Printf("publish: marshal %s: %v", key, err)
			continue
		}
		// Fire and forget; paho queues while reconnecting.
		p.client.Publish(p.prefix+"/"+key+"/state", 0, true, body)
	}
}

// Close announces offline and disconnects.
func (p *Publisher) Close() {
	p.client.Publish(p.prefix+"/availability", 1, true, "offline")
	p.client.Disconnect(250)
}
