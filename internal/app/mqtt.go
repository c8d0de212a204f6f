package app

import (
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mirror republishes shared-memory records as retained JSON on MQTT. It is
// optional: with no broker, or when the broker is down at startup, every
// publish is a no-op and the daemon keeps working from shared memory.
type mirror struct {
	name   string
	client mqtt.Client
}

func connectMirror(name, broker, clientID string) *mirror {
	m := &mirror{name: name}
	if broker == "" {
		log.Printf("%s: MQTT mirror disabled", name)
		return m
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(3 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("%s: MQTT connect error (mirror off): %v", name, token.Error())
		return m
	}
	log.Printf("%s: connected to MQTT broker at %s", name, broker)
	m.client = client
	return m
}

// Publish sends v as retained JSON on topic.
func (m *mirror) Publish(topic string, v any) {
	if m == nil || m.client == nil || topic == "" {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("%s: json marshal error (%s): %v", m.name, topic, err)
		return
	}
	token := m.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(time.Second) {
		log.Printf("%s: MQTT publish timeout (%s)", m.name, topic)
		return
	}
	if token.Error() != nil {
		log.Printf("%s: MQTT publish error (%s): %v", m.name, topic, token.Error())
	}
}

func (m *mirror) Close() {
	if m == nil || m.client == nil {
		return
	}
	m.client.Disconnect(250)
}
