package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/dieface/internal/config"
	"github.com/relabs-tech/dieface/internal/gesture"
	"github.com/relabs-tech/dieface/internal/gps"
	"github.com/relabs-tech/dieface/internal/orientation"
)

// RunConsoleMQTT prints the MQTT mirror of every record until ctx is done.
func RunConsoleMQTT(ctx context.Context) error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	subs := []struct {
		topic  string
		handle func(payload []byte) (string, error)
	}{
		{cfg.TopicOrientation, func(b []byte) (string, error) {
			var r orientation.Record
			err := json.Unmarshal(b, &r)
			return formatOrientation(r), err
		}},
		{cfg.TopicDieEvent, func(b []byte) (string, error) {
			var e gesture.DieEvent
			err := json.Unmarshal(b, &e)
			return formatDieEvent(e), err
		}},
		{cfg.TopicGPS, func(b []byte) (string, error) {
			var f gps.Fix
			err := json.Unmarshal(b, &f)
			return formatFix(f), err
		}},
	}

	for _, s := range subs {
		s := s
		token := client.Subscribe(s.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			line, err := s.handle(msg.Payload())
			if err != nil {
				log.Printf("console: %s unmarshal error: %v", s.topic, err)
				return
			}
			fmt.Println(line)
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("console: subscribed to %s", s.topic)
	}

	<-ctx.Done()
	log.Println("console: shutting down")
	return nil
}
