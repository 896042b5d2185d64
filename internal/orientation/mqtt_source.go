package orientation

import (
	"encoding/json"
	"errors"
	"log"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNoPose is returned by an MQTT source before the tracker has
// published its first pose.
var ErrNoPose = errors.New("orientation: no pose received yet")

type mqttSource struct {
	mu   sync.RWMutex
	pose Pose
	have bool
}

// NewMQTTSource subscribes to the head tracker's pose topic and serves
// the most recent pose. Next returns ErrNoPose until the first message
// arrives; after that it always returns the latest published pose.
func NewMQTTSource(client mqtt.Client, topic string) (Source, error) {
	s := &mqttSource{}

	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p Pose
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Printf("orientation: pose unmarshal error: %v", err)
			return
		}
		s.mu.Lock()
		s.pose = p
		s.have = true
		s.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return nil, token.Error()
	}
	log.Printf("orientation: subscribed to %s", topic)

	return s, nil
}

func (s *mqttSource) Next() (Pose, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.have {
		return Pose{}, ErrNoPose
	}
	return s.pose, nil
}
