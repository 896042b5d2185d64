package app

import (
	"encoding/json"
	"log"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/reaction_trainer/internal/stimulus"
)

// stimTuner holds the live stimulation parameters. Operators publish
// replacement values on the tuning topic while a run is in progress;
// the frame loop reads the current set every frame and the change
// detector resends the device configuration on any difference.
type stimTuner struct {
	mu sync.RWMutex
	p  stimulus.Params
}

func newStimTuner(initial stimulus.Params) *stimTuner {
	return &stimTuner{p: initial}
}

func (t *stimTuner) Params() stimulus.Params {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.p
}

func (t *stimTuner) set(p stimulus.Params) {
	t.mu.Lock()
	t.p = p
	t.mu.Unlock()
}

// subscribe listens for parameter edits on the tuning topic.
func (t *stimTuner) subscribe(client mqtt.Client, topic string) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p stimulus.Params
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Printf("tuner: unmarshal error: %v", err)
			return
		}
		t.set(p)
		log.Printf("tuner: stimulation parameters updated: %+v", p)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("tuner: subscribed to %s", topic)
	return nil
}
