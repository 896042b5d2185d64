package app

import (
	"encoding/json"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/reaction_trainer/internal/order"
	"github.com/relabs-tech/reaction_trainer/internal/recorder"
	"github.com/relabs-tech/reaction_trainer/internal/stimulus"
	"github.com/relabs-tech/reaction_trainer/internal/trial"
)

// SceneEvent is one show/hide command to the rendering rig.
type SceneEvent struct {
	Object  string `json:"object"` // "center", "left", "right"
	Visible bool   `json:"visible"`
}

// mqttScene drives the renderer's three target objects over the scene
// topic. Events are retained so a late-joining renderer picks up the
// current visibility state. With no MQTT client (bench runs) the
// events are only logged.
type mqttScene struct {
	client mqtt.Client
	topic  string
}

func newMQTTScene(client mqtt.Client, topic string) *mqttScene {
	return &mqttScene{client: client, topic: topic}
}

func (s *mqttScene) publish(object string, visible bool) {
	if s.client == nil {
		log.Printf("scene: %s visible=%v (no renderer attached)", object, visible)
		return
	}
	payload, err := json.Marshal(SceneEvent{Object: object, Visible: visible})
	if err != nil {
		log.Printf("scene: marshal error: %v", err)
		return
	}
	if token := s.client.Publish(s.topic, 0, true, payload); token.Wait() && token.Error() != nil {
		log.Printf("scene: publish error: %v", token.Error())
	}
}

func (s *mqttScene) ShowCenter() { s.publish("center", true) }
func (s *mqttScene) HideCenter() { s.publish("center", false) }

func (s *mqttScene) ShowTarget(side order.Side) {
	if side == order.Left {
		s.publish("left", true)
	} else {
		s.publish("right", true)
	}
}

func (s *mqttScene) HideTargets() {
	s.publish("left", false)
	s.publish("right", false)
}

// ReactionEvent carries the reaction-time display state. Valid=false
// clears the display.
type ReactionEvent struct {
	MS    float64 `json:"ms"`
	Valid bool    `json:"valid"`
}

// mqttReactionDisplay publishes the participant-facing reaction-time
// readout. The display collaborator is optional: callers hold it as a
// nil trial.ReactionDisplay when no client is connected.
type mqttReactionDisplay struct {
	client mqtt.Client
	topic  string
}

func newMQTTReactionDisplay(client mqtt.Client, topic string) trial.ReactionDisplay {
	if client == nil {
		return nil
	}
	return &mqttReactionDisplay{client: client, topic: topic}
}

func (d *mqttReactionDisplay) publish(ev ReactionEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("display: marshal error: %v", err)
		return
	}
	if token := d.client.Publish(d.topic, 0, true, payload); token.Wait() && token.Error() != nil {
		log.Printf("display: publish error: %v", token.Error())
	}
}

func (d *mqttReactionDisplay) Show(ms float64) { d.publish(ReactionEvent{MS: ms, Valid: true}) }
func (d *mqttReactionDisplay) Clear()          { d.publish(ReactionEvent{}) }

// queueStimulator turns fire requests into wire commands on the
// outbound queue.
type queueStimulator struct {
	queue *stimulus.Queue
}

func (s queueStimulator) Fire(side order.Side) {
	s.queue.Enqueue(stimulus.FireCommand(side))
}

// trialSink fans completed trials out to durable storage and, when a
// client is connected, to the trial event topic for the monitors.
type trialSink struct {
	rec    *recorder.Recorder
	client mqtt.Client
	topic  string
}

func (s *trialSink) Record(res trial.Result) error {
	log.Printf("experiment: trial %d %s %.2fms", res.Index, res.Side, res.ReactionMS)

	if s.client != nil {
		if payload, err := json.Marshal(res); err != nil {
			log.Printf("experiment: trial marshal error: %v", err)
		} else if token := s.client.Publish(s.topic, 0, false, payload); token.Wait() && token.Error() != nil {
			log.Printf("experiment: trial publish error: %v", token.Error())
		}
	}

	return s.rec.Record(res)
}
