// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/reaction_trainer/internal/config"
	"github.com/relabs-tech/reaction_trainer/internal/trial"
)

// RunMonitor tails the live experiment over MQTT and prints trial
// results and state changes to the console.
func RunMonitor() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDMonitor)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("monitor: connected to MQTT broker at %s", cfg.MQTTBroker)

	trialToken := client.Subscribe(cfg.TopicTrial, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var res trial.Result
		if err := json.Unmarshal(msg.Payload(), &res); err != nil {
			log.Printf("monitor: trial unmarshal error: %v", err)
			return
		}
		fmt.Printf("[TRIAL] #%-3d %-5s RT=%7.2fms\n", res.Index, res.SideLabel, res.ReactionMS)
	})
	trialToken.Wait()
	if trialToken.Error() != nil {
		return trialToken.Error()
	}
	log.Printf("monitor: subscribed to %s", cfg.TopicTrial)

	var lastState string
	stateToken := client.Subscribe(cfg.TopicState, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var st RunState
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			log.Printf("monitor: state unmarshal error: %v", err)
			return
		}
		if st.State == lastState {
			return
		}
		lastState = st.State
		fmt.Printf("[STATE] %-14s trial %d/%d\n", st.State, st.Completed, st.MaxTrials)
	})
	stateToken.Wait()
	if stateToken.Error() != nil {
		return stateToken.Error()
	}
	log.Printf("monitor: subscribed to %s", cfg.TopicState)

	// Block until interrupted
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("monitor: shutting down")
	return nil
}
