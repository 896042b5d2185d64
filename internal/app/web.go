package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/reaction_trainer/internal/config"
	"github.com/relabs-tech/reaction_trainer/internal/stimulus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// RunWeb serves the experimenter's dashboard: the latest run state
// over a JSON endpoint and a WebSocket push channel, plus a POST
// endpoint that forwards live stimulation-parameter edits onto the
// tuning topic.
func RunWeb() error {
	cfg := config.Get()

	var (
		mu        sync.RWMutex
		lastState []byte
		lastTrial []byte
	)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	stateToken := client.Subscribe(cfg.TopicState, 0, func(_ mqtt.Client, msg mqtt.Message) {
		mu.Lock()
		lastState = append([]byte(nil), msg.Payload()...)
		mu.Unlock()
	})
	stateToken.Wait()
	if stateToken.Error() != nil {
		return stateToken.Error()
	}

	trialToken := client.Subscribe(cfg.TopicTrial, 0, func(_ mqtt.Client, msg mqtt.Message) {
		mu.Lock()
		lastTrial = append([]byte(nil), msg.Payload()...)
		mu.Unlock()
	})
	trialToken.Wait()
	if trialToken.Error() != nil {
		return trialToken.Error()
	}
	log.Printf("web: subscribed to %s and %s", cfg.TopicState, cfg.TopicTrial)

	// Latest run state as JSON
	http.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		defer mu.RUnlock()

		if lastState == nil {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(lastState)
	})

	// Live stimulation parameter edit -> tuning topic
	http.HandleFunc("/api/stimulation", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		var p stimulus.Params
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, fmt.Sprintf("bad parameters: %v", err), http.StatusBadRequest)
			return
		}
		payload, err := json.Marshal(p.Clamped())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if token := client.Publish(cfg.TopicTune, 0, false, payload); token.Wait() && token.Error() != nil {
			http.Error(w, token.Error().Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	// WebSocket push: state and latest trial at 10Hz
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for range ticker.C {
			mu.RLock()
			state := lastState
			trial := lastTrial
			mu.RUnlock()

			if state == nil {
				continue
			}
			frame := map[string]json.RawMessage{"state": state}
			if trial != nil {
				frame["trial"] = trial
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	})

	// Static files from ./web as the root
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: dashboard listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
