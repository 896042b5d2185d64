package app

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/reaction_trainer/internal/config"
	"github.com/relabs-tech/reaction_trainer/internal/order"
	"github.com/relabs-tech/reaction_trainer/internal/orientation"
	"github.com/relabs-tech/reaction_trainer/internal/recorder"
	"github.com/relabs-tech/reaction_trainer/internal/stimulus"
	"github.com/relabs-tech/reaction_trainer/internal/trial"
)

// RunState is the live state snapshot published on the state topic.
type RunState struct {
	State     string  `json:"state"`
	Completed int     `json:"completed"`
	MaxTrials int     `json:"max_trials"`
	Side      string  `json:"side"`
	Yaw       float64 `json:"yaw"`
}

// RunExperiment wires the whole rig together and drives the trial
// state machine from the frame loop until the run completes or the
// process is interrupted.
func RunExperiment() error {
	cfg := config.Get()

	// --- stimulation device transport ---
	// A missing or unopenable device is non-fatal: the run continues
	// in simulation mode and fire commands are dropped downstream.
	var tr stimulus.Transport
	switch {
	case cfg.SerialPort == "":
		log.Println("experiment: no serial port configured, running in simulation mode")
		tr = stimulus.NoopTransport()
	default:
		t, err := stimulus.OpenSerial(cfg.SerialPort, cfg.SerialBaud)
		if err != nil {
			log.Printf("experiment: WARNING: cannot open %s (%v), running in simulation mode", cfg.SerialPort, err)
			tr = stimulus.NoopTransport()
		} else {
			log.Printf("experiment: stimulation device on %s at %d baud", cfg.SerialPort, cfg.SerialBaud)
			tr = t
		}
	}

	queue := stimulus.NewQueue()
	worker := stimulus.NewLinkWorker(queue, tr)
	worker.Start()

	// --- MQTT ---
	var client mqtt.Client
	if cfg.MQTTBroker != "" {
		opts := mqtt.NewClientOptions().
			AddBroker(cfg.MQTTBroker).
			SetClientID(cfg.MQTTClientIDExperiment)

		c := mqtt.NewClient(opts)
		if token := c.Connect(); token.Wait() && token.Error() != nil {
			if cfg.PoseSource == "mqtt" {
				// The head tracker arrives over MQTT; without it the
				// experiment cannot proceed meaningfully.
				worker.Stop()
				return fmt.Errorf("MQTT connect: %w", token.Error())
			}
			log.Printf("experiment: WARNING: MQTT connect error: %v, telemetry disabled", token.Error())
		} else {
			log.Printf("experiment: connected to MQTT broker at %s", cfg.MQTTBroker)
			client = c
		}
	}

	// --- pose input (required collaborator) ---
	var src orientation.Source
	switch cfg.PoseSource {
	case "mock":
		log.Println("experiment: using mock orientation source")
		src = orientation.NewMockSource()
	case "mqtt":
		s, err := orientation.NewMQTTSource(client, cfg.TopicPose)
		if err != nil {
			worker.Stop()
			return fmt.Errorf("subscribe pose topic: %w", err)
		}
		src = s
	default:
		worker.Stop()
		return fmt.Errorf("unknown POSE_SOURCE %q", cfg.PoseSource)
	}

	// --- recorder ---
	rec, err := recorder.New(cfg, time.Now())
	if err != nil {
		worker.Stop()
		return fmt.Errorf("open recorder: %w", err)
	}
	log.Printf("experiment: recording to %s", rec.Path())

	// --- trial machine ---
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	trialOrder := order.Generate(cfg.MaxTrials, cfg.Balanced, rng)

	machine, err := trial.NewMachine(trial.Params{
		MaxTrials:          cfg.MaxTrials,
		EMSEnabled:         cfg.EMSEnabled,
		AngleThresholdDeg:  cfg.AngleThresholdDeg,
		CenterThresholdDeg: cfg.CenterThresholdDeg,
		MinWaitSec:         cfg.MinWaitSec,
		MaxWaitSec:         cfg.MaxWaitSec,
		StimOffsetLeftSec:  cfg.StimOffsetLeftSec,
		StimOffsetRightSec: cfg.StimOffsetRightSec,
	}, trial.Deps{
		Scene:   newMQTTScene(client, cfg.TopicScene),
		Stim:    queueStimulator{queue: queue},
		Sink:    &trialSink{rec: rec, client: client, topic: cfg.TopicTrial},
		Display: newMQTTReactionDisplay(client, cfg.TopicReaction),
		Order:   trialOrder,
		RNG:     rng,
	})
	if err != nil {
		rec.Close()
		worker.Stop()
		return err
	}

	// --- live stimulation tuning ---
	tuner := newStimTuner(stimulus.Params{
		PulseWidthUS:    cfg.PulseWidthUS,
		PulseCount:      cfg.PulseCount,
		BurstCount:      cfg.BurstCount,
		PulseIntervalUS: cfg.PulseIntervalUS,
	})
	if client != nil {
		if err := tuner.subscribe(client, cfg.TopicTune); err != nil {
			log.Printf("experiment: WARNING: tuning subscription failed: %v", err)
		}
	}
	detector := stimulus.NewConfigChangeDetector(queue)

	// Cleanup must run exactly once, on both graceful completion and
	// SIGINT/SIGTERM, and in this order: worker first so the last
	// commands drain, recorder second so the summary lands on disk.
	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			worker.Stop()
			if err := rec.Close(); err != nil {
				log.Printf("experiment: recorder close error: %v", err)
			}
			if client != nil {
				client.Disconnect(250)
			}
		})
	}
	defer cleanup()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	machine.Start()
	log.Printf("experiment: starting run, subject=%s maxTrials=%d balanced=%v ems=%v",
		cfg.SubjectID, cfg.MaxTrials, cfg.Balanced, cfg.EMSEnabled)

	ticker := time.NewTicker(time.Duration(cfg.FrameIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	waitingForPose := true
	for {
		select {
		case <-sigCh:
			log.Println("experiment: interrupted, shutting down")
			cleanup()
			return nil

		case now := <-ticker.C:
			// The device configuration is synchronized before the
			// first trial and re-synchronized on any live edit.
			detector.Check(tuner.Params())

			pose, err := src.Next()
			if err != nil {
				if waitingForPose {
					log.Printf("experiment: waiting for pose: %v", err)
					waitingForPose = false
				}
				continue
			}
			waitingForPose = false

			machine.Update(now, pose.Yaw)
			publishState(client, cfg.TopicState, machine, cfg.MaxTrials, pose)

			if machine.Done() {
				log.Printf("experiment: run finished, %d trials recorded in %s",
					machine.Completed(), rec.Path())
				cleanup()
				return nil
			}
		}
	}
}

func publishState(client mqtt.Client, topic string, m *trial.Machine, maxTrials int, pose orientation.Pose) {
	if client == nil {
		return
	}
	state := RunState{
		State:     m.State().String(),
		Completed: m.Completed(),
		MaxTrials: maxTrials,
		Side:      m.CurrentSide().String(),
		Yaw:       pose.Yaw,
	}

	payload, err := json.Marshal(state)
	if err != nil {
		log.Printf("experiment: state marshal error: %v", err)
		return
	}
	client.Publish(topic, 0, true, payload)
}
