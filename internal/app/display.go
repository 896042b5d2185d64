package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/reaction_trainer/internal/config"
)

// displayData holds the latest values shown on the rig's OLED.
type displayData struct {
	mu sync.RWMutex

	state     RunState
	haveState bool

	reaction     ReactionEvent
	haveReaction bool
}

// RunDisplay drives the small SSD1306 status display on the rig
// frame: current run state, yaw, and the last reaction time.
func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Println("display: initialized")

	data := &displayData{}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	stateToken := client.Subscribe(cfg.TopicState, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var st RunState
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			log.Printf("display: state unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.state = st
		data.haveState = true
		data.mu.Unlock()
	})
	stateToken.Wait()
	if stateToken.Error() != nil {
		return stateToken.Error()
	}

	reactToken := client.Subscribe(cfg.TopicReaction, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var ev ReactionEvent
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			log.Printf("display: reaction unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.reaction = ev
		data.haveReaction = true
		data.mu.Unlock()
	})
	reactToken.Wait()
	if reactToken.Error() != nil {
		return reactToken.Error()
	}
	log.Printf("display: subscribed to %s and %s", cfg.TopicState, cfg.TopicReaction)

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		st := data.state
		haveState := data.haveState
		reaction := data.reaction
		haveReaction := data.haveReaction
		data.mu.RUnlock()

		if err := drawStatus(dev, st, haveState, reaction, haveReaction); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}

func drawStatus(dev *ssd1306.Dev, st RunState, haveState bool, reaction ReactionEvent, haveReaction bool) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	if !haveState {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Reaction rig"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return dev.Draw(dev.Bounds(), img, image.Point{})
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(st.State))

	drawer.Dot = fixed.P(0, 26)
	drawer.DrawBytes([]byte(fmt.Sprintf("Trial %d/%d", st.Completed, st.MaxTrials)))

	drawer.Dot = fixed.P(0, 39)
	drawer.DrawBytes([]byte(fmt.Sprintf("Yaw %6.1f", st.Yaw)))

	drawer.Dot = fixed.P(0, 52)
	if haveReaction && reaction.Valid {
		drawer.DrawBytes([]byte(fmt.Sprintf("RT %7.2fms", reaction.MS)))
	} else {
		drawer.DrawBytes([]byte("RT    --"))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
