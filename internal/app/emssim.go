package app

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"go.bug.st/serial"

	"github.com/relabs-tech/reaction_trainer/internal/config"
	"github.com/relabs-tech/reaction_trainer/internal/firmware"
)

// RunEMSSimulator stands in for the stimulation microcontroller: it
// reads newline-delimited commands from the device side of the wire
// and executes them against the firmware model, logging each pulse
// train instead of toggling electrodes. With no port configured it
// reads from stdin, which makes interactive bench testing trivial.
func RunEMSSimulator(portName string, baudRate int) error {
	cfg := config.Get()

	var in io.Reader
	if portName == "" {
		log.Println("emssim: no port given, reading commands from stdin")
		in = os.Stdin
	} else {
		mode := &serial.Mode{BaudRate: baudRate}
		port, err := serial.Open(portName, mode)
		if err != nil {
			return fmt.Errorf("open %s: %w", portName, err)
		}
		defer port.Close()
		log.Printf("emssim: listening on %s at %d baud", portName, baudRate)
		in = port
	}

	dev := firmware.New()
	dev.PulseWidthUS = cfg.PulseWidthUS
	dev.PulseCount = cfg.PulseCount
	dev.BurstCount = cfg.BurstCount
	dev.PulseIntervalUS = cfg.PulseIntervalUS

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		side, train, err := dev.Exec(line, time.Now())
		if err != nil {
			log.Printf("emssim: %v", err)
			continue
		}

		switch {
		case train != nil:
			total := firmware.TrainDuration(train)
			log.Printf("emssim: FIRE %c: %d reps x %d cycles, width %dus, interval %dus, total %v",
				side, dev.PulseCount, dev.BurstCount, dev.PulseWidthUS, dev.PulseIntervalUS, total)
			// The real firmware busy-drives GPIO here; sleeping through
			// the schedule keeps the simulator's timing honest.
			time.Sleep(total)
		case side != 0:
			log.Printf("emssim: fire %c ignored (cooldown)", side)
		default:
			log.Printf("emssim: config %q -> W%d C%d B%d I%d",
				line, dev.PulseWidthUS, dev.PulseCount, dev.BurstCount, dev.PulseIntervalUS)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read commands: %w", err)
	}
	return nil
}
