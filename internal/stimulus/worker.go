package stimulus

import (
	"io"
	"log"
	"sync"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
)

// Transport is the experiment's end of the wire to the stimulation
// device.
type Transport interface {
	io.Writer
	io.Closer
}

type noopTransport struct{}

func (noopTransport) Write(p []byte) (int, error) { return len(p), nil }
func (noopTransport) Close() error                { return nil }

// NoopTransport swallows every command. It is what the experiment
// runs on when no device is attached ("simulation mode").
func NoopTransport() Transport {
	return noopTransport{}
}

// OpenSerial opens the stimulation device port.
func OpenSerial(portName string, baudRate uint) (Transport, error) {
	opts := serial.OpenOptions{
		PortName:        portName,
		BaudRate:        baudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
	return serial.Open(opts)
}

const joinTimeout = 500 * time.Millisecond

// LinkWorker owns the transport and drains the command queue onto it
// from a dedicated goroutine, so the experiment loop never touches
// serial I/O. Write errors are logged and the command dropped; the
// device treats each line independently, so there is nothing to retry.
type LinkWorker struct {
	queue *Queue
	tr    Transport

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewLinkWorker(q *Queue, tr Transport) *LinkWorker {
	return &LinkWorker{
		queue: q,
		tr:    tr,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the transmit loop.
func (w *LinkWorker) Start() {
	go w.loop()
}

func (w *LinkWorker) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case cmd := <-w.queue.ch:
			if _, err := io.WriteString(w.tr, cmd+"\n"); err != nil {
				log.Printf("stimulus: transmit %q failed: %v", cmd, err)
			}
		}
	}
}

// Stop signals the loop, waits for it with a bounded timeout (a write
// may be in flight on a wedged port), then closes the transport. Safe
// to call more than once; Stop runs on both graceful completion and
// abrupt termination.
func (w *LinkWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		select {
		case <-w.done:
		case <-time.After(joinTimeout):
			log.Printf("stimulus: worker did not stop within %v", joinTimeout)
		}
		if err := w.tr.Close(); err != nil {
			log.Printf("stimulus: transport close error: %v", err)
		}
	})
}
