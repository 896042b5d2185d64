package stimulus

import "log"

const queueDepth = 64

// Queue is the outbound command FIFO between the experiment loop and
// the serial worker: multiple producers, single consumer. It is the
// only structure shared between the two execution contexts.
type Queue struct {
	ch chan string
}

func NewQueue() *Queue {
	return &Queue{ch: make(chan string, queueDepth)}
}

// Enqueue never blocks the caller. A full queue means the worker has
// been stalled for dozens of commands already; dropping the command
// with a warning beats jittering the measurement loop.
func (q *Queue) Enqueue(cmd string) {
	select {
	case q.ch <- cmd:
	default:
		log.Printf("stimulus: command queue full, dropping %q", cmd)
	}
}

// Len reports how many commands are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}
