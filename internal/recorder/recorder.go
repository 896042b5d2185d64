package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/relabs-tech/reaction_trainer/internal/config"
	"github.com/relabs-tech/reaction_trainer/internal/order"
	"github.com/relabs-tech/reaction_trainer/internal/trial"
)

// Recorder persists one experiment run: a settings header, one row
// per completed trial synced to disk immediately, and a summary block
// on close. The file format is what the downstream analysis scripts
// parse, so the markers and the column header are load-bearing.
type Recorder struct {
	f      *os.File
	path   string
	left   []float64
	right  []float64
	closed bool
}

// New creates the output directory if absent, creates the run file
// named after the subject, EMS state and start time, and writes the
// settings block.
func New(cfg *config.Config, start time.Time) (*Recorder, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	tag := "EMS_OFF"
	if cfg.EMSEnabled {
		tag = "EMS_ON"
	}
	name := fmt.Sprintf("Data_%s_%s_%s.csv", cfg.SubjectID, tag, start.Format("20060102_150405"))
	path := filepath.Join(cfg.OutputDir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create run file: %w", err)
	}

	r := &Recorder{f: f, path: path}
	if err := r.writeHeader(cfg); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Path returns the run file's location.
func (r *Recorder) Path() string { return r.path }

func (r *Recorder) writeHeader(cfg *config.Config) error {
	if _, err := fmt.Fprintln(r.f, "--- Settings ---"); err != nil {
		return fmt.Errorf("write settings header: %w", err)
	}
	for _, row := range cfg.Settings() {
		if _, err := fmt.Fprintf(r.f, "%s,%s\n", row[0], row[1]); err != nil {
			return fmt.Errorf("write setting %s: %w", row[0], err)
		}
	}
	if _, err := fmt.Fprintf(r.f, "\nTrial,Direction,ReactionTime(ms),Timestamp\n"); err != nil {
		return fmt.Errorf("write column header: %w", err)
	}
	return r.f.Sync()
}

// Record appends one trial row and syncs it to disk so an abrupt
// termination loses nothing.
func (r *Recorder) Record(res trial.Result) error {
	if r.closed {
		return fmt.Errorf("recorder already closed")
	}

	ts := res.Timestamp.Format("15:04:05.000")
	if _, err := fmt.Fprintf(r.f, "%d,%s,%.2f,%s\n", res.Index, res.Side, res.ReactionMS, ts); err != nil {
		return fmt.Errorf("write trial %d: %w", res.Index, err)
	}

	if res.Side == order.Left {
		r.left = append(r.left, res.ReactionMS)
	} else {
		r.right = append(r.right, res.ReactionMS)
	}

	return r.f.Sync()
}

func summaryLine(label string, samples []float64) string {
	if len(samples) == 0 {
		return fmt.Sprintf("%s,N/A,n=0", label)
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return fmt.Sprintf("%s,%.2f,n=%d", label, sum/float64(len(samples)), len(samples))
}

// Close writes the summary block and closes the file. It runs on both
// graceful end and abrupt termination, so a second call is a no-op.
func (r *Recorder) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	all := make([]float64, 0, len(r.left)+len(r.right))
	all = append(all, r.left...)
	all = append(all, r.right...)

	if _, err := fmt.Fprintf(r.f, "\n--- Summary ---\n%s\n%s\n%s\n",
		summaryLine("Left", r.left),
		summaryLine("Right", r.right),
		summaryLine("Overall", all),
	); err != nil {
		r.f.Close()
		return fmt.Errorf("write summary: %w", err)
	}

	if err := r.f.Sync(); err != nil {
		r.f.Close()
		return fmt.Errorf("sync run file: %w", err)
	}
	return r.f.Close()
}
