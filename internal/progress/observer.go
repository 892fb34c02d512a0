// Package progress estimates stage completion by polling the size of a
// growing output file. It is pure telemetry: the pipeline never depends on
// it for correctness.
package progress

import (
	"os"
	"sync"
	"time"
)

// The observed size is an imprecise proxy for completion, so the estimate
// never claims more than this before the stage confirms it finished.
const maxEstimate = 95

const defaultInterval = 500 * time.Millisecond

// fallbackInputSize is used when the input cannot be stat'ed.
const fallbackInputSize = 1 << 30

// Observer polls an output file while an external tool writes it and
// reports an estimated percentage through a callback.
type Observer struct {
	inputSize  int64
	outputPath string
	interval   time.Duration
	report     func(percent int)

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started bool
}

// New returns an Observer comparing outputPath's size against inputPath's.
// The report callback runs on the observer goroutine.
func New(inputPath, outputPath string, report func(percent int)) *Observer {
	size := int64(fallbackInputSize)
	if info, err := os.Stat(inputPath); err == nil && info.Size() > 0 {
		size = info.Size()
	}
	return &Observer{
		inputSize:  size,
		outputPath: outputPath,
		interval:   defaultInterval,
		report:     report,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the polling goroutine. Starting twice is a no-op.
func (o *Observer) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return
	}
	o.started = true
	go o.poll()
}

// Stop terminates polling and waits for the goroutine to exit. Safe to call
// multiple times and before Start.
func (o *Observer) Stop() {
	o.mu.Lock()
	select {
	case <-o.stop:
	default:
		close(o.stop)
	}
	started := o.started
	o.mu.Unlock()

	if started {
		<-o.done
	}
}

func (o *Observer) poll() {
	defer close(o.done)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			info, err := os.Stat(o.outputPath)
			if err != nil {
				continue
			}
			percent := int(info.Size() * 100 / o.inputSize)
			if percent > maxEstimate {
				percent = maxEstimate
			}
			o.report(percent)
		}
	}
}
