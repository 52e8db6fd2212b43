package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner animates a status line while the model is thinking. It runs in
// its own goroutine and writes only carriage-return frames; Stop blocks
// until that goroutine has exited and the line is cleared.
type Spinner struct {
	out      io.Writer
	frames   []string
	interval time.Duration

	mu      sync.Mutex
	message string
	stop    chan struct{}
	done    chan struct{}
}

// NewSpinner uses the bubbles Dot animation.
func NewSpinner(out io.Writer) *Spinner {
	return &Spinner{
		out:      out,
		frames:   spinner.Dot.Frames,
		interval: spinner.Dot.FPS,
	}
}

// Start shows message. A running spinner just changes its message.
func (s *Spinner) Start(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.message = message
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
}

// Stop halts the animation and erases the status line. It is a no-op when
// the spinner is not running.
func (s *Spinner) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	fmt.Fprint(s.out, "\r\x1b[K")
}

// Active reports whether the spinner is running.
func (s *Spinner) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

func (s *Spinner) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		s.mu.Lock()
		msg := s.message
		s.mu.Unlock()
		fmt.Fprintf(s.out, "\r\x1b[K%s%s", AssistantStyle.Render(s.frames[i%len(s.frames)]), DimStyle.Render(msg))

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}
