package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a single status line while a git operation runs
type Spinner struct {
	out     io.Writer
	message string
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
}

// NewSpinner creates a spinner writing to stdout
func NewSpinner(message string) *Spinner {
	return &Spinner{
		out:     os.Stdout,
		message: message,
		done:    make(chan struct{}),
	}
}

// Start redraws the status line every 100ms until Stop is called
func (s *Spinner) Start() {
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for frame := 0; ; frame = (frame + 1) % len(spinnerFrames) {
			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
			s.mu.Lock()
			select {
			case <-s.done:
			default:
				fmt.Fprintf(s.out, "\r\033[K%s %s", ColorProgress(spinnerFrames[frame]), s.message)
			}
			s.mu.Unlock()
		}
	}()
}

// Stop clears the status line and prints the outcome. Only the first call
// has any effect.
func (s *Spinner) Stop(success bool, message string) {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		close(s.done)

		mark := ColorSuccess("✓")
		if !success {
			mark = ColorError("✗")
		}
		fmt.Fprintf(s.out, "\r\033[K%s %s\n", mark, message)
	})
}
