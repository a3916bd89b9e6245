package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// SimpleSpinner provides a blocking spinner for CLI operations outside
// the full-screen call view.
type SimpleSpinner struct {
	message  string
	spinner  spinner.Spinner
	interval time.Duration
	done     chan struct{}
	stopped  bool
}

// NewSimpleSpinner creates a spinner for general loading operations.
func NewSimpleSpinner(message string) *SimpleSpinner {
	return &SimpleSpinner{
		message:  message,
		spinner:  spinner.Dot,
		interval: 80 * time.Millisecond,
		done:     make(chan struct{}),
	}
}

// NewConnectionSpinner creates a spinner for network operations.
func NewConnectionSpinner(message string) *SimpleSpinner {
	return &SimpleSpinner{
		message:  message,
		spinner:  spinner.Globe,
		interval: 180 * time.Millisecond,
		done:     make(chan struct{}),
	}
}

func (s *SimpleSpinner) Start() {
	go func() {
		frames := s.spinner.Frames
		i := 0
		for {
			select {
			case <-s.done:
				return
			default:
				frame := SpinnerStyle.Render(frames[i%len(frames)])
				fmt.Printf("\r%s %s", frame, s.message)
				i++
				time.Sleep(s.interval)
			}
		}
	}()
}

func (s *SimpleSpinner) Stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)
	fmt.Printf("\r%s\r", strings.Repeat(" ", len(s.message)+4))
}

// RunSpinner starts a spinner and returns its stop function.
func RunSpinner(message string) func() {
	s := NewSimpleSpinner(message)
	s.Start()
	return s.Stop
}

// RunConnectionSpinner starts a network spinner and returns its stop
// function.
func RunConnectionSpinner(message string) func() {
	s := NewConnectionSpinner(message)
	s.Start()
	return s.Stop
}
