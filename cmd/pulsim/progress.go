package main

import (
	"fmt"
	"sync/atomic"
	"time"
)

const (
	statusUpdateInterval = 250 * time.Millisecond
	clearLineSequence    = "\r\033[K"
)

// StatusLine displays a single live status line with elapsed or remaining
// time, e.g. "Pulsim HR (advertising 12s)". The phase text is swapped in
// place as session events arrive.
//
// Usage:
//
//	s := NewStatusLine(...)
//	s.Start()
//	defer s.Stop()
//
// The caller must call Stop to terminate the internal goroutine. A StatusLine
// is single-use: Start may be called at most once, and after Stop the
// instance cannot be restarted.
type StatusLine struct {
	prefix    string
	phase     atomic.Value // stores string - current phase text
	startTime time.Time
	ticker    atomic.Pointer[time.Ticker]
	stopChan  chan struct{}
	done      chan struct{} // closed when goroutine exits
	started   atomic.Bool   // ensures Start is called at most once
	countUp   bool          // true for elapsed time, false for countdown
	duration  time.Duration // for countdown mode
}

// NewStatusLine creates a status line that shows elapsed time next to the
// current phase.
func NewStatusLine(prefix, phase string) *StatusLine {
	s := &StatusLine{prefix: prefix, countUp: true}
	s.phase.Store(phase)
	return s
}

// NewCountdownStatusLine creates a status line that counts down from duration,
// for sessions running with a --timeout.
func NewCountdownStatusLine(prefix, phase string, duration time.Duration) *StatusLine {
	s := &StatusLine{prefix: prefix, duration: duration}
	s.phase.Store(phase)
	return s
}

// Start begins displaying updates in a background goroutine.
// Panics if called more than once on the same StatusLine instance.
func (s *StatusLine) Start() {
	if !s.started.CompareAndSwap(false, true) {
		panic("StatusLine.Start called more than once")
	}
	if s.stopChan != nil {
		panic("StatusLine cannot be reused after Stop")
	}

	s.done = make(chan struct{})
	s.stopChan = make(chan struct{})
	s.startTime = time.Now()
	ticker := time.NewTicker(statusUpdateInterval)
	s.ticker.Store(ticker)

	s.startLoop(ticker)
}

func (s *StatusLine) printLine(phase string, seconds int) {
	if seconds > 0 {
		fmt.Printf("\r%s (%s %ds)   ", s.prefix, phase, seconds)
	} else {
		fmt.Printf("\r%s (%s...)   ", s.prefix, phase)
	}
}

func (s *StatusLine) startLoop(ticker *time.Ticker) {
	initialPhase := s.phase.Load().(string)
	fmt.Printf("\r%s (%s...)   ", s.prefix, initialPhase)

	go func() {
		defer close(s.done)
		defer func() {
			if r := recover(); r != nil {
				fmt.Printf("\nstatus line panic: %v\n", r)
			}
		}()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				currentPhase := s.phase.Load().(string)
				elapsed := time.Since(s.startTime)

				var seconds int
				if s.countUp {
					seconds = int(elapsed.Seconds())
				} else {
					remaining := s.duration - elapsed
					if remaining <= 0 {
						// Show 0s when countdown completes (don't auto-stop)
						seconds = 0
					} else {
						// Round to the nearest second
						seconds = int(remaining.Seconds() + 0.5)
					}
				}
				s.printLine(currentPhase, seconds)
			}
		}
	}()
}

// SetPhase swaps the displayed phase text. Safe to call from any goroutine.
func (s *StatusLine) SetPhase(phase string) {
	s.phase.Store(phase)
}

// Stop stops the display and clears the line.
// Safe to call multiple times and from multiple goroutines; only the first
// call stops the ticker and waits for goroutine cleanup.
func (s *StatusLine) Stop() {
	ticker := s.ticker.Swap(nil)
	if ticker == nil {
		return // Already stopped
	}

	ticker.Stop()
	close(s.stopChan)
	<-s.done

	s.stopChan = nil // Prevent reuse

	fmt.Print(clearLineSequence)
}
