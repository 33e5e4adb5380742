// Package timectrl drives the frame clock of the simulation loop. It owns
// the playback controls (speed multiplier, reversed playback, frame pacing)
// and hands each frame to registered listeners; all physics happens in the
// listeners.
package timectrl

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Mode describes how the FrameClock paces frames.
type Mode int

const (
	// RealTime paces frames against wall-clock time.
	RealTime Mode = iota
	// Accelerated runs frames as fast as the loop allows.
	Accelerated
)

// TickFunc is called once per frame with the frame's time step in seconds,
// the current speed multiplier, and the playback direction.
type TickFunc func(dt float64, speed float64, reversed bool)

// FrameClock advances the simulation one frame at a time. Playback controls
// are safe to call while the clock is running.
type FrameClock struct {
	mu sync.RWMutex

	Tick time.Duration
	Mode Mode

	speed    float64
	reversed bool
	frames   uint64

	listeners []TickFunc
}

// NewFrameClock constructs a clock with the given frame interval and pacing
// mode, at speed 1 and forward playback.
func NewFrameClock(tick time.Duration, mode Mode) *FrameClock {
	if tick <= 0 {
		tick = 16 * time.Millisecond
	}
	return &FrameClock{
		Tick:  tick,
		Mode:  mode,
		speed: 1,
	}
}

// AddListener registers a callback invoked on every frame, in registration
// order. Listeners must be registered before Start.
func (fc *FrameClock) AddListener(fn TickFunc) {
	fc.listeners = append(fc.listeners, fn)
}

// SetSpeed updates the time multiplier applied to every frame. Non-positive
// values pause playback rather than reversing it; direction is controlled
// separately.
func (fc *FrameClock) SetSpeed(speed float64) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if speed < 0 {
		speed = 0
	}
	fc.speed = speed
}

// Speed returns the current time multiplier.
func (fc *FrameClock) Speed() float64 {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.speed
}

// SetReversed flips playback direction.
func (fc *FrameClock) SetReversed(reversed bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.reversed = reversed
}

// Reversed reports the current playback direction.
func (fc *FrameClock) Reversed() bool {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.reversed
}

// Frames returns the number of frames delivered so far.
func (fc *FrameClock) Frames() uint64 {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.frames
}

// Start runs the clock in a separate goroutine until maxFrames frames have
// been delivered (0 means unbounded) or the context is cancelled. It returns
// a channel that is closed when the loop exits.
func (fc *FrameClock) Start(ctx context.Context, maxFrames uint64) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		// In real-time mode a limiter paces the loop at one frame per
		// Tick; accelerated mode runs unthrottled.
		var limiter *rate.Limiter
		if fc.Mode == RealTime {
			limiter = rate.NewLimiter(rate.Every(fc.Tick), 1)
		}

		dt := fc.Tick.Seconds()
		for {
			if ctx.Err() != nil {
				return
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
			}

			fc.mu.Lock()
			speed := fc.speed
			reversed := fc.reversed
			fc.frames++
			delivered := fc.frames
			fc.mu.Unlock()

			for _, fn := range fc.listeners {
				fn(dt, speed, reversed)
			}

			if maxFrames > 0 && delivered >= maxFrames {
				return
			}
		}
	}()
	return done
}
