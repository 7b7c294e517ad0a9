package conversation

import (
	"context"
	"sync/atomic"
	"time"
)

const (
	// DefaultReplyDelay simulates the agent typing before each reply.
	DefaultReplyDelay = time.Second
	// DefaultSubmitDelay simulates the lead endpoint latency.
	DefaultSubmitDelay = 1500 * time.Millisecond
)

// Delayer is the suspension point before a reply or a lead delivery.
// Wait returns early with ctx.Err() when ctx is cancelled.
type Delayer interface {
	Wait(ctx context.Context) error
}

// TimerDelayer waits a fixed duration on a real timer.
type TimerDelayer struct {
	Delay time.Duration
}

func (d TimerDelayer) Wait(ctx context.Context) error {
	if d.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoDelay never waits.
type NoDelay struct{}

func (NoDelay) Wait(ctx context.Context) error {
	return ctx.Err()
}

// ManualDelayer blocks every Wait until Release is called, one release per wait.
// Releases made before a Wait are banked.
type ManualDelayer struct {
	tokens  chan struct{}
	waiting atomic.Int32
}

func NewManualDelayer() *ManualDelayer {
	return &ManualDelayer{tokens: make(chan struct{}, 128)}
}

func (d *ManualDelayer) Wait(ctx context.Context) error {
	d.waiting.Add(1)
	defer d.waiting.Add(-1)
	select {
	case <-d.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release lets one pending or future Wait return.
func (d *ManualDelayer) Release() {
	d.tokens <- struct{}{}
}

// Waiting reports how many goroutines are blocked in Wait.
func (d *ManualDelayer) Waiting() int {
	return int(d.waiting.Load())
}
