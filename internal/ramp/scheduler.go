// Package ramp drives memory usage along a linear ramp.
package ramp

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"
	"k8s.io/utils/clock"

	"github.com/vish/memramp/internal/allocator"
)

// MinSleep is the shortest pause between two ramp steps.
const MinSleep = 10 * time.Millisecond

// Allocator commits mb megabytes and returns the blocks backing them.
type Allocator interface {
	Allocate(ctx context.Context, mb int) ([][]byte, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source. The default is the real clock.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithOutput sets where progress lines are written. The default discards
// them.
func WithOutput(w io.Writer) Option {
	return func(s *Scheduler) {
		s.out = w
	}
}

// WithHold keeps the final allocation resident for d before Run returns.
func WithHold(d time.Duration) Option {
	return func(s *Scheduler) {
		s.hold = d
	}
}

// Scheduler owns every block allocated during a ramp. Memory is never given
// back; it is released when the process exits.
type Scheduler struct {
	params Params
	alloc  Allocator
	clock  clock.Clock
	out    io.Writer
	hold   time.Duration

	blocks  [][]byte
	current int
}

// New returns a Scheduler that ramps according to p using alloc.
func New(p Params, alloc Allocator, opts ...Option) *Scheduler {
	s := &Scheduler{
		params: p,
		alloc:  alloc,
		clock:  clock.RealClock{},
		out:    io.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the memory committed so far, in MB.
func (s *Scheduler) Current() int {
	return s.current
}

// Blocks returns the number of blocks held.
func (s *Scheduler) Blocks() int {
	return len(s.blocks)
}

// Run performs the initial allocation, the initial wait and the ramp. It
// reports and returns nil once FinalMB is committed and the hold, if any,
// has elapsed. Allocation failures are returned as is and a cancelled ctx
// yields ctx.Err(); Current still reports what was reached.
func (s *Scheduler) Run(ctx context.Context) error {
	p := s.params
	if err := p.Validate(); err != nil {
		return err
	}

	s.printf("Starting with %dMB of memory\n", p.InitialMB)
	s.printf("Will wait %d seconds before starting incremental allocation\n", p.InitialWaitSeconds)
	s.printf("Will then reach %dMB in %d seconds\n", p.FinalMB, p.DurationSeconds)
	glog.Infof("Ramping from %s to %s at %.2fMB/s over %v, after a %v wait",
		allocator.Size(p.InitialMB), allocator.Size(p.FinalMB), p.Rate(), p.duration(), p.initialWait())

	if err := s.grow(ctx, p.InitialMB); err != nil {
		return fmt.Errorf("initial allocation of %dMB: %w", p.InitialMB, err)
	}
	s.printf("Initial memory allocation complete: %dMB\n", p.InitialMB)

	if p.InitialWaitSeconds > 0 {
		s.printf("Waiting %d seconds before starting incremental allocation...\n", p.InitialWaitSeconds)
		if err := s.sleep(ctx, p.initialWait()); err != nil {
			return err
		}
		s.printf("Starting incremental allocation...\n")
	}

	if err := s.ramp(ctx); err != nil {
		return err
	}
	s.printf("\nReached target memory of %dMB\n", p.FinalMB)

	if s.hold > 0 {
		glog.Infof("Holding %s for %v", allocator.Size(s.current), s.hold)
		return s.sleep(ctx, s.hold)
	}
	return nil
}

func (s *Scheduler) ramp(ctx context.Context) error {
	p := s.params
	rate := p.Rate()
	start := s.clock.Now()
	end := start.Add(p.duration())

	for s.current < p.FinalMB {
		now := s.clock.Now()
		if !now.Before(end) {
			remaining := p.FinalMB - s.current
			if err := s.grow(ctx, remaining); err != nil {
				return err
			}
			s.printf("Allocated final %dMB. Total: %dMB\n", remaining, s.current)
			return nil
		}

		target := float64(p.InitialMB) + rate*now.Sub(start).Seconds()
		if n := min(int(target-float64(s.current)), p.FinalMB-s.current); n > 0 {
			if err := s.grow(ctx, n); err != nil {
				return err
			}
			s.printf("Allocated %dMB more memory. Total: %dMB\n", n, s.current)
		}
		if s.current >= p.FinalMB {
			return nil
		}

		d := NextSleep(now, start, end, s.current-p.InitialMB, rate)
		glog.V(2).Infof("At %s, ramp target %.2fMB, sleeping %v", allocator.Size(s.current), target, d)
		if err := s.sleep(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// NextSleep returns how long to pause at now, given that rampedMB have been
// added since start at rate MB/s. The pause lasts until the ramp is due for
// one more whole MB but never runs past end, and is at least MinSleep.
func NextSleep(now, start, end time.Time, rampedMB int, rate float64) time.Duration {
	d := end.Sub(now)
	offset := float64(rampedMB+1) / rate * float64(time.Second)
	if offset < float64(end.Sub(start)) {
		if untilNext := start.Add(time.Duration(offset)).Sub(now); untilNext < d {
			d = untilNext
		}
	}
	return max(d, MinSleep)
}

func (s *Scheduler) grow(ctx context.Context, mb int) error {
	blocks, err := s.alloc.Allocate(ctx, mb)
	if err != nil {
		return err
	}
	s.blocks = append(s.blocks, blocks...)
	s.current += mb
	return nil
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	t := s.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}

func (s *Scheduler) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}
