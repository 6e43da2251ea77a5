// Package allocator commits memory in fixed-size filled blocks.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/golang/glog"
	"k8s.io/apimachinery/pkg/api/resource"
)

const (
	// BlockSize is the size in bytes of every block handed out.
	BlockSize = 1024
	// FillByte is written to every byte of every block.
	FillByte = 0x42

	blocksPerMB = 1024
	regionSize  = BlockSize * blocksPerMB

	// maxMB is the largest request whose size in bytes fits in an int.
	maxMB = math.MaxInt / regionSize
)

// ErrOutOfMemory is returned when a request cannot be satisfied.
var ErrOutOfMemory = errors.New("out of memory")

// Option configures an Allocator.
type Option func(*Allocator)

// WithLimit caps the total memory the allocator will commit. Requests that
// would cross the cap fail with ErrOutOfMemory. The cap is rounded down to
// whole MB; zero disables it.
func WithLimit(limit resource.Quantity) Option {
	return func(a *Allocator) {
		a.limitMB = int(limit.Value() / regionSize)
	}
}

// Allocator hands out 1 KB blocks filled with FillByte. It is not safe for
// concurrent use.
type Allocator struct {
	limitMB     int
	committedMB int
}

// New returns an Allocator configured with opts.
func New(opts ...Option) *Allocator {
	a := &Allocator{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Committed returns the number of MB committed by successful calls.
func (a *Allocator) Committed() int {
	return a.committedMB
}

// Allocate commits mb megabytes and returns them as mb*1024 blocks of
// BlockSize bytes. If it fails, every region mapped during the call is
// released and the blocks from earlier calls are left untouched.
func (a *Allocator) Allocate(ctx context.Context, mb int) ([][]byte, error) {
	if mb < 0 {
		return nil, fmt.Errorf("cannot allocate a negative amount of memory (%dMB)", mb)
	}
	if mb == 0 {
		return nil, nil
	}
	if mb > maxMB {
		return nil, fmt.Errorf("%w: %dMB exceeds the addressable size", ErrOutOfMemory, mb)
	}
	if a.limitMB > 0 && a.committedMB+mb > a.limitMB {
		return nil, fmt.Errorf("%w: %dMB requested with %dMB of %dMB committed", ErrOutOfMemory, mb, a.committedMB, a.limitMB)
	}

	var regions [][]byte
	discard := func() {
		for _, r := range regions {
			if err := unmapRegion(r); err != nil {
				glog.Warningf("Failed to release partial allocation: %v", err)
			}
		}
	}

	for i := 0; i < mb; i++ {
		if err := ctx.Err(); err != nil {
			discard()
			return nil, err
		}
		r, err := mapRegion(regionSize)
		if err != nil {
			discard()
			return nil, err
		}
		fill(r)
		regions = append(regions, r)
	}

	blocks := make([][]byte, 0, len(regions)*blocksPerMB)
	for _, r := range regions {
		for off := 0; off < len(r); off += BlockSize {
			blocks = append(blocks, r[off:off+BlockSize:off+BlockSize])
		}
	}
	a.committedMB += mb
	glog.V(3).Infof("Committed %s, total %s", Size(mb), Size(a.committedMB))
	return blocks, nil
}

func fill(b []byte) {
	if len(b) == 0 {
		return
	}
	b[0] = FillByte
	for n := 1; n < len(b); n *= 2 {
		copy(b[n:], b[:n])
	}
}

// Size renders mb megabytes as a binary quantity, e.g. 20Mi.
func Size(mb int) *resource.Quantity {
	return resource.NewQuantity(int64(mb)*regionSize, resource.BinarySI)
}
