// Package hwdevice implements the reference-counted accelerator-context
// freelist described in spec.md §4.5 and §9 ("Hardware device lifetime").
//
// Grounded on original_source/src/media_manipulation/utils/hardware_device.rs:
// device creation is expensive and wrapped in an add-ref/release discipline
// the underlying media library already understands (encoders/decoders
// add-ref on open, release on close); the pool itself just retains one
// strong reference per pooled device so transient encoder/decoder churn
// never tears a device down.
package hwdevice

import (
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"
)

// Factory creates a new hardware device context of a specific type (e.g.
// VAAPI, QSV, VideoToolbox). Creation may fail (no such accelerator
// present, driver missing, etc).
type Factory func() (*astiav.HardwareDeviceContext, error)

// Pool owns a freelist of hardware device contexts plus the factory used
// to create new ones on demand.
type Pool struct {
	mu      sync.Mutex
	factory Factory
	free    []*astiav.HardwareDeviceContext
}

// New creates a Pool backed by factory. The pool starts empty; devices
// are created lazily on the first Take.
func New(factory Factory) *Pool {
	return &Pool{factory: factory}
}

// Borrowed is a device on loan from the pool. Release must be called
// exactly once to return the underlying handle to the freelist.
type Borrowed struct {
	pool   *Pool
	device *astiav.HardwareDeviceContext
}

// Device returns the underlying hardware device context for use in
// decoder/encoder/filter-graph construction.
func (b *Borrowed) Device() *astiav.HardwareDeviceContext {
	return b.device
}

// Release returns the device to the pool's freelist. The pool never
// discards devices — ordinary request load churns encoders/decoders but
// keeps the small, fixed number of pooled devices alive.
func (b *Borrowed) Release() {
	b.pool.mu.Lock()
	defer b.pool.mu.Unlock()
	b.pool.free = append(b.pool.free, b.device)
}

// Take pops a free device or creates one via the factory.
func (p *Pool) Take() (*Borrowed, error) {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		dev := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return &Borrowed{pool: p, device: dev}, nil
	}
	p.mu.Unlock()

	dev, err := p.factory()
	if err != nil {
		return nil, fmt.Errorf("hwdevice: creating device: %w", err)
	}
	return &Borrowed{pool: p, device: dev}, nil
}

// Len reports the number of currently idle devices (for tests/metrics).
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
