// Package simeeprom is an in-memory EEPROM with the asynchronous write and
// ready-notification behaviour of an AVR-class EEPROM controller.
//
// Every WriteCellAsync starts one single-byte write. The write finishes on
// the next notification step; while the ready notification is armed and no
// write is outstanding, each step invokes the ready handler. Steps are taken
// either explicitly with Step (deterministic tests) or by a Run goroutine.
//
// The medium counts writes per cell, can model cell wear-out, and can model
// a power cut that silently discards writes after a given number of bytes.
package simeeprom

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrRange = errors.New("simeeprom: address out of range")
	ErrBusy  = errors.New("simeeprom: write already in progress")
	ErrImage = errors.New("simeeprom: image size mismatch")
)

// Option configures a Medium.
type Option func(*Medium)

// WithFill sets the initial content of every cell (default 0xFF, erased).
func WithFill(b byte) Option { return func(m *Medium) { m.fill = b } }

// WithEndurance makes a cell keep its old value once it has been written n
// times. Zero means unlimited.
func WithEndurance(n uint32) Option { return func(m *Medium) { m.endurance = n } }

// WithLatency sets how long Run takes to finish one byte write.
func WithLatency(d time.Duration) Option { return func(m *Medium) { m.latency = d } }

type Medium struct {
	mu        sync.Mutex
	cells     []byte
	wear      []uint32
	fill      byte
	endurance uint32
	latency   time.Duration

	handler func()
	armed   bool
	writing bool
	cut     int // bytes still allowed to commit; <0 means no power cut pending

	kick chan struct{}
}

func New(size int, opts ...Option) *Medium {
	m := &Medium{fill: 0xFF, cut: -1, kick: make(chan struct{}, 1)}
	for _, o := range opts {
		o(m)
	}
	m.cells = make([]byte, size)
	m.wear = make([]uint32, size)
	for i := range m.cells {
		m.cells[i] = m.fill
	}
	return m
}

func (m *Medium) Size() int { return len(m.cells) }

func (m *Medium) ReadCell(addr uint16) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(addr) >= len(m.cells) {
		return 0, ErrRange
	}
	return m.cells[addr], nil
}

// WriteCellAsync starts programming one cell. The new value is visible to
// reads immediately; the write counts as in progress until the next step.
func (m *Medium) WriteCellAsync(addr uint16, v byte) error {
	m.mu.Lock()
	if m.writing {
		m.mu.Unlock()
		return ErrBusy
	}
	if int(addr) >= len(m.cells) {
		m.mu.Unlock()
		m.nudge()
		return ErrRange
	}
	m.writing = true
	m.wear[addr]++
	switch {
	case m.cut == 0:
		// power is gone: the cell never changes
	case m.endurance > 0 && m.wear[addr] > m.endurance:
		// worn out: the cell no longer takes new values
	default:
		m.cells[addr] = v
	}
	if m.cut > 0 {
		m.cut--
	}
	m.mu.Unlock()
	m.nudge()
	return nil
}

func (m *Medium) SetReadyHandler(h func()) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

func (m *Medium) ArmReady() {
	m.mu.Lock()
	m.armed = true
	m.mu.Unlock()
	m.nudge()
}

func (m *Medium) DisarmReady() {
	m.mu.Lock()
	m.armed = false
	m.mu.Unlock()
}

func (m *Medium) nudge() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Armed reports whether the ready notification is enabled.
func (m *Medium) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Step finishes the outstanding write, if any, and then delivers one ready
// notification if armed. It reports whether the handler ran.
func (m *Medium) Step() bool {
	m.mu.Lock()
	m.writing = false
	h := m.handler
	if !m.armed || h == nil {
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()
	h()
	return true
}

// Drain steps until the notification is disarmed or max steps were taken,
// and returns the number of handler invocations.
func (m *Medium) Drain(max int) int {
	n := 0
	for n < max && m.Step() {
		n++
	}
	return n
}

// Run delivers notifications from the calling goroutine until ctx is done.
// Do not mix Run with Step.
func (m *Medium) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m.mu.Lock()
		writing := m.writing
		m.mu.Unlock()
		if writing && m.latency > 0 {
			time.Sleep(m.latency)
		}
		if m.Step() {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-m.kick:
		}
	}
}

// CutPowerAfter lets n more bytes reach the cells and silently discards every
// write after that, as if power failed mid-stream.
func (m *Medium) CutPowerAfter(n int) {
	m.mu.Lock()
	if n < 0 {
		n = 0
	}
	m.cut = n
	m.mu.Unlock()
}

// RestorePower undoes CutPowerAfter.
func (m *Medium) RestorePower() {
	m.mu.Lock()
	m.cut = -1
	m.mu.Unlock()
}

// Image returns a copy of the cell contents.
func (m *Medium) Image() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.cells...)
}

// Load replaces the cell contents; wear counters are left alone.
func (m *Medium) Load(img []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(img) != len(m.cells) {
		return ErrImage
	}
	copy(m.cells, img)
	return nil
}

// Wear returns how many times the cell at addr has been written.
func (m *Medium) Wear(addr uint16) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(addr) >= len(m.wear) {
		return 0
	}
	return m.wear[addr]
}

// MaxWear returns the highest per-cell write count.
func (m *Medium) MaxWear() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hi uint32
	for _, w := range m.wear {
		if w > hi {
			hi = w
		}
	}
	return hi
}
