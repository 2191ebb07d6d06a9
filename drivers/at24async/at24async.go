// Package at24async drives an AT24Cxx I2C EEPROM through the asynchronous
// single-byte write contract used by nvstore.
//
// The tinygo at24cx driver writes a byte with one blocking I2C transaction
// and leaves the chip busy for its internal write cycle. Here a worker
// goroutine owns the bus for the duration of each write and its write cycle,
// then raises the ready notification, so WriteCellAsync returns at once:
//
//	d := at24async.New(machine.I2C0, at24async.Config{Size: 4096})
//	d.Start(ctx)
//
// ReadCell blocks while a write cycle is in progress.
package at24async

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/at24cx"

	"eeparam-go/errcode"
)

// Config controls the chip geometry and timing. All fields are optional.
type Config struct {
	// Address defaults to DefaultAddress if zero.
	Address uint16
	// Size in bytes. Default 4096 (AT24C32).
	Size int
	// WriteCycle is the chip's self-timed programming time (tWR). Default 5 ms;
	// negative skips the wait.
	WriteCycle time.Duration
}

// DefaultAddress is the bus address with A0..A2 tied low.
const DefaultAddress = 0x50

type job struct {
	addr uint16
	v    byte
}

type Device struct {
	dev at24cx.Device
	cfg Config

	busMu sync.Mutex // held across a write and its write cycle
	jobs  chan job
	kick  chan struct{}

	mu      sync.Mutex
	handler func()
	armed   bool
	busy    bool

	errs atomic.Uint32
}

// New wraps an already configured I2C bus. It does not touch the chip.
func New(bus drivers.I2C, cfg Config) *Device {
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	if cfg.Size <= 0 {
		cfg.Size = 4096
	}
	if cfg.WriteCycle < 0 {
		cfg.WriteCycle = 0
	} else if cfg.WriteCycle == 0 {
		cfg.WriteCycle = 5 * time.Millisecond
	}
	// Only single-byte transfers are used, so the driver's page geometry
	// is left at its defaults.
	dev := at24cx.New(bus)
	dev.Address = cfg.Address
	return &Device{
		dev:  dev,
		cfg:  cfg,
		jobs: make(chan job, 1),
		kick: make(chan struct{}, 1),
	}
}

// Start launches the write worker. It stops when ctx is done.
func (d *Device) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case j := <-d.jobs:
				d.write(j)
				d.deliver()
			case <-d.kick:
				d.deliver()
			}
		}
	}()
}

func (d *Device) write(j job) {
	d.busMu.Lock()
	err := d.dev.WriteByte(j.addr, j.v)
	if err == nil && d.cfg.WriteCycle > 0 {
		time.Sleep(d.cfg.WriteCycle)
	}
	d.busMu.Unlock()
	if err != nil {
		d.errs.Add(1)
	}
	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()
}

// deliver invokes the ready handler once if armed and idle. Staying armed
// without writing re-queues another delivery through kick.
func (d *Device) deliver() {
	d.mu.Lock()
	h := d.handler
	if !d.armed || d.busy || h == nil {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	h()

	d.mu.Lock()
	again := d.armed && !d.busy
	d.mu.Unlock()
	if again {
		d.nudge()
	}
}

func (d *Device) nudge() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

func (d *Device) Size() int { return d.cfg.Size }

func (d *Device) ReadCell(addr uint16) (byte, error) {
	if int(addr) >= d.cfg.Size {
		return 0, errcode.Wrap(errcode.InvalidParams, "at24async.read", nil)
	}
	d.busMu.Lock()
	defer d.busMu.Unlock()
	b, err := d.dev.ReadByte(addr)
	if err != nil {
		return 0, errcode.Wrap(errcode.MapDriverErr(err), "at24async.read", err)
	}
	return b, nil
}

// WriteCellAsync hands one byte to the worker. Only one write may be
// outstanding; a second returns errcode.Busy.
func (d *Device) WriteCellAsync(addr uint16, v byte) error {
	if int(addr) >= d.cfg.Size {
		// Nothing was started; the next ready still has to come.
		d.nudge()
		return errcode.Wrap(errcode.InvalidParams, "at24async.write", nil)
	}
	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return errcode.Busy
	}
	d.busy = true
	d.mu.Unlock()

	select {
	case d.jobs <- job{addr: addr, v: v}:
		return nil
	default:
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
		return errcode.Busy
	}
}

func (d *Device) SetReadyHandler(h func()) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

func (d *Device) ArmReady() {
	d.mu.Lock()
	d.armed = true
	d.mu.Unlock()
	d.nudge()
}

func (d *Device) DisarmReady() {
	d.mu.Lock()
	d.armed = false
	d.mu.Unlock()
}

// WriteErrors counts I2C writes that failed.
func (d *Device) WriteErrors() uint32 { return d.errs.Load() }
