package at24async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"eeparam-go/errcode"
	"eeparam-go/nvstore"
)

// fakeAT24 models an AT24Cxx on the bus: a two-byte address pointer followed
// by data to write, or a read from the pointer.
type fakeAT24 struct {
	mu     sync.Mutex
	addr   uint16
	ptr    int
	mem    []byte
	writes int
	failAt int // fail the n-th write transaction (1-based); 0 never
}

func newFakeAT24(size int) *fakeAT24 {
	f := &fakeAT24{mem: make([]byte, size)}
	for i := range f.mem {
		f.mem[i] = 0xFF
	}
	return f
}

func (f *fakeAT24) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if addr != f.addr {
		return errors.New("nack")
	}
	if len(w) == 1 {
		return errors.New("short address")
	}
	if len(w) >= 2 {
		f.ptr = int(w[0])<<8 | int(w[1])
	}
	if len(w) > 2 {
		f.writes++
		if f.failAt != 0 && f.writes == f.failAt {
			return errors.New("nack")
		}
		for i, b := range w[2:] {
			f.mem[(f.ptr+i)%len(f.mem)] = b
		}
	}
	for i := range r {
		r[i] = f.mem[(f.ptr+i)%len(f.mem)]
	}
	return nil
}

func newDevice(t *testing.T, chip *fakeAT24) (*Device, context.CancelFunc) {
	t.Helper()
	d := New(chip, Config{Address: 0x50, Size: len(chip.mem), WriteCycle: -1})
	chip.addr = 0x50
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	return d, cancel
}

func TestReadCellGoesOverTheBus(t *testing.T) {
	chip := newFakeAT24(256)
	chip.mem[0x42] = 0x99
	d, cancel := newDevice(t, chip)
	defer cancel()

	b, err := d.ReadCell(0x42)
	if err != nil || b != 0x99 {
		t.Fatalf("ReadCell=%#x,%v", b, err)
	}
	if _, err := d.ReadCell(256); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("out of range err=%v", err)
	}
}

func TestReadyFollowsEachWrite(t *testing.T) {
	chip := newFakeAT24(64)
	d, cancel := newDevice(t, chip)
	defer cancel()

	done := make(chan struct{})
	n := 0
	d.SetReadyHandler(func() {
		if n == 4 {
			d.DisarmReady()
			close(done)
			return
		}
		if err := d.WriteCellAsync(uint16(n), byte(0xA0+n)); err != nil {
			t.Errorf("write %d: %v", n, err)
		}
		n++
	})
	d.ArmReady()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for ready notifications")
	}
	for i := 0; i < 4; i++ {
		if b, _ := d.ReadCell(uint16(i)); b != byte(0xA0+i) {
			t.Fatalf("cell %d=%#x", i, b)
		}
	}
}

func TestSecondOutstandingWriteIsBusy(t *testing.T) {
	chip := newFakeAT24(64)
	d := New(chip, Config{Address: 0x50, Size: 64, WriteCycle: -1})
	chip.addr = 0x50
	// Worker not started: the first write stays outstanding.
	if err := d.WriteCellAsync(1, 1); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteCellAsync(2, 2); err != errcode.Busy {
		t.Fatalf("err=%v, want busy", err)
	}
}

func TestStoreRoundTripOverI2C(t *testing.T) {
	chip := newFakeAT24(128)
	chip.failAt = 2
	d, cancel := newDevice(t, chip)
	defer cancel()

	tbl, err := nvstore.BuildTable(0, d.Size(), []nvstore.ParamDef{
		{Name: "lcd_light", Size: 1, Count: 5},
		{Name: "bat_min_v", Size: 2, Count: 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	st, err := nvstore.New(d, tbl)
	if err != nil {
		t.Fatal(err)
	}
	_ = st.SetByte(0, 1)
	_ = st.SetByte(0, 12)
	_ = st.SetWord(1, 3300)

	ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	if err := st.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if d.WriteErrors() != 1 || st.Stats().WriteErrors != 0 {
		t.Fatalf("errors: device=%d store=%d", d.WriteErrors(), st.Stats().WriteErrors)
	}

	// The failed transaction was the data byte of the first record; the
	// final values come from the later records.
	fresh, _ := nvstore.New(d, tbl)
	if v, _ := fresh.Byte(0); v != 12 {
		t.Fatalf("lcd_light=%d", v)
	}
	if v, _ := fresh.Word(1); v != 3300 {
		t.Fatalf("bat_min_v=%d", v)
	}
}
