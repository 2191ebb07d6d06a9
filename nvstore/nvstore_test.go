package nvstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"eeparam-go/drivers/simeeprom"
	"eeparam-go/errcode"
)

// Reference layout: a 1-byte value with 5 slots followed by a 2-byte value
// with 3 slots.
const (
	idxLight = iota
	idxBatMin
)

var sampleTable = Table{
	{Name: "lcd_light", ElementSize: 1, SlotCount: 5, Base: 0},
	{Name: "bat_min_v", ElementSize: 2, SlotCount: 3, Base: 10},
}

// countingMedium counts cell reads on top of a simulated medium.
type countingMedium struct {
	*simeeprom.Medium
	reads int
}

func (c *countingMedium) ReadCell(addr uint16) (byte, error) {
	c.reads++
	return c.Medium.ReadCell(addr)
}

func newStore(t *testing.T, m Medium, tbl Table, opts ...Option) *Store {
	t.Helper()
	s, err := New(m, tbl, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// drain starts the writer and steps the medium until the writer disarms.
func drain(t *testing.T, s *Store, m *simeeprom.Medium) {
	t.Helper()
	s.StartWriter()
	m.Drain(10000)
	if s.Busy() {
		t.Fatal("writer still busy after drain")
	}
}

func statuses(m *simeeprom.Medium, d Descriptor) []byte {
	img := m.Image()
	out := make([]byte, d.SlotCount)
	for i := range out {
		out[i] = img[d.SlotAddr(i)]
	}
	return out
}

func TestLocateEndToEnd(t *testing.T) {
	d := Descriptor{ElementSize: 1, SlotCount: 5, Base: 0}
	m := simeeprom.New(64, simeeprom.WithFill(0))
	img := m.Image()
	for i := 0; i < 5; i++ {
		img[d.SlotAddr(i)] = byte(i) // conforming chain 0,1,2,3,4
	}
	_ = m.Load(img)

	addr, err := Locate(m, d)
	if err != nil {
		t.Fatal(err)
	}
	if addr != 9 {
		t.Fatalf("Locate=%d, want 9 (slot 4 data)", addr)
	}

	s := newStore(t, m, Table{d})
	if err := s.RequestWrite(0, []byte{0x5A}); err != nil {
		t.Fatal(err)
	}
	drain(t, s, m)

	if got := statuses(m, d)[0]; got != 5 {
		t.Fatalf("slot 0 status=%d, want 5", got)
	}
	if addr, _ = Locate(m, d); addr != 1 {
		t.Fatalf("Locate=%d, want 1 (slot 0 data)", addr)
	}
	if v, _ := s.Byte(0); v != 0x5A {
		t.Fatalf("Byte=%#x", v)
	}
}

func TestLocateSkipsSlotWhoseStatusNeverLanded(t *testing.T) {
	d := Descriptor{ElementSize: 1, SlotCount: 3, Base: 0}
	m := simeeprom.New(6)
	_ = m.Load([]byte{5, 0x11, 6, 0x22, 0x42, 0x33})

	addr, err := Locate(m, d)
	if err != nil {
		t.Fatal(err)
	}
	if addr != 3 {
		t.Fatalf("Locate=%d, want 3 (slot 1 data)", addr)
	}
}

func TestLocateUnbrokenChainAcrossStatusWrap(t *testing.T) {
	d := Descriptor{ElementSize: 2, SlotCount: 4, Base: 3}
	m := simeeprom.New(32, simeeprom.WithFill(0))
	img := m.Image()
	for i, st := range []byte{254, 255, 0, 1} {
		img[d.SlotAddr(i)] = st
	}
	_ = m.Load(img)
	if addr, _ := Locate(m, d); addr != d.SlotAddr(3)+1 {
		t.Fatalf("Locate=%d, want last slot", addr)
	}
}

func TestRoundTripAndWraparound(t *testing.T) {
	m := simeeprom.New(32, simeeprom.WithFill(0xFF))
	s := newStore(t, m, sampleTable)
	d := sampleTable[idxLight]

	for k := 0; k < 600; k++ {
		v := byte(k*7 + 1)
		if err := s.SetByte(idxLight, v); err != nil {
			t.Fatalf("write %d: %v", k, err)
		}
		drain(t, s, m)

		got, err := s.Byte(idxLight)
		if err != nil || got != v {
			t.Fatalf("write %d: Byte=%#x,%v want %#x", k, got, err, v)
		}
		// Erased statuses are 0xFF, so slot 0 is current first and the
		// k-th write lands in slot (k+1) mod SlotCount.
		want := d.SlotAddr((k+1)%int(d.SlotCount)) + 1
		if addr, _ := Locate(m, d); addr != want {
			t.Fatalf("write %d: Locate=%d want %d (statuses %v)", k, addr, want, statuses(m, d))
		}
	}

	// 600 writes spread over 5 status cells.
	if w := m.Wear(d.SlotAddr(0)); w != 120 {
		t.Fatalf("slot 0 status wear=%d, want 120", w)
	}
	if st := s.Stats(); st.Committed != 600 || st.Queued != 600 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestWordRoundTripLittleEndian(t *testing.T) {
	m := simeeprom.New(32, simeeprom.WithFill(0))
	s := newStore(t, m, sampleTable)
	if err := s.SetWord(idxBatMin, 0xBEEF); err != nil {
		t.Fatal(err)
	}
	drain(t, s, m)

	// Reopen: nothing cached.
	s2 := newStore(t, m, sampleTable)
	v, err := s2.Word(idxBatMin)
	if err != nil || v != 0xBEEF {
		t.Fatalf("Word=%#x,%v", v, err)
	}
	addr, _ := Locate(m, sampleTable[idxBatMin])
	lo, _ := m.ReadCell(addr)
	hi, _ := m.ReadCell(addr + 1)
	if lo != 0xEF || hi != 0xBE {
		t.Fatalf("stored bytes %#x %#x", lo, hi)
	}
}

func TestSameValueIsNotQueued(t *testing.T) {
	m := simeeprom.New(32, simeeprom.WithFill(0))
	s := newStore(t, m, sampleTable)

	// Matches the erased-to-zero content: nothing to do.
	if err := s.SetByte(idxLight, 0); err != nil {
		t.Fatal(err)
	}
	if st := s.Stats(); st.Pending != 0 || st.Skipped != 1 {
		t.Fatalf("stats=%+v", st)
	}

	// Twice in a row before the writer runs: one record.
	_ = s.SetByte(idxLight, 9)
	_ = s.SetByte(idxLight, 9)
	if st := s.Stats(); st.Pending != 1 || st.Queued != 1 || st.Skipped != 2 {
		t.Fatalf("stats=%+v", st)
	}
	drain(t, s, m)
	_ = s.SetByte(idxLight, 9)
	if st := s.Stats(); st.Pending != 0 || st.Queued != 1 {
		t.Fatalf("stats after drain=%+v", st)
	}
}

func TestQueuedWritesToOneParamUseSuccessiveSlots(t *testing.T) {
	m := simeeprom.New(32, simeeprom.WithFill(0))
	s := newStore(t, m, sampleTable)
	d := sampleTable[idxLight]

	for _, v := range []byte{1, 2, 3} {
		if err := s.SetByte(idxLight, v); err != nil {
			t.Fatal(err)
		}
	}
	if v, _ := s.Byte(idxLight); v != 3 {
		t.Fatalf("read of queued value=%d, want 3", v)
	}
	drain(t, s, m)

	if got := statuses(m, d); got[1] != 1 || got[2] != 2 || got[3] != 3 {
		t.Fatalf("statuses=%v", got)
	}
	if v, _ := newStore(t, m, sampleTable).Byte(idxLight); v != 3 {
		t.Fatalf("Byte=%d, want 3", v)
	}
}

func TestQueueBounds(t *testing.T) {
	m := simeeprom.New(32, simeeprom.WithFill(0))
	s := newStore(t, m, sampleTable, WithQueueCapacity(3))

	for v := byte(1); v <= 3; v++ {
		if err := s.SetByte(idxLight, v); err != nil {
			t.Fatalf("write %d: %v", v, err)
		}
	}
	err := s.SetByte(idxLight, 4)
	if !errors.Is(err, errcode.QueueFull) {
		t.Fatalf("err=%v, want queue_full", err)
	}
	if st := s.Stats(); st.Dropped != 1 || st.Pending != 3 {
		t.Fatalf("stats=%+v", st)
	}

	// One record is 1 dequeue step + 2 byte steps; the first step takes it.
	s.StartWriter()
	m.Step()
	if st := s.Stats(); st.Pending != 2 {
		t.Fatalf("pending=%d after first dequeue", st.Pending)
	}
	if err := s.SetByte(idxLight, 4); err != nil {
		t.Fatalf("write after one dequeue: %v", err)
	}
	if err := s.SetByte(idxLight, 5); !errors.Is(err, errcode.QueueFull) {
		t.Fatalf("err=%v, want queue_full", err)
	}

	m.Drain(1000)
	if v, _ := newStore(t, m, sampleTable).Byte(idxLight); v != 4 {
		t.Fatalf("final=%d, want 4", v)
	}
	if st := s.Stats(); st.Committed != 4 {
		t.Fatalf("committed=%d", st.Committed)
	}
}

func TestFixedWidthMismatchDoesNotTouchMedium(t *testing.T) {
	cm := &countingMedium{Medium: simeeprom.New(32, simeeprom.WithFill(0))}
	s := newStore(t, cm, sampleTable)

	b, err := s.Byte(idxBatMin)
	if b != 0 || !errors.Is(err, errcode.SizeMismatch) {
		t.Fatalf("Byte=%d,%v", b, err)
	}
	w, err := s.Word(idxLight)
	if w != 0 || !errors.Is(err, errcode.SizeMismatch) {
		t.Fatalf("Word=%d,%v", w, err)
	}
	if cm.reads != 0 {
		t.Fatalf("medium read %d times", cm.reads)
	}
}

// brokenReadMedium fails every cell read with err.
type brokenReadMedium struct {
	*simeeprom.Medium
	err error
}

func (b *brokenReadMedium) ReadCell(uint16) (byte, error) { return 0, b.err }

func TestReadErrorsKeepMediumCode(t *testing.T) {
	m := &brokenReadMedium{Medium: simeeprom.New(32), err: errors.New("i2c nack")}
	s := newStore(t, m, sampleTable)
	if _, err := s.Byte(idxLight); errcode.Of(err) != errcode.MediumIO {
		t.Fatalf("plain error: %v", err)
	}
	m.err = errcode.Busy
	if _, err := s.Word(idxBatMin); errcode.Of(err) != errcode.Busy {
		t.Fatalf("coded error: %v", err)
	}
	if err := s.SetByte(idxLight, 1); errcode.Of(err) != errcode.Busy {
		t.Fatalf("request_write: %v", err)
	}
}

func TestBlockTruncatesToSmallerSize(t *testing.T) {
	m := simeeprom.New(32, simeeprom.WithFill(0))
	s := newStore(t, m, sampleTable)
	_ = s.RequestWrite(idxBatMin, []byte{0x01, 0x02})
	drain(t, s, m)

	one := []byte{0xEE}
	if n, err := s.Block(idxBatMin, one); n != 1 || err != nil || one[0] != 0x01 {
		t.Fatalf("short block n=%d err=%v buf=%x", n, err, one)
	}
	big := []byte{0xEE, 0xEE, 0xEE, 0xEE}
	if n, _ := s.Block(idxBatMin, big); n != 2 || big[1] != 0x02 || big[2] != 0xEE {
		t.Fatalf("long block n=%d buf=%x", n, big)
	}
}

func TestInvalidIndexAndShortValue(t *testing.T) {
	m := simeeprom.New(32)
	s := newStore(t, m, sampleTable)
	if _, err := s.Byte(7); !errors.Is(err, errcode.InvalidIndex) {
		t.Fatalf("Byte err=%v", err)
	}
	if err := s.RequestWrite(-1, []byte{1}); !errors.Is(err, errcode.InvalidIndex) {
		t.Fatalf("RequestWrite err=%v", err)
	}
	if err := s.RequestWrite(idxBatMin, []byte{1}); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("short value err=%v", err)
	}
}

func TestRecordOwnsItsData(t *testing.T) {
	m := simeeprom.New(32, simeeprom.WithFill(0))
	s := newStore(t, m, sampleTable)
	buf := []byte{0x10, 0x20}
	_ = s.RequestWrite(idxBatMin, buf)
	buf[0], buf[1] = 0xFF, 0xFF
	drain(t, s, m)
	if v, _ := newStore(t, m, sampleTable).Word(idxBatMin); v != 0x2010 {
		t.Fatalf("Word=%#x, want 0x2010", v)
	}
}

func TestStartWriterIsIdempotentAndQueueAcceptsWhileActive(t *testing.T) {
	m := simeeprom.New(32, simeeprom.WithFill(0))
	s := newStore(t, m, sampleTable)

	s.StartWriter()
	if s.Busy() || m.Armed() {
		t.Fatal("writer armed with nothing queued")
	}

	_ = s.SetByte(idxLight, 1)
	s.StartWriter()
	s.StartWriter()
	if !s.Busy() || !m.Armed() {
		t.Fatal("writer not armed")
	}
	m.Step() // dequeue + status byte
	if err := s.SetWord(idxBatMin, 77); err != nil {
		t.Fatalf("enqueue while active: %v", err)
	}
	m.Drain(100)
	if m.Armed() || s.Busy() {
		t.Fatal("writer did not return to idle")
	}
	s2 := newStore(t, m, sampleTable)
	if v, _ := s2.Byte(idxLight); v != 1 {
		t.Fatalf("light=%d", v)
	}
	if v, _ := s2.Word(idxBatMin); v != 77 {
		t.Fatalf("bat=%d", v)
	}
}

func TestStatusByteIsWrittenFirst(t *testing.T) {
	m := simeeprom.New(32, simeeprom.WithFill(0))
	s := newStore(t, m, sampleTable)
	d := sampleTable[idxBatMin]
	_ = s.SetWord(idxBatMin, 0x0304)
	s.StartWriter()
	m.Step()

	img := m.Image()
	next := d.SlotAddr(1)
	if img[next] != 1 || img[next+1] != 0 || img[next+2] != 0 {
		t.Fatalf("after one byte: %x", img[next:next+3])
	}
}

func TestPowerCutKeepsPreviousValue(t *testing.T) {
	m := simeeprom.New(32, simeeprom.WithFill(0))
	s := newStore(t, m, sampleTable)
	bat := sampleTable[idxBatMin]
	_ = s.SetWord(idxBatMin, 1000)
	drain(t, s, m)

	// Nothing of the second write reaches the cells.
	m.CutPowerAfter(0)
	_ = s.SetWord(idxBatMin, 2000)
	drain(t, s, m)
	m.RestorePower()
	if v := storedWord(t, m, bat); v != 1000 {
		t.Fatalf("after cut stored=%d, want 1000", v)
	}

	// A full record followed by a cut before the next record's status.
	_ = s.SetWord(idxBatMin, 3000)
	_ = s.SetWord(idxBatMin, 4000)
	m.CutPowerAfter(3)
	drain(t, s, m)
	m.RestorePower()
	if v := storedWord(t, m, bat); v != 3000 {
		t.Fatalf("after second cut stored=%d, want 3000", v)
	}

	// Reopening the medium sees the same value.
	if v, _ := newStore(t, m, sampleTable).Word(idxBatMin); v != 3000 {
		t.Fatalf("reopened Word=%d, want 3000", v)
	}
}

// storedWord reads d's current value straight off the medium.
func storedWord(t *testing.T, m *simeeprom.Medium, d Descriptor) uint16 {
	t.Helper()
	addr, err := Locate(m, d)
	if err != nil {
		t.Fatal(err)
	}
	lo, _ := m.ReadCell(addr)
	hi, _ := m.ReadCell(addr + 1)
	return uint16(lo) | uint16(hi)<<8
}

func TestSecondStoreTakesOverTheMedium(t *testing.T) {
	m := simeeprom.New(32, simeeprom.WithFill(0))
	first := newStore(t, m, sampleTable)
	second := newStore(t, m, sampleTable)

	_ = first.SetByte(idxLight, 9)
	first.StartWriter()
	m.Drain(100)
	if !first.Busy() || first.Stats().Pending != 1 {
		t.Fatalf("first store stats=%+v, want stranded", first.Stats())
	}

	_ = second.SetByte(idxLight, 9)
	drain(t, second, m)
	if v := m.Image()[sampleTable[idxLight].SlotAddr(1)+1]; v != 9 {
		t.Fatalf("slot 1 data=%d, want 9", v)
	}
}

func TestWriteErrorsAreCountedAndWriterMovesOn(t *testing.T) {
	m := &failingMedium{Medium: simeeprom.New(32, simeeprom.WithFill(0)), failAt: 1}
	s := newStore(t, m, sampleTable)
	_ = s.SetByte(idxLight, 1)
	s.StartWriter()
	m.Drain(100)
	st := s.Stats()
	if st.WriteErrors != 1 || st.Failed != 1 || st.Committed != 0 || st.Busy {
		t.Fatalf("stats=%+v", st)
	}
	// The status byte never landed, so the chain still ends at slot 0.
	if s.Pending(idxLight) {
		t.Fatal("failed record still pending")
	}
	if v, _ := s.Byte(idxLight); v != 0 {
		t.Fatalf("Byte=%d after failed write, want 0", v)
	}

	// The next record is unaffected by the earlier failure.
	_ = s.SetByte(idxLight, 2)
	drain(t, s, m.Medium)
	if st := s.Stats(); st.Committed != 1 || st.Failed != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if v, _ := s.Byte(idxLight); v != 2 {
		t.Fatalf("Byte=%d, want 2", v)
	}
}

// failingMedium fails the n-th write.
type failingMedium struct {
	*simeeprom.Medium
	failAt int
	n      int
}

func (f *failingMedium) WriteCellAsync(addr uint16, v byte) error {
	f.n++
	if f.n == f.failAt {
		return errors.New("nack")
	}
	return f.Medium.WriteCellAsync(addr, v)
}

func TestConcurrentProducerWithRunningMedium(t *testing.T) {
	m := simeeprom.New(64, simeeprom.WithFill(0))
	s := newStore(t, m, sampleTable, WithQueueCapacity(4), WithAutoStart(true))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go m.Run(ctx)

	var lastLight byte
	var lastBat uint16
	for k := 1; k <= 300; k++ {
		lastLight, lastBat = byte(k), uint16(k*3)
		for {
			err := s.SetByte(idxLight, lastLight)
			if err == nil {
				break
			}
			if !errors.Is(err, errcode.QueueFull) {
				t.Fatal(err)
			}
			time.Sleep(50 * time.Microsecond)
		}
		for {
			err := s.SetWord(idxBatMin, lastBat)
			if err == nil {
				break
			}
			if !errors.Is(err, errcode.QueueFull) {
				t.Fatal(err)
			}
			time.Sleep(50 * time.Microsecond)
		}
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	st := s.Stats()
	if st.Committed != st.Queued {
		t.Fatalf("committed %d of %d", st.Committed, st.Queued)
	}

	cancel()
	m2 := simeeprom.New(64)
	_ = m2.Load(m.Image())
	s3 := newStore(t, m2, sampleTable)
	if v, _ := s3.Byte(idxLight); v != lastLight {
		t.Fatalf("light=%d want %d", v, lastLight)
	}
	if v, _ := s3.Word(idxBatMin); v != lastBat {
		t.Fatalf("bat=%d want %d", v, lastBat)
	}
}

func TestFlushTimesOutWithoutNotifications(t *testing.T) {
	m := simeeprom.New(32, simeeprom.WithFill(0))
	s := newStore(t, m, sampleTable)
	_ = s.SetByte(idxLight, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Flush(ctx); errcode.Of(err) != errcode.Timeout {
		t.Fatalf("err=%v, want timeout", err)
	}
}

func TestNewRejectsOversizedTable(t *testing.T) {
	if _, err := New(simeeprom.New(12), sampleTable); errcode.Of(err) != errcode.InvalidLayout {
		t.Fatalf("err=%v", err)
	}
}
