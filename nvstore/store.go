// Package nvstore keeps small fixed-size parameters in a finite-endurance
// byte medium, spreading the writes of every parameter over a circular
// buffer of slots.
//
// Reads are synchronous. Writes are queued by RequestWrite and committed in
// the background, one byte per medium ready notification, once StartWriter
// (or Flush) has been called:
//
//	st, _ := nvstore.New(medium, table)
//	_ = st.SetByte(idxLCDLight, 7)
//	st.StartWriter()
//
// A Store has one producer: RequestWrite and its helpers must be called from
// a single goroutine. Reads observe the newest accepted value, including one
// that is still queued.
package nvstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync/atomic"

	"eeparam-go/errcode"
	"eeparam-go/x/critical"
)

// Option configures a Store.
type Option func(*Store)

// WithQueueCapacity sets how many writes may be pending (default 10).
func WithQueueCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.qcap = n
		}
	}
}

// WithAutoStart starts the writer after every accepted write request.
func WithAutoStart(on bool) Option {
	return func(s *Store) { s.autoStart = on }
}

// pending shadows the newest queued, not yet committed, write of a parameter.
type pending struct {
	valid  bool
	seq    uint32
	target uint16
	status byte
	data   [MaxElementSize]byte
}

// Stats is a point-in-time view of the write path.
type Stats struct {
	Queued       uint32 // write requests accepted into the queue
	Skipped      uint32 // requests that matched the stored value
	Dropped      uint32 // requests rejected because the queue was full
	Committed    uint32 // records whose every byte was accepted by the medium
	Failed       uint32 // records with at least one rejected byte
	BytesWritten uint32
	WriteErrors  uint32
	Pending      int  // records waiting in the queue
	Busy         bool // writer armed or active
}

type Store struct {
	m         Medium
	table     Table
	qcap      int
	autoStart bool

	q    *writeQueue
	idle chan struct{} // edge: writer went idle

	cs   critical.Section // guards busy, pend, seq
	busy bool
	pend []pending
	seq  uint32

	// Owned by the ready handler.
	w writerState

	queued, skipped, dropped atomic.Uint32
	committed, failed        atomic.Uint32
	written, wErrors         atomic.Uint32
}

// New validates t against m and installs the writer as m's ready handler.
// The Store takes the handler over: only one Store may own a medium, and a
// second New on the same medium strands the first one's writer.
func New(m Medium, t Table, opts ...Option) (*Store, error) {
	if m == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "nvstore.New", Msg: "nil medium"}
	}
	if err := t.Validate(m.Size()); err != nil {
		return nil, err
	}
	s := &Store{
		m:     m,
		table: t,
		qcap:  DefaultQueueCapacity,
		idle:  make(chan struct{}, 1),
		pend:  make([]pending, len(t)),
	}
	for _, o := range opts {
		o(s)
	}
	s.q = newWriteQueue(s.qcap)
	m.SetReadyHandler(s.handleReady)
	return s, nil
}

func (s *Store) Table() Table { return s.table }

// ---- Reads ----

// Byte reads a one-byte parameter. Any other element size yields 0 and
// errcode.SizeMismatch without touching the medium.
func (s *Store) Byte(index int) (byte, error) {
	d, err := s.table.Describe(index)
	if err != nil {
		return 0, err
	}
	if d.ElementSize != 1 {
		return 0, errcode.SizeMismatch
	}
	var b [1]byte
	if err := s.read(index, d, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// Word reads a two-byte parameter stored little-endian. Any other element
// size yields 0 and errcode.SizeMismatch without touching the medium.
func (s *Store) Word(index int) (uint16, error) {
	d, err := s.table.Describe(index)
	if err != nil {
		return 0, err
	}
	if d.ElementSize != 2 {
		return 0, errcode.SizeMismatch
	}
	var b [2]byte
	if err := s.read(index, d, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

// Block copies min(len(buf), element size) bytes of the current value into
// buf and returns the count. Shorter buffers truncate silently.
func (s *Store) Block(index int, buf []byte) (int, error) {
	d, err := s.table.Describe(index)
	if err != nil {
		return 0, err
	}
	n := len(buf)
	if n > int(d.ElementSize) {
		n = int(d.ElementSize)
	}
	if err := s.read(index, d, buf[:n]); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) read(index int, d Descriptor, dst []byte) error {
	s.cs.Enter()
	p := s.pend[index]
	s.cs.Exit()
	if p.valid {
		copy(dst, p.data[:])
		return nil
	}
	addr, err := Locate(s.m, d)
	if err != nil {
		return errcode.Wrap(errcode.MapDriverErr(err), "read", err)
	}
	return s.readCells(addr, dst)
}

func (s *Store) readCells(addr uint16, dst []byte) error {
	for i := range dst {
		b, err := s.m.ReadCell(addr + uint16(i))
		if err != nil {
			return errcode.Wrap(errcode.MapDriverErr(err), "read", err)
		}
		dst[i] = b
	}
	return nil
}

// ---- Writes ----

// RequestWrite queues data as the next value of parameter index. Only the
// first element-size bytes of data are used. A value equal to the current
// one is not queued. When the queue is full the request is dropped and
// errcode.QueueFull is returned. RequestWrite never waits for the writer.
func (s *Store) RequestWrite(index int, data []byte) error {
	d, err := s.table.Describe(index)
	if err != nil {
		return err
	}
	n := int(d.ElementSize)
	if len(data) < n {
		return &errcode.E{C: errcode.InvalidParams, Op: "request_write", Msg: "value shorter than parameter"}
	}
	data = data[:n]

	// Current slot: the newest queued write if there is one, else the medium.
	var cur [MaxElementSize]byte
	s.cs.Enter()
	p := s.pend[index]
	s.cs.Exit()

	statusAddr, status := p.target, p.status
	if p.valid {
		cur = p.data
	} else {
		statusAddr, status, err = currentSlot(s.m, d)
		if err != nil {
			return errcode.Wrap(errcode.MapDriverErr(err), "request_write", err)
		}
		if err := s.readCells(statusAddr+1, cur[:n]); err != nil {
			return err
		}
	}
	if bytes.Equal(cur[:n], data) {
		s.skipped.Add(1)
		return nil
	}

	rec := record{
		index:  index,
		target: following(d, statusAddr),
		status: status + 1,
		size:   uint8(n),
	}
	copy(rec.data[:], data)

	s.cs.Enter()
	s.seq++
	rec.seq = s.seq
	ok := s.q.enqueue(rec)
	if ok {
		s.pend[index] = pending{valid: true, seq: rec.seq, target: rec.target, status: rec.status, data: rec.data}
	}
	s.cs.Exit()

	if !ok {
		s.dropped.Add(1)
		return errcode.QueueFull
	}
	s.queued.Add(1)
	if s.autoStart {
		s.StartWriter()
	}
	return nil
}

// SetByte queues v for a one-byte parameter.
func (s *Store) SetByte(index int, v byte) error {
	d, err := s.table.Describe(index)
	if err != nil {
		return err
	}
	if d.ElementSize != 1 {
		return errcode.SizeMismatch
	}
	return s.RequestWrite(index, []byte{v})
}

// SetWord queues v, little-endian, for a two-byte parameter.
func (s *Store) SetWord(index int, v uint16) error {
	d, err := s.table.Describe(index)
	if err != nil {
		return err
	}
	if d.ElementSize != 2 {
		return errcode.SizeMismatch
	}
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return s.RequestWrite(index, b[:])
}

// Flush starts the writer and waits until every queued write has been
// committed or ctx is done.
func (s *Store) Flush(ctx context.Context) error {
	for {
		s.StartWriter()
		if s.drained() {
			return nil
		}
		select {
		case <-s.idle:
		case <-ctx.Done():
			return errcode.Wrap(errcode.Timeout, "flush", ctx.Err())
		}
	}
}

func (s *Store) drained() bool {
	s.cs.Enter()
	defer s.cs.Exit()
	return !s.busy && s.q.len() == 0
}

// Busy reports whether the writer is armed or writing.
func (s *Store) Busy() bool {
	s.cs.Enter()
	defer s.cs.Exit()
	return s.busy
}

func (s *Store) Stats() Stats {
	return Stats{
		Queued:       s.queued.Load(),
		Skipped:      s.skipped.Load(),
		Dropped:      s.dropped.Load(),
		Committed:    s.committed.Load(),
		Failed:       s.failed.Load(),
		BytesWritten: s.written.Load(),
		WriteErrors:  s.wErrors.Load(),
		Pending:      s.q.len(),
		Busy:         s.Busy(),
	}
}

// Pending reports whether parameter index has a queued value that has not
// been committed yet.
func (s *Store) Pending(index int) bool {
	if index < 0 || index >= len(s.pend) {
		return false
	}
	s.cs.Enter()
	defer s.cs.Exit()
	return s.pend[index].valid
}

// QueueCap reports the write queue capacity.
func (s *Store) QueueCap() int { return s.q.cap() }
