package nvstore

// writerState is the Idle/Active machine. It is touched only from the
// medium's ready handler.
type writerState struct {
	active bool
	failed bool // a byte of rec was rejected by the medium
	rec    record
	cursor int // 0: status pending; 1..size: data byte cursor-1 pending
}

// StartWriter arms the medium's ready notification if the writer is idle
// and there is something to write. It is a no-op while the writer is busy.
func (s *Store) StartWriter() {
	s.cs.Enter()
	if !s.busy && s.q.len() > 0 {
		s.busy = true
		s.m.ArmReady()
	}
	s.cs.Exit()
}

// handleReady runs once per ready notification: it issues exactly one byte
// write, rotating to the next queued record when the current one is done.
func (s *Store) handleReady() {
	w := &s.w
	if !w.active || w.cursor > int(w.rec.size) {
		s.cs.Enter()
		if w.active {
			s.retire(w.rec, w.failed)
		}
		rec, ok := s.q.dequeue()
		if !ok {
			w.active = false
			s.busy = false
			s.m.DisarmReady()
			s.cs.Exit()
			select {
			case s.idle <- struct{}{}:
			default:
			}
			return
		}
		s.cs.Exit()
		w.rec, w.cursor, w.active, w.failed = rec, 0, true, false
	}

	addr, v := w.rec.target, w.rec.status
	if w.cursor > 0 {
		addr += uint16(w.cursor)
		v = w.rec.data[w.cursor-1]
	}
	w.cursor++
	if err := s.m.WriteCellAsync(addr, v); err != nil {
		s.wErrors.Add(1)
		w.failed = true
		return
	}
	s.written.Add(1)
}

// retire counts rec as committed or failed and drops its pending shadow
// unless a newer write superseded it. A failed record may have left part of
// its bytes on the medium; reads go back to whatever the chain says. Called
// inside s.cs.
func (s *Store) retire(rec record, failed bool) {
	if failed {
		s.failed.Add(1)
	} else {
		s.committed.Add(1)
	}
	if p := &s.pend[rec.index]; p.valid && p.seq == rec.seq {
		p.valid = false
	}
}
