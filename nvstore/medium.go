package nvstore

// Reader is the blocking single-byte read side of a medium.
type Reader interface {
	ReadCell(addr uint16) (byte, error)
}

// Medium is a byte-addressable, finite-endurance non-volatile memory.
//
// WriteCellAsync starts a single-byte write and returns without waiting for
// the cell to be programmed. While the ready notification is armed and the
// medium is idle, the handler installed with SetReadyHandler is invoked; the
// medium becomes idle again after every write attempt, failed or not. The
// handler runs in the medium's notification context and must not block.
type Medium interface {
	Reader
	Size() int
	WriteCellAsync(addr uint16, v byte) error
	SetReadyHandler(h func())
	ArmReady()
	DisarmReady()
}
