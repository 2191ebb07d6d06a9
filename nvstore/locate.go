package nvstore

// Locate returns the address of the first data byte of d's current slot.
//
// Walking from Base, the current slot is the one before the first status
// byte that does not continue its predecessor by +1 (mod 256), or the last
// slot when the chain is unbroken. Status is written before data, so a slot
// whose write never got its status down is skipped in favour of the one
// before it.
func Locate(m Reader, d Descriptor) (uint16, error) {
	addr, _, err := currentSlot(m, d)
	if err != nil {
		return 0, err
	}
	return addr + 1, nil
}

// currentSlot returns the status address and status byte of d's current slot.
func currentSlot(m Reader, d Descriptor) (uint16, byte, error) {
	stride := uint16(d.stride())
	end := d.SlotAddr(int(d.SlotCount) - 1)

	addr := d.Base
	pred, err := m.ReadCell(addr)
	if err != nil {
		return 0, 0, err
	}
	for addr != end {
		status, err := m.ReadCell(addr + stride)
		if err != nil {
			return 0, 0, err
		}
		if status != pred+1 {
			break
		}
		addr += stride
		pred = status
	}
	return addr, pred, nil
}

// following returns the status address of the slot after addr, wrapping
// from one past the region back to Base.
func following(d Descriptor, addr uint16) uint16 {
	next := int(addr) + d.stride()
	if next == d.End() {
		return d.Base
	}
	return uint16(next)
}
