package nvstore

import (
	"sort"

	"eeparam-go/errcode"
	"eeparam-go/x/strconvx"
)

// MaxElementSize bounds the value size of a single parameter. Write records
// carry an inline copy of this many bytes.
const MaxElementSize = 32

// AddressSpace is the number of cells a 16-bit cell address can reach.
const AddressSpace = 1 << 16

// Descriptor is the fixed geometry of one parameter's circular slot buffer.
// A slot is a status byte followed by ElementSize data bytes.
type Descriptor struct {
	Name        string
	ElementSize uint8
	SlotCount   uint16
	Base        uint16
}

func (d Descriptor) stride() int { return int(d.ElementSize) + 1 }

// End returns one past the last byte of the region.
func (d Descriptor) End() int { return int(d.Base) + int(d.SlotCount)*d.stride() }

// SlotAddr returns the status-byte address of slot i.
func (d Descriptor) SlotAddr(i int) uint16 { return uint16(int(d.Base) + i*d.stride()) }

// Table maps a parameter index to its descriptor. It is produced at build
// time and never mutated.
type Table []Descriptor

func (t Table) Len() int { return len(t) }

// Describe returns the descriptor for index.
func (t Table) Describe(index int) (Descriptor, error) {
	if index < 0 || index >= len(t) {
		return Descriptor{}, errcode.InvalidIndex
	}
	return t[index], nil
}

// Lookup finds a parameter by name.
func (t Table) Lookup(name string) (int, bool) {
	for i, d := range t {
		if d.Name == name && name != "" {
			return i, true
		}
	}
	return -1, false
}

// End returns one past the highest byte used by any region.
func (t Table) End() int {
	end := 0
	for _, d := range t {
		if e := d.End(); e > end {
			end = e
		}
	}
	return end
}

// MaxElementSize returns the largest element size in the table.
func (t Table) MaxElementSize() int {
	m := 0
	for _, d := range t {
		if int(d.ElementSize) > m {
			m = int(d.ElementSize)
		}
	}
	return m
}

// Validate checks the table against a medium of mediumSize bytes.
func (t Table) Validate(mediumSize int) error {
	if len(t) == 0 {
		return layoutErr("empty table")
	}
	for i, d := range t {
		switch {
		case d.ElementSize == 0:
			return layoutErr("param " + strconvx.Itoa(i) + ": element size is zero")
		case d.ElementSize > MaxElementSize:
			return layoutErr("param " + strconvx.Itoa(i) + ": element size exceeds " + strconvx.Itoa(MaxElementSize))
		case d.SlotCount < 2:
			return layoutErr("param " + strconvx.Itoa(i) + ": needs at least 2 slots")
		case d.End() > AddressSpace:
			return layoutErr("param " + strconvx.Itoa(i) + ": region ends at " + strconvx.Itoa(d.End()) +
				", past the 16-bit address space")
		case d.End() > mediumSize:
			return layoutErr("param " + strconvx.Itoa(i) + ": region ends at " + strconvx.Itoa(d.End()) +
				", medium has " + strconvx.Itoa(mediumSize) + " bytes")
		}
	}

	order := make([]int, len(t))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return t[order[a]].Base < t[order[b]].Base })
	for k := 1; k < len(order); k++ {
		prev, cur := t[order[k-1]], t[order[k]]
		if int(cur.Base) < prev.End() {
			return layoutErr("param " + strconvx.Itoa(order[k]) + " overlaps param " + strconvx.Itoa(order[k-1]))
		}
	}
	return nil
}

func layoutErr(msg string) error {
	return &errcode.E{C: errcode.InvalidLayout, Op: "nvstore", Msg: msg}
}
