//go:build rp2040 || rp2350

package critical

import "runtime/interrupt"

// Section is the zero-value-ready critical section.
type Section struct {
	st interrupt.State
}

func (s *Section) Enter() { s.st = interrupt.Disable() }
func (s *Section) Exit()  { interrupt.Restore(s.st) }
