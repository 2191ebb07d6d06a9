//go:build !(rp2040 || rp2350)

package critical

import "sync"

// Section is the zero-value-ready critical section.
type Section struct {
	mu sync.Mutex
}

func (s *Section) Enter() { s.mu.Lock() }
func (s *Section) Exit()  { s.mu.Unlock() }
