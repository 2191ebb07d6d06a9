// Package critical provides a critical-section primitive that excludes the
// notification-handler context from a short run of code.
//
// On MCU builds the section disables interrupts; on host builds, where the
// handler context is an ordinary goroutine, it is a mutex. Sections do not
// nest and must never block.
package critical

// Do runs fn inside s.
func (s *Section) Do(fn func()) {
	s.Enter()
	defer s.Exit()
	fn()
}
