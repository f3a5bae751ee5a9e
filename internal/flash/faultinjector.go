package flash

import "fmt"

// FaultInjector wraps a Device and can be told to fail or truncate a
// specific future operation, simulating the power loss / reset that the
// recovery engine exists to survive. Tests drive the property checks in
// SPEC_FULL.md §8 by arming an injector, running an operation, then
// opening a fresh store over the same underlying buffer to observe what
// recovery makes of the partial result.
type FaultInjector struct {
	dev Device

	writeCount int
	eraseCount int

	// failAtWrite, when > 0, is the 1-indexed Write call that should fail
	// or be cut short instead of completing normally.
	failAtWrite int
	// truncateBytes, if > 0, is how many leading bytes of the failing
	// write actually land on the device before the "crash"; the remainder
	// is silently dropped, leaving a torn header or payload for recovery
	// to find.
	truncateBytes int
	// failAtErase, when > 0, is the 1-indexed ErasePage call that fails
	// entirely (no bytes change) rather than completing.
	failAtErase int

	hookAddr int
	// writeHook, if set, replaces the ordinary nth-call arming for the
	// next Write only: it decides for itself whether and how much of the
	// write lands, then returns the error Write should report. This lets
	// a test crash at a specific address (e.g. "the word that demotes
	// this page to a compaction source") instead of guessing a call
	// count by hand.
	writeHook func(dev Device, dst int, src []byte) error
}

// NewFaultInjector wraps dev with no faults armed.
func NewFaultInjector(dev Device) *FaultInjector {
	return &FaultInjector{dev: dev}
}

func (f *FaultInjector) PhysicalPageSize() int       { return f.dev.PhysicalPageSize() }
func (f *FaultInjector) Size() int                   { return f.dev.Size() }
func (f *FaultInjector) ReadAt(addr, n int) []byte    { return f.dev.ReadAt(addr, n) }

// ArmWriteFailure arms the nth Write call (1-indexed) to crash after only
// truncateBytes of it have landed. truncateBytes == 0 means none of it
// lands — the write is a pure no-op from the caller's point of view, just
// like a power loss before the bus cycle started.
func (f *FaultInjector) ArmWriteFailure(nth, truncateBytes int) {
	f.failAtWrite = nth
	f.truncateBytes = truncateBytes
}

// NextWriteWillFail arms whichever Write call comes next, regardless of how
// many have already happened, to crash after truncateBytes have landed.
// Prefer this over ArmWriteFailure when the caller doesn't want to count
// past writes by hand.
func (f *FaultInjector) NextWriteWillFail(truncateBytes int) {
	f.ArmWriteFailure(f.writeCount+1, truncateBytes)
}

// ArmEraseFailure arms the nth ErasePage call (1-indexed) to fail outright.
func (f *FaultInjector) ArmEraseFailure(nth int) {
	f.failAtErase = nth
}

// SetWriteHook arms a one-shot hook that fires on the next Write call whose
// destination address equals addr, in place of the ordinary nth-call
// arming. The hook receives the wrapped device and must itself decide what
// (if anything) actually lands before returning the error Write reports;
// it is cleared after firing once.
func (f *FaultInjector) SetWriteHook(addr int, hook func(dev Device, dst int, src []byte) error) {
	f.hookAddr = addr
	f.writeHook = hook
}

// Disarm clears any pending fault.
func (f *FaultInjector) Disarm() {
	f.failAtWrite = 0
	f.failAtErase = 0
	f.truncateBytes = 0
	f.writeHook = nil
}

func (f *FaultInjector) Write(dst int, src []byte) error {
	f.writeCount++
	if f.writeHook != nil && dst == f.hookAddr {
		hook := f.writeHook
		f.writeHook = nil
		return hook(f.dev, dst, src)
	}
	if f.failAtWrite != 0 && f.writeCount == f.failAtWrite {
		f.failAtWrite = 0
		if f.truncateBytes > 0 {
			n := f.truncateBytes
			if n > len(src) {
				n = len(src)
			}
			_ = f.dev.Write(dst, src[:n])
		}
		return fmt.Errorf("flash: simulated power loss during write at %d", dst)
	}
	return f.dev.Write(dst, src)
}

func (f *FaultInjector) ErasePage(addr int) error {
	f.eraseCount++
	if f.failAtErase != 0 && f.eraseCount == f.failAtErase {
		f.failAtErase = 0
		return fmt.Errorf("flash: simulated power loss during erase at %d", addr)
	}
	return f.dev.ErasePage(addr)
}
