/*
 * kernelsim - semaphore handles.
 *
 * spec.md models a semaphore as "the address of a word in memory"; this
 * package gives every semaphore a synthetic, monotonically increasing
 * Addr assigned at creation time so the Active Semaphore List can sort on
 * it exactly as the spec describes, without resorting to unsafe.Pointer
 * arithmetic over live Go values.
 */

package sema

// Sem is a counting semaphore identified by its Addr.
type Sem struct {
	Addr  uint32
	Value int32
}

var nextAddr uint32 = 0x1000

// New creates a semaphore with the given initial count and the next
// address in the boot-time allocation sequence.
func New(initial int32) *Sem {
	nextAddr += 4
	return &Sem{Addr: nextAddr, Value: initial}
}
