/*
 * kernelsim - saved processor state and exception-cause decoding.
 *
 * Grounded on the S/370 teacher's PSW handling in emu/cpu/cpu.go
 * (storePSW/lpsw move a fixed-shape processor state between a BIOS-owned
 * page and in-memory structures); this package is the MIPS-like analogue,
 * a plain struct moved by value instead of a bit-packed PSW.
 */

package cpustate

// CPUState is the state BIOS saves on every exception: general registers,
// program counter, status word, cause word and the entry-key (TLB
// EntryHI: ASID in the low bits, the faulting VPN in the high bits).
type CPUState struct {
	Regs    [32]uint32
	PC      uint32
	Status  uint32
	Cause   uint32
	EntryHI uint32
}

// Context is a stack-pointer/program-counter/status triple: what LDCXT
// swaps in atomically when the nucleus passes an exception up to the
// support level, or when the instantiator primes a brand new process.
type Context struct {
	SP     uint32
	PC     uint32
	Status uint32
}

// Status word bits (subset needed by the scheduler and exception router).
const (
	StatusIntEnable uint32 = 1 << 0 // global interrupt enable
	StatusUserMode  uint32 = 1 << 1 // 0 = kernel mode, 1 = user mode
	StatusPLT       uint32 = 1 << 2 // processor local timer enabled
)

// Move copies src into dst by value, the Go equivalent of the nucleus's
// "full copy of saved processor state between two locations".
func Move(dst *CPUState, src *CPUState) {
	*dst = *src
}

// ExcCode extracts the exception cause class from a saved Cause word.
// Bits 2..6 hold the code, matching the MIPS Cause register layout this
// kernel's BIOS imitates.
func ExcCode(cause uint32) uint16 {
	return uint16((cause >> 2) & 0x1f)
}

// Exception classes, decoded by the router in nucleus/syscall.
const (
	ExcInterrupt    uint16 = 0
	ExcTLBMod       uint16 = 1
	ExcTLBInvLoad   uint16 = 2
	ExcTLBInvStore  uint16 = 3
	ExcSyscall      uint16 = 8
)

// EntryHIVPN and EntryHIASID split the entry-key half used by the pager
// and the TLB-refill handler.
func EntryHIVPN(entryHI uint32) uint32 {
	return entryHI >> 12
}

func EntryHIASID(entryHI uint32) uint32 {
	return entryHI & 0xfff
}
