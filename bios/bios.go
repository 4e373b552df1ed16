/*
 * kernelsim - Component K, the bridge to BIOS-level primitives.
 *
 * Grounded on emu/sys_channel.go's register-access functions (ReadCmd,
 * WriteData, status word access) and the reserved-page load/store pair
 * emu/cpu.go uses for PSW save/restore; kept intentionally thin; the value
 * of this repository is in nucleus and support, not in re-simulating a
 * MIPS core.
 */

package bios

import "github.com/mipskernel/kernel/nucleus/cpustate"

// Registers is the per-device register file: status, command, data0,
// data1 (spec.md 6, device register layout). A terminal exposes two of
// these, one per sub-device half.
type Registers interface {
	// Status returns the device's latched status word.
	Status(line, dev int) uint8
	// WriteCommand issues a command word; for split devices cmd encodes
	// whether it targets the receiver or transmitter half.
	WriteCommand(line, dev int, cmd uint32)
	// WriteData0 stores an outbound character (terminal transmit,
	// printer); flash and disk transfers use SetDMABuffer instead, since
	// this simulation has no real physical address space to point into.
	WriteData0(line, dev int, val uint32)
	// ReadData1 returns disk geometry ((maxCyl<<16)|(maxHead<<8)|maxSect)
	// or, for terminal receive, the received character in its upper byte.
	ReadData1(line, dev int) uint32
	// SetDMABuffer hands the device simulation the frame a flash or disk
	// transfer reads into or writes from, standing in for "DMA address in
	// data0" (spec.md 6).
	SetDMABuffer(line, dev int, frame []uint32)
}

// TLBEntry is a single cached translation: the cache the pager must
// surgically keep consistent with the in-memory page table.
type TLBEntry struct {
	EntryHI uint32
	Frame   uint32
	Valid   bool
	Dirty   bool
	Global  bool
}

// TLB is the software-managed translation cache. Probe reports whether
// entryHI is currently cached and at which index; Write replaces a
// specific index; WriteRandom is used by the refill handler, which does
// not know or care which index it lands in.
type TLB interface {
	Probe(entryHI uint32) (index int, ok bool)
	Write(index int, e TLBEntry)
	WriteRandom(e TLBEntry)
}

// ExceptionPage is the reserved page BIOS writes saved processor state to
// on every exception, and restores from on LDST/LDCXT.
type ExceptionPage interface {
	// Save copies the BIOS-saved state for slot (general or TLB-refill)
	// into dst.
	Save(slot int, dst *cpustate.CPUState)
	// LDST resumes a process from state: the "does not return" primitive
	// spec.md 6 names. In this simulation, since user instruction
	// execution is out of scope, LDST's effect is simply recording state
	// as the process's resumed saved state; the driver loop is what
	// actually decides what runs next.
	LDST(state *cpustate.CPUState)
}

const (
	ExceptionSlotRefill  = 0
	ExceptionSlotGeneral = 1
)
