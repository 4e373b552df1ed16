/*
 * kernelsim - per-user-process Support Structure.
 *
 * Grounded on the S/370 teacher's habit of a small, fixed-shape struct of
 * "everything one subsystem needs" (see emu/sys_channel's chanCtl), applied
 * here to the per-process record the nucleus passes exceptions up to.
 */

package supportstruct

import (
	"github.com/mipskernel/kernel/nucleus/cpustate"
	"github.com/mipskernel/kernel/nucleus/sema"
)

// Exception classes the nucleus passes up, used to index OldState and
// NewContext.
const (
	ExcPager   = 0
	ExcGeneral = 1
)

// PageCount is the number of entries in a process's private page table:
// 31 mappable pages plus one distinguished stack page.
const PageCount = 32

// StackPageVPN is the virtual page number of the stack page, the last
// entry in the table.
const StackPageVPN = PageCount - 1

// PTE is one page-table entry: a VPN/ASID key half and a
// frame/valid/dirty/global half.
type PTE struct {
	VPN     uint32
	ASID    uint32
	Frame   uint32
	Valid   bool
	Dirty   bool
	Global  bool
}

// PageTable is a fixed-size, per-process translation table.
type PageTable [PageCount]PTE

// Support is the per-user-process record the nucleus uses to deliver
// exceptions to the support level and the pager uses to translate
// addresses.
type Support struct {
	ASID uint32

	// OldState[ExcPager] / OldState[ExcGeneral] hold the BIOS-saved state
	// at the moment of the most recent page-fault / general exception
	// passed up to this process.
	OldState [2]cpustate.CPUState

	// NewContext[ExcPager] / NewContext[ExcGeneral] are the pre-built
	// entry points the instantiator installs: stack pointer into this
	// process's reserved pager/support stack, program counter at the
	// pager or support dispatcher, kernel mode with interrupts enabled.
	NewContext [2]cpustate.Context

	// Stack is the two reserved stack regions backing NewContext's SPs.
	Stack [2][]uint32

	PageTable PageTable

	// PrivateSem is this process's private binary semaphore, used by the
	// delay facility and the pager's atomic release-and-sleep pattern.
	// It starts at 0; P/V operate on its address like any other
	// semaphore known to the Active Semaphore List.
	PrivateSem *sema.Sem
}

// New allocates a Support Structure with both reserved stacks sized
// stackWords words and an all-invalid page table.
func New(asid uint32, stackWords int) *Support {
	s := &Support{ASID: asid, PrivateSem: sema.New(0)}
	s.Stack[ExcPager] = make([]uint32, stackWords)
	s.Stack[ExcGeneral] = make([]uint32, stackWords)
	for i := range s.PageTable {
		s.PageTable[i] = PTE{VPN: uint32(i), ASID: asid}
	}
	s.PageTable[StackPageVPN].VPN = StackPageVPN
	return s
}
