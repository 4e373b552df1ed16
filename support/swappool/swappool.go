/*
 * kernelsim - swap pool table: the set of physical frames backing
 * demand-paged user memory (spec.md 3, 4.F).
 *
 * Grounded on util/tape.go's fixed-capacity, index-addressed record store
 * (a tape is modeled as a flat array of fixed-size blocks addressed by
 * index); the swap pool applies the same shape to physical frames instead
 * of tape blocks.
 */

package swappool

import (
	"github.com/mipskernel/kernel/nucleus/pcb"
	"github.com/mipskernel/kernel/nucleus/sema"
	"github.com/mipskernel/kernel/nucleus/supportstruct"
)

// FreeASID marks a swap-pool entry as unoccupied.
const FreeASID = ^uint32(0)

// FrameWords is the size of one physical frame, matching the page size
// the pager moves in a single flash transfer.
const FrameWords = 1024

// Entry describes one physical frame's occupant.
type Entry struct {
	ASID  uint32 // FreeASID if unoccupied
	VPN   uint32
	PTE   *supportstruct.PTE // back-pointer to the owning page-table entry
	Owner *pcb.PCB           // the process a flash I/O failure during eviction must terminate
}

// Table is the swap pool: a fixed array of frames, a round-robin victim
// cursor, and the mutual-exclusion semaphore all user ASIDs and the
// pager share (spec.md 5).
type Table struct {
	Entries []Entry
	Frames  [][]uint32
	Mutex   *sema.Sem

	next int
}

// New builds a swap pool of capacity frames, all initially free.
func New(capacity int) *Table {
	t := &Table{
		Entries: make([]Entry, capacity),
		Frames:  make([][]uint32, capacity),
		Mutex:   sema.New(1),
	}
	for i := range t.Entries {
		t.Entries[i].ASID = FreeASID
		t.Frames[i] = make([]uint32, FrameWords)
	}
	return t
}

// NextVictim advances the round-robin cursor and returns the frame index
// it selects, per spec.md 4.F step 3.
func (t *Table) NextVictim() int {
	idx := t.next
	t.next = (t.next + 1) % len(t.Entries)
	return idx
}
