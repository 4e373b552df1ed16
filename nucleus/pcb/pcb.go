/*
 * kernelsim - PCB pool and process queues.
 *
 * Grounded on the S/370 teacher's fixed-capacity, index-free resource
 * pools (emu/sys_channel's chanCtl array, emu/event's hand-linked list)
 * generalized to the process-control-block pool and its circular
 * doubly linked FIFOs described in spec.md 4.A.
 */

package pcb

import (
	"errors"

	"github.com/mipskernel/kernel/nucleus/cpustate"
	"github.com/mipskernel/kernel/nucleus/sema"
	"github.com/mipskernel/kernel/nucleus/supportstruct"
)

// MaxProc is the fixed PCB pool capacity (tunable per spec.md 4.A).
const MaxProc = 20

// ErrExhausted is returned by Alloc when the pool is empty.
var ErrExhausted = errors.New("pcb: pool exhausted")

// ErrNotFound is returned by a queue's RemoveSpecific when the PCB is not
// a member of that queue.
var ErrNotFound = errors.New("pcb: not found in queue")

// PCB is one process control block. A PCB is, at any instant, in exactly
// one of: the free pool, a ready queue, one ASL FIFO, or "current".
type PCB struct {
	Pid   int
	State cpustate.CPUState

	// Queue links: a circular doubly linked FIFO, see Queue below.
	prev, next *PCB

	// Tree links: parent/first-child/sibling, the progeny graph
	// cascade-terminate walks.
	Parent          *PCB
	Child           *PCB
	PrevSib, NextSib *PCB

	CPUTime uint64 // accumulated microseconds of CPU time

	// Sem is the semaphore this PCB is blocked on, or nil if it isn't
	// blocked. Sem.Addr is "the address of the semaphore" in spec.md.
	Sem *sema.Sem

	Support *supportstruct.Support

	free bool
}

// Pool is a fixed-capacity PCB allocator.
type Pool struct {
	slots []PCB
	free  []*PCB
}

// NewPool builds a pool of MaxProc zeroed, free PCBs, pids 1..MaxProc.
func NewPool() *Pool {
	p := &Pool{slots: make([]PCB, MaxProc)}
	p.free = make([]*PCB, 0, MaxProc)
	for i := range p.slots {
		p.slots[i].Pid = i + 1
		p.slots[i].free = true
		p.free = append(p.free, &p.slots[i])
	}
	return p
}

// Alloc returns a fully zeroed PCB (Pid preserved) or ErrExhausted.
func (p *Pool) Alloc() (*PCB, error) {
	if len(p.free) == 0 {
		return nil, ErrExhausted
	}
	n := len(p.free) - 1
	pcb := p.free[n]
	p.free = p.free[:n]

	pid := pcb.Pid
	*pcb = PCB{Pid: pid}
	return pcb, nil
}

// Free returns a PCB to the pool. Double-free is a nop.
func (p *Pool) Free(pcb *PCB) {
	if pcb == nil || pcb.free {
		return
	}
	pcb.prev, pcb.next = nil, nil
	pcb.Parent, pcb.Child, pcb.PrevSib, pcb.NextSib = nil, nil, nil, nil
	pcb.Sem = nil
	pcb.Support = nil
	pcb.free = true
	p.free = append(p.free, pcb)
}

// InUse reports how many PCBs are currently allocated.
func (p *Pool) InUse() int {
	return len(p.slots) - len(p.free)
}

// Snapshot returns every currently allocated PCB, pid order, for
// read-only introspection (internal/monitor's ps command).
func (p *Pool) Snapshot() []*PCB {
	var out []*PCB
	for i := range p.slots {
		if !p.slots[i].free {
			out = append(out, &p.slots[i])
		}
	}
	return out
}

// Queue is a circular doubly linked FIFO addressed by a single tail
// handle; the head is tail.next.
type Queue struct {
	tail *PCB
}

// Empty reports whether the queue has no members.
func (q *Queue) Empty() bool {
	return q.tail == nil
}

// InsertTail appends pcb to the queue.
func (q *Queue) InsertTail(pcb *PCB) {
	if q.tail == nil {
		pcb.next = pcb
		pcb.prev = pcb
		q.tail = pcb
		return
	}
	head := q.tail.next
	pcb.next = head
	pcb.prev = q.tail
	q.tail.next = pcb
	head.prev = pcb
	q.tail = pcb
}

// PeekHead returns the head of the queue without removing it, or nil.
func (q *Queue) PeekHead() *PCB {
	if q.tail == nil {
		return nil
	}
	return q.tail.next
}

// RemoveHead pops and returns the head of the queue, or nil if empty.
func (q *Queue) RemoveHead() *PCB {
	if q.tail == nil {
		return nil
	}
	head := q.tail.next
	if head == q.tail {
		q.tail = nil
		head.next, head.prev = nil, nil
		return head
	}
	q.tail.next = head.next
	head.next.prev = q.tail
	head.next, head.prev = nil, nil
	return head
}

// RemoveSpecific removes pcb from wherever it sits in the queue.
// Returns ErrNotFound if pcb is not a member of this queue.
func (q *Queue) RemoveSpecific(pcb *PCB) error {
	if q.tail == nil {
		return ErrNotFound
	}
	if pcb == q.tail && pcb.next == pcb {
		q.tail = nil
		pcb.next, pcb.prev = nil, nil
		return nil
	}

	cur := q.tail.next
	for {
		if cur == pcb {
			cur.prev.next = cur.next
			cur.next.prev = cur.prev
			if cur == q.tail {
				q.tail = cur.prev
			}
			cur.next, cur.prev = nil, nil
			return nil
		}
		cur = cur.next
		if cur == q.tail.next {
			break
		}
	}
	return ErrNotFound
}

// Snapshot returns the queue's members head-first without disturbing the
// queue, for read-only introspection (internal/monitor's queue
// command).
func (q *Queue) Snapshot() []*PCB {
	if q.tail == nil {
		return nil
	}
	var out []*PCB
	cur := q.tail.next
	for {
		out = append(out, cur)
		cur = cur.next
		if cur == q.tail.next {
			break
		}
	}
	return out
}

// InsertChildHead makes child the parent's first child (LIFO sibling
// order, matching the instantiator's need to insert at head cheaply).
func InsertChildHead(parent, child *PCB) {
	child.Parent = parent
	child.NextSib = parent.Child
	child.PrevSib = nil
	if parent.Child != nil {
		parent.Child.PrevSib = child
	}
	parent.Child = child
}

// RemoveFirstChild detaches and returns the parent's first child, or nil.
func RemoveFirstChild(parent *PCB) *PCB {
	child := parent.Child
	if child == nil {
		return nil
	}
	RemoveChild(child)
	return child
}

// RemoveChild detaches pcb from its parent's sibling list in O(1), the
// doubly linked sibling list spec.md 4.A calls for.
func RemoveChild(pcb *PCB) {
	if pcb.Parent != nil && pcb.Parent.Child == pcb {
		pcb.Parent.Child = pcb.NextSib
	}
	if pcb.PrevSib != nil {
		pcb.PrevSib.NextSib = pcb.NextSib
	}
	if pcb.NextSib != nil {
		pcb.NextSib.PrevSib = pcb.PrevSib
	}
	pcb.Parent, pcb.PrevSib, pcb.NextSib = nil, nil, nil
}
