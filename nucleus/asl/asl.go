/*
 * kernelsim - Active Semaphore List.
 *
 * Grounded on the sorted, sentinel-bounded singly linked list in the
 * teacher's emu/event package (event.go's AddEvent/CancelEvent walk a
 * list sorted by relative time with explicit prev/next splicing); the ASL
 * applies the same shape to semaphore descriptors sorted by address, with
 * head/tail sentinels so insertion and removal never hit a NULL
 * predecessor (spec.md 4.B).
 */

package asl

import (
	"errors"

	"github.com/mipskernel/kernel/nucleus/pcb"
	"github.com/mipskernel/kernel/nucleus/sema"
)

// MaxDescriptors bounds the descriptor pool (tunable constant).
const MaxDescriptors = 20

// ErrExhausted is returned by InsertBlocked when the descriptor pool has
// no free entries.
var ErrExhausted = errors.New("asl: descriptor pool exhausted")

type descriptor struct {
	key   uint32 // sorted key: the blocked-on semaphore's address
	sem   *sema.Sem
	fifo  pcb.Queue
	next  *descriptor
	inUse bool
}

// ASL is the Active Semaphore List: a sparse map from semaphore address to
// a FIFO of blocked PCBs, built from a fixed descriptor pool.
type ASL struct {
	pool       []descriptor
	free       []*descriptor
	head, tail *descriptor
}

// New builds an ASL with head/tail sentinels at addresses 0 and MaxUint32,
// exactly as spec.md 4.B specifies.
func New() *ASL {
	a := &ASL{pool: make([]descriptor, MaxDescriptors)}
	for i := range a.pool {
		a.free = append(a.free, &a.pool[i])
	}
	a.head = &descriptor{key: 0}
	a.tail = &descriptor{key: ^uint32(0)}
	a.head.next = a.tail
	return a
}

// findOrPredecessor returns the descriptor matching key if it exists,
// else the descriptor immediately before where key would be inserted.
// Because of the sentinels, the predecessor is never nil.
func (a *ASL) findOrPredecessor(key uint32) (match, pred *descriptor) {
	pred = a.head
	cur := a.head.next
	for cur != a.tail && cur.key < key {
		pred = cur
		cur = cur.next
	}
	if cur != a.tail && cur.key == key {
		return cur, pred
	}
	return nil, pred
}

// InsertBlocked finds or creates the descriptor for sem's address, appends
// p to its FIFO, and records sem on p. Fails only when the
// descriptor pool is exhausted and no descriptor for sem already exists.
func (a *ASL) InsertBlocked(sem *sema.Sem, p *pcb.PCB) error {
	match, pred := a.findOrPredecessor(sem.Addr)
	if match == nil {
		if len(a.free) == 0 {
			return ErrExhausted
		}
		n := len(a.free) - 1
		d := a.free[n]
		a.free = a.free[:n]
		*d = descriptor{key: sem.Addr, sem: sem, inUse: true}
		d.next = pred.next
		pred.next = d
		match = d
	}
	match.fifo.InsertTail(p)
	p.Sem = sem
	return nil
}

// RemoveBlocked pops the FIFO head for sem, clears its blocking key, and
// drops the descriptor if the FIFO is now empty. Returns nil if no
// descriptor or no waiter exists.
func (a *ASL) RemoveBlocked(sem *sema.Sem) *pcb.PCB {
	match, pred := a.findOrPredecessor(sem.Addr)
	if match == nil {
		return nil
	}
	p := match.fifo.RemoveHead()
	if p == nil {
		return nil
	}
	p.Sem = nil
	if match.fifo.Empty() {
		a.dropDescriptor(match, pred)
	}
	return p
}

// OutBlocked removes p from whichever descriptor's FIFO holds it, without
// clearing p.Sem (the caller, e.g. cascade-terminate, is responsible for
// that). Drops the descriptor if its FIFO becomes empty.
func (a *ASL) OutBlocked(p *pcb.PCB) error {
	if p.Sem == nil {
		return errors.New("asl: pcb is not blocked")
	}
	match, pred := a.findOrPredecessor(p.Sem.Addr)
	if match == nil {
		return errors.New("asl: no descriptor for pcb's semaphore")
	}
	if err := match.fifo.RemoveSpecific(p); err != nil {
		return err
	}
	if match.fifo.Empty() {
		a.dropDescriptor(match, pred)
	}
	return nil
}

// HeadBlocked peeks the FIFO head for sem without removing it.
func (a *ASL) HeadBlocked(sem *sema.Sem) *pcb.PCB {
	match, _ := a.findOrPredecessor(sem.Addr)
	if match == nil {
		return nil
	}
	return match.fifo.PeekHead()
}

// Descriptor is a read-only view of one ASL entry, for introspection
// (internal/monitor's asl command).
type Descriptor struct {
	Key     uint32
	Blocked []*pcb.PCB
}

// Snapshot walks the descriptor list between the sentinels and returns a
// copy, without disturbing any FIFO.
func (a *ASL) Snapshot() []Descriptor {
	var out []Descriptor
	for cur := a.head.next; cur != a.tail; cur = cur.next {
		out = append(out, Descriptor{Key: cur.key, Blocked: cur.fifo.Snapshot()})
	}
	return out
}

func (a *ASL) dropDescriptor(d, pred *descriptor) {
	pred.next = d.next
	d.next = nil
	d.inUse = false
	a.free = append(a.free, d)
}
