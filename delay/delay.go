/*
 * kernelsim - Component I, the delay facility: the ADL and the kernel-ASID
 * daemon that drains it.
 *
 * Grounded on emu/event.go's sorted, fixed-capacity descriptor list (a
 * cycle-count keyed linked list with an explicit free pool); the ADL
 * applies the same shape keyed by wake time in microseconds instead of
 * relative cycles.
 */

package delay

import (
	"errors"

	"github.com/mipskernel/kernel/nucleus"
	"github.com/mipskernel/kernel/nucleus/pcb"
	"github.com/mipskernel/kernel/nucleus/sema"
)

// ErrExhausted is returned when the descriptor pool has no free entries.
var ErrExhausted = errors.New("delay: descriptor pool exhausted")

type descriptor struct {
	wake uint64
	sem  *sema.Sem
	next *descriptor
}

// ADL is the Active Delay List: a sorted-ascending-by-wake-time linked
// list built from a fixed descriptor pool, guarded by a single mutex
// shared by every delaying process and the daemon.
type ADL struct {
	pool  []descriptor
	free  []*descriptor
	head  *descriptor
	Mutex *sema.Sem
}

// New builds an ADL with room for capacity outstanding delays.
func New(capacity int) *ADL {
	a := &ADL{pool: make([]descriptor, capacity), Mutex: sema.New(1)}
	for i := range a.pool {
		a.free = append(a.free, &a.pool[i])
	}
	return a
}

func (a *ADL) alloc() (*descriptor, error) {
	if len(a.free) == 0 {
		return nil, ErrExhausted
	}
	n := len(a.free) - 1
	d := a.free[n]
	a.free = a.free[:n]
	*d = descriptor{}
	return d, nil
}

func (a *ADL) insertSorted(d *descriptor) {
	if a.head == nil || d.wake < a.head.wake {
		d.next = a.head
		a.head = d
		return
	}
	cur := a.head
	for cur.next != nil && cur.next.wake <= d.wake {
		cur = cur.next
	}
	d.next = cur.next
	cur.next = d
}

// Request implements SYS18(secs) for the calling process p: a negative
// secs terminates the caller outright. Acquiring the mutex and allocating
// a descriptor are both treated as uncontended, per the same
// single-kernel-routine-in-flight reasoning the swap-pool mutex relies on
// (see DESIGN.md); the P on the caller's own private semaphore genuinely
// blocks every time, since nothing has V'd it yet.
func (a *ADL) Request(k *nucleus.Kernel, p *pcb.PCB, secs int32, now uint64) error {
	if secs < 0 {
		k.SysTerminate(p)
		return k.Dispatch()
	}

	if err := k.SysP(a.Mutex); err != nil {
		return err
	}

	d, err := a.alloc()
	if err != nil {
		k.SysV(a.Mutex)
		k.SysTerminate(p)
		return k.Dispatch()
	}
	d.wake = now + uint64(secs)*1_000_000
	d.sem = p.Support.PrivateSem
	a.insertSorted(d)

	k.Bios.DisableInterrupts()
	k.SysV(a.Mutex)
	err = k.SysP(d.sem)
	k.Bios.EnableInterrupts()
	return err
}

// Run executes one iteration of the daemon's loop body for its PCB p:
// drain every descriptor whose wake time has arrived, V-ing each one's
// private semaphore, then re-arm the next pseudo-clock wait. The driver
// calls Run whenever p becomes Current, both at daemon startup and after
// every pseudo-clock wakeup.
func (a *ADL) Run(k *nucleus.Kernel, p *pcb.PCB, now uint64) error {
	k.Current = p

	if err := k.SysP(a.Mutex); err != nil {
		return err
	}
	for a.head != nil && a.head.wake <= now {
		d := a.head
		a.head = d.next
		k.SysV(d.sem)
		a.free = append(a.free, d)
	}
	k.SysV(a.Mutex)

	return k.SysWaitForClock()
}
