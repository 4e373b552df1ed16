/*
 * kernelsim - nucleus: Component E, the exception router and the eight
 * nucleus syscalls (SYS1-8).
 *
 * Grounded on emu/cpu.go's opcode dispatch switch (one exception code in,
 * one handler out), generalized from the S/370 instruction set to
 * spec.md 4.E's syscall table. Register r2 (v0) carries the syscall
 * number by MIPS convention; arguments and results that would travel
 * through r4-r7 (a0-a3) are instead passed as typed Go parameters, since
 * this repository does not simulate user address space reads (spec.md 1,
 * Non-goals: no MIPS instruction execution).
 */

package nucleus

import (
	"github.com/mipskernel/kernel/nucleus/cpustate"
	"github.com/mipskernel/kernel/nucleus/pcb"
	"github.com/mipskernel/kernel/nucleus/sema"
	"github.com/mipskernel/kernel/nucleus/supportstruct"
)

// Nucleus syscall numbers, conventionally carried in register v0.
const (
	SYS1Create         = 1
	SYS2Terminate      = 2
	SYS3P              = 3
	SYS4V              = 4
	SYS5WaitForIO      = 5
	SYS6GetCPUTime     = 6
	SYS7WaitForClock   = 7
	SYS8GetSupportData = 8
)

// HandleException routes a trap by its exception code. The syscall code
// returns nil without further action, since SYS1-8 are invoked directly as
// the Sys* methods below; every other code - TLB faults, program traps,
// device interrupts outside the nucleus's own handling - is passed up to
// the current process's support-level handler, or kills the process if it
// has none.
func (k *Kernel) HandleException() error {
	code := cpustate.ExcCode(k.Current.State.Cause)
	if code == cpustate.ExcSyscall {
		return nil // syscalls are invoked directly as Sys* methods below
	}
	return k.PassUpOrDie(code)
}

// PassUpOrDie implements spec.md 4.E's pass-up-or-die rule: a process
// with a Support structure has the trap redirected via the pre-built
// NewContext to its registered pager (TLB exception codes) or
// general-exception handler (every other code); a process without one is
// terminated outright.
func (k *Kernel) PassUpOrDie(code uint16) error {
	p := k.Current
	if p.Support == nil {
		k.SysTerminate(p)
		return k.Dispatch()
	}

	slot := supportstruct.ExcGeneral
	if code == cpustate.ExcTLBMod || code == cpustate.ExcTLBInvLoad || code == cpustate.ExcTLBInvStore {
		slot = supportstruct.ExcPager
	}
	sup := p.Support
	cpustate.Move(&sup.OldState[slot], &p.State)
	ctx := sup.NewContext[slot]
	p.State.PC = ctx.PC
	p.State.Status = ctx.Status
	p.State.Regs[29] = ctx.SP // sp
	return nil
}

// SysCreate is SYS1: allocate a child PCB, seed its initial state and
// support structure, link it under the calling process, and make it
// ready. Returns ErrExhausted if the PCB pool is full.
func (k *Kernel) SysCreate(initState *cpustate.CPUState, sup *supportstruct.Support) (*pcb.PCB, error) {
	child, err := k.Pool.Alloc()
	if err != nil {
		return nil, err
	}
	child.State = *initState
	child.Support = sup
	pcb.InsertChildHead(k.Current, child)
	k.Ready.InsertTail(child)
	k.ProcessCount++
	return child, nil
}

// SysTerminate is SYS2: recursively terminate p and every descendant
// (cascade terminate, spec.md 4.A/4.E/8), detaching each from whatever
// queue or ASL FIFO holds it before returning it to the pool. A victim
// blocked on an ordinary semaphore has that semaphore V'd so the
// accounting (and any other waiter behind it) stays consistent; a victim
// blocked on a device or pseudo-clock semaphore is only unblocked and has
// SoftBlockCount decremented, since the semaphore itself belongs to the
// device or clock and will be driven by its own interrupt.
func (k *Kernel) SysTerminate(p *pcb.PCB) {
	for p.Child != nil {
		k.SysTerminate(p.Child)
	}
	pcb.RemoveChild(p)

	switch {
	case p == k.Current:
		k.Current = nil
	case p.Sem != nil:
		sem := p.Sem
		_ = k.ASL.OutBlocked(p)
		p.Sem = nil
		if k.isSoftBlockSem(sem) {
			k.SoftBlockCount--
		} else {
			k.SysV(sem)
		}
	default:
		_ = k.Ready.RemoveSpecific(p)
	}

	k.Pool.Free(p)
	k.ProcessCount--
}

// isSoftBlockSem reports whether sem is one of the device completion
// semaphores or the pseudo-clock semaphore, as opposed to an ordinary
// counting semaphore a process P'd directly.
func (k *Kernel) isSoftBlockSem(sem *sema.Sem) bool {
	if sem == k.PseudoClock {
		return true
	}
	for _, d := range k.DeviceSems {
		if sem == d {
			return true
		}
	}
	return false
}

// SysP is SYS3: the P (wait) semaphore primitive. Blocks the caller if
// the decremented value goes negative.
func (k *Kernel) SysP(sem *sema.Sem) error {
	sem.Value--
	if sem.Value < 0 {
		return k.BlockCurrent(sem)
	}
	return nil
}

// SysV is SYS4: the V (signal) semaphore primitive. Wakes the FIFO head
// blocked on sem, if the incremented value indicates one is waiting.
func (k *Kernel) SysV(sem *sema.Sem) {
	sem.Value++
	if sem.Value <= 0 {
		if p := k.ASL.RemoveBlocked(sem); p != nil {
			k.Ready.InsertTail(p)
		}
	}
}

// SysWaitForIO is SYS5: P the sub-device semaphore selected by line, dev
// and xmit, counting the block against SoftBlockCount so the scheduler's
// empty-ready-queue policy can distinguish "waiting on I/O" from
// deadlock.
func (k *Kernel) SysWaitForIO(line, dev int, xmit bool) error {
	idx := RecvSemIndex(line, dev)
	if xmit {
		idx = XmitSemIndex(line, dev)
	}
	sem := k.DeviceSems[idx]
	sem.Value--
	if sem.Value < 0 {
		k.SoftBlockCount++
		return k.BlockCurrent(sem)
	}
	return nil
}

// SysGetCPUTime is SYS6: return p's accumulated CPU time in microseconds,
// including the elapsed slice of the quantum currently in progress if p
// is Current (spec.md 4.E: accumulated + (now - quantum-start); p.CPUTime
// alone is only current as of its last block/requeue via chargeCPUTime).
func (k *Kernel) SysGetCPUTime(p *pcb.PCB) uint64 {
	if p == k.Current {
		return p.CPUTime + (k.Clock.NowMicros() - k.QuantumStart)
	}
	return p.CPUTime
}

// SysWaitForClock is SYS7: block the caller on the pseudo-clock
// semaphore until the next 100ms interval fires.
func (k *Kernel) SysWaitForClock() error {
	k.PseudoClock.Value--
	k.SoftBlockCount++
	return k.BlockCurrent(k.PseudoClock)
}

// SysGetSupportData is SYS8: return p's support structure pointer, or
// nil if it was created without one.
func (k *Kernel) SysGetSupportData(p *pcb.PCB) *supportstruct.Support {
	return p.Support
}
