/*
 * kernelsim - nucleus: Component C, the round-robin scheduler.
 *
 * Grounded on emu/core.go's single select loop driving one CPU at a time;
 * generalized from "the next channel event" to "the next ready PCB".
 */

package nucleus

import "github.com/mipskernel/kernel/nucleus/sema"

// Dispatch loads the head of the ready queue as Current and arms the PLT
// for one quantum. If the ready queue is empty it applies spec.md 4.C's
// policy: wait for an outstanding I/O or clock wakeup, or halt if no
// process remains, or panic if neither holds (deadlock).
func (k *Kernel) Dispatch() error {
	if k.Ready.Empty() {
		if k.ProcessCount == 0 {
			return halt("process count reached zero")
		}
		if k.SoftBlockCount > 0 {
			k.Current = nil
			k.Bios.SetPLT(0)
			k.Bios.EnableInterrupts()
			k.Bios.Wait()
			return nil
		}
		return panicErr("ready queue empty, process count %d, soft-block count 0", k.ProcessCount)
	}

	k.Current = k.Ready.RemoveHead()
	k.QuantumStart = k.Clock.NowMicros()
	k.Bios.SetPLT(Quantum)
	k.Bios.EnableInterrupts()
	return nil
}

// chargeCPUTime adds the elapsed time since QuantumStart to Current's
// accumulated CPU time. Called whenever Current stops running, whether
// because its quantum expired or it blocked voluntarily.
func (k *Kernel) chargeCPUTime() {
	if k.Current == nil {
		return
	}
	k.Current.CPUTime += k.Clock.NowMicros() - k.QuantumStart
}

// RequeueCurrent charges Current for its quantum and moves it to the
// ready queue's tail. Used on PLT expiry.
func (k *Kernel) RequeueCurrent() {
	k.chargeCPUTime()
	p := k.Current
	k.Current = nil
	k.Ready.InsertTail(p)
}

// BlockCurrent charges Current for the CPU time it used and parks it on
// sem's ASL FIFO. Used by every syscall that can block.
func (k *Kernel) BlockCurrent(sem *sema.Sem) error {
	k.chargeCPUTime()
	p := k.Current
	k.Current = nil
	return k.ASL.InsertBlocked(sem, p)
}
