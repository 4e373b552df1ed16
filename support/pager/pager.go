/*
 * kernelsim - Component F, the TLB exception handler and swap pool
 * coordination.
 *
 * Grounded on emu/cpu.go's storage-protection/translation exception path
 * (a miss suspends the running instruction, consults a table, and either
 * resumes or traps); generalized to a software-managed TLB with a
 * flash-backed swap pool. Mutex/TLB/PTE blocking points are implemented
 * as ordinary synchronous calls into the nucleus's SYS3/SYS4, the same
 * direct-invocation style nucleus syscalls already use: this simulation
 * never actually interleaves two fault handlers (only one process's
 * kernel-mode routine is ever in flight, per spec.md 5's single-threaded
 * model), so the swap-pool mutex in practice is always uncontended: it is
 * still implemented faithfully so the accounting is correct if a future
 * harness does interleave calls.
 */

package pager

import (
	"fmt"

	"github.com/mipskernel/kernel/bios"
	"github.com/mipskernel/kernel/nucleus"
	"github.com/mipskernel/kernel/nucleus/cpustate"
	"github.com/mipskernel/kernel/nucleus/pcb"
	"github.com/mipskernel/kernel/nucleus/supportstruct"
	"github.com/mipskernel/kernel/support/device"
	"github.com/mipskernel/kernel/support/swappool"
)

// Pager coordinates TLB exceptions against the shared swap pool.
type Pager struct {
	Pool    *swappool.Table
	TLB     bios.TLB
	Regs    bios.Registers
	Mutexes *device.Mutexes
	// Flash resolves an ASID to its backing flash store and flash-line
	// device index (ASID n's flash is device n-1; ASID 0 is the kernel
	// and never faults).
	Flash func(asid uint32) (*device.BlockStore, int)
}

// New builds a Pager.
func New(pool *swappool.Table, tlb bios.TLB, regs bios.Registers, mutexes *device.Mutexes, flash func(asid uint32) (*device.BlockStore, int)) *Pager {
	return &Pager{Pool: pool, TLB: tlb, Regs: regs, Mutexes: mutexes, Flash: flash}
}

func entryHIFor(asid, vpn uint32) uint32 {
	return (vpn << 12) | (asid & 0xfff)
}

// HandleTLBFault services a TLB-Invalid exception for p (spec.md 4.F).
// TLB-Modification is a program trap and kills the offender outright.
func (pg *Pager) HandleTLBFault(k *nucleus.Kernel, p *pcb.PCB) error {
	code := cpustate.ExcCode(p.State.Cause)
	if code == cpustate.ExcTLBMod {
		k.SysTerminate(p)
		return k.Dispatch()
	}
	if code != cpustate.ExcTLBInvLoad && code != cpustate.ExcTLBInvStore {
		return fmt.Errorf("pager: exception code %d is not a TLB-Invalid fault", code)
	}

	sup := p.Support
	if sup == nil {
		k.SysTerminate(p)
		return k.Dispatch()
	}

	if err := k.SysP(pg.Pool.Mutex); err != nil {
		return err
	}

	vpn := cpustate.EntryHIVPN(p.State.EntryHI) % supportstruct.PageCount
	frameIdx := pg.Pool.NextVictim()
	entry := &pg.Pool.Entries[frameIdx]
	frame := pg.Pool.Frames[frameIdx]

	if entry.ASID != swappool.FreeASID {
		k.Bios.DisableInterrupts()
		entry.PTE.Valid = false
		oldKey := entryHIFor(entry.ASID, entry.PTE.VPN)
		if idx, ok := pg.TLB.Probe(oldKey); ok {
			pg.TLB.Write(idx, bios.TLBEntry{EntryHI: oldKey, Valid: false})
		}
		k.Bios.EnableInterrupts()

		store, dev := pg.Flash(entry.ASID)
		status := device.TransferFlash(k, pg.Regs, store, pg.Mutexes, dev, entry.PTE.VPN, frame, true)
		if status < 0 {
			k.SysV(pg.Pool.Mutex)
			if entry.Owner != nil {
				k.SysTerminate(entry.Owner)
			}
			return k.Dispatch()
		}
	}

	store, dev := pg.Flash(sup.ASID)
	status := device.TransferFlash(k, pg.Regs, store, pg.Mutexes, dev, vpn, frame, false)
	if status < 0 {
		k.SysV(pg.Pool.Mutex)
		k.SysTerminate(p)
		return k.Dispatch()
	}

	entry.ASID = sup.ASID
	entry.VPN = vpn
	entry.PTE = &sup.PageTable[vpn]
	entry.Owner = p

	k.Bios.DisableInterrupts()
	sup.PageTable[vpn].Frame = uint32(frameIdx)
	sup.PageTable[vpn].Valid = true
	sup.PageTable[vpn].Dirty = true
	newKey := entryHIFor(sup.ASID, vpn)
	if idx, ok := pg.TLB.Probe(newKey); ok {
		pg.TLB.Write(idx, bios.TLBEntry{EntryHI: newKey, Frame: uint32(frameIdx), Valid: true, Dirty: true})
	}
	k.Bios.EnableInterrupts()

	k.SysV(pg.Pool.Mutex)
	return nil
}

// HandleRefill services a TLB-Refill exception: the requested entry-key
// has no cached translation at all. Runs with no syscalls and no locks,
// exactly as spec.md 4.F requires.
func (pg *Pager) HandleRefill(p *pcb.PCB) {
	sup := p.Support
	if sup == nil {
		return
	}
	vpn := cpustate.EntryHIVPN(p.State.EntryHI) % supportstruct.PageCount
	pte := sup.PageTable[vpn]
	pg.TLB.WriteRandom(bios.TLBEntry{
		EntryHI: entryHIFor(sup.ASID, vpn),
		Frame:   pte.Frame,
		Valid:   pte.Valid,
		Dirty:   pte.Dirty,
		Global:  pte.Global,
	})
}
