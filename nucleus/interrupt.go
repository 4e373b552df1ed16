/*
 * kernelsim - nucleus: Component D, the interrupt handler.
 *
 * Grounded on emu/timer.go's ticker-driven Start/Stop pair (the PLT and
 * pseudo-clock here are the same two-ticker shape) and emu/sys_channel's
 * per-device completion signaling (device lines here play the same role
 * sys_channel's subchannels do, generalized from byte-count DMA status to
 * a plain completion semaphore per sub-device).
 */

package nucleus

// HandlePLTInterrupt services line 1 (quantum expiry): requeue Current
// and dispatch the next ready process. spec.md 4.D: a PLT tick with no
// current process is an impossible state and returns a PANIC, not a no-op.
func (k *Kernel) HandlePLTInterrupt() error {
	if k.Current == nil {
		return panicErr("PLT interrupt with no current process")
	}
	k.RequeueCurrent()
	return k.Dispatch()
}

// HandleClockInterrupt services line 2 (the pseudo-clock): reload the
// interval timer and wake every process waiting on the pseudo-clock
// semaphore, exactly the "unblock everyone every 100ms" fan-out spec.md
// 4.D calls for (unlike a device semaphore, a single interrupt here
// satisfies every waiter, not just the FIFO head).
func (k *Kernel) HandleClockInterrupt() {
	k.Bios.SetIntervalTimer(PseudoClockInterval)
	for {
		p := k.ASL.RemoveBlocked(k.PseudoClock)
		if p == nil {
			break
		}
		k.SoftBlockCount--
		k.Ready.InsertTail(p)
	}
	k.PseudoClock.Value = 0
}

// HandleDeviceInterrupt services one completion on lines 3-7. xmit
// selects the transmit semaphore bank (XmitSemIndex) instead of the
// receive bank (RecvSemIndex), the same selection SysWaitForIO makes; line
// is not checked, and only LineTerminal has a transmit bank. status is the
// device status word the waiting process expects back from its
// WaitForIO call. entry is the timestamp (in NowMicros units) at which
// this interrupt was raised; the woken PCB is charged for the time
// between entry and now, spec.md 4.D's "charge the unblocked PCB for
// time between exception entry and now".
//
// Scanning priority across pending lines and, within LineTerminal,
// preferring a pending transmit completion over a pending receive
// completion (spec.md 9) is the caller's responsibility: this method
// only services the one completion it is told about.
func (k *Kernel) HandleDeviceInterrupt(line, dev int, xmit bool, status uint8, entry uint64) error {
	idx := RecvSemIndex(line, dev)
	if xmit {
		idx = XmitSemIndex(line, dev)
	}
	sem := k.DeviceSems[idx]
	sem.Value++

	p := k.ASL.RemoveBlocked(sem)
	if p == nil {
		k.SpuriousCount++
		return ErrSpurious
	}
	k.SoftBlockCount--
	p.CPUTime += k.Clock.NowMicros() - entry
	p.State.Regs[2] = uint32(status) // v0: syscall/device result register
	k.Ready.InsertTail(p)
	return nil
}
