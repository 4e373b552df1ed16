/*
 * kernelsim - Component G, the support-level syscall dispatcher (SYS9-18).
 *
 * Grounded on emu/cpu_system.go's supervisor-call instruction handler (a
 * single switch over a call number, each case a small self-contained
 * routine that ends by resuming the caller); generalized from S/370's SVC
 * table to spec.md 4.G's ten user-facing syscalls.
 */

package syscall

import (
	"github.com/mipskernel/kernel/bios"
	"github.com/mipskernel/kernel/delay"
	"github.com/mipskernel/kernel/nucleus"
	"github.com/mipskernel/kernel/nucleus/pcb"
	"github.com/mipskernel/kernel/nucleus/sema"
	"github.com/mipskernel/kernel/support/device"
)

// Support syscall numbers, spec.md 6.
const (
	SYS9Terminate      = 9
	SYS10GetTOD        = 10
	SYS11WritePrinter  = 11
	SYS12WriteTerminal = 12
	SYS13ReadTerminal  = 13
	SYS14DiskPut       = 14
	SYS15DiskGet       = 15
	SYS16FlashPut      = 16
	SYS17FlashGet      = 17
	SYS18Delay         = 18
)

// maxLineLength bounds a single write-printer/write-terminal request,
// spec.md 4.G.
const maxLineLength = 128

// Dispatcher services SYS9-18 on behalf of a process whose general
// exception has already been passed up to its support-level handler.
// Every method ends the way the real support dispatcher's LDST would: by
// simply returning, leaving the driver to resume whatever the process
// does next (or, if the call blocked, to call Dispatch next).
type Dispatcher struct {
	Regs    bios.Registers
	Mutexes *device.Mutexes
	// DiskStore and FlashStore resolve a user-named disk/flash number
	// (the syscall's diskNo/flashNo argument) to its backing store; this
	// is a distinct numbering from the pager's per-ASID paging flash
	// (support/pager.Pager.Flash), since a process addresses these
	// devices explicitly rather than implicitly through its own ASID.
	DiskStore  func(diskNo int) *device.BlockStore
	FlashStore func(flashNo int) *device.BlockStore
	ADL        *delay.ADL
	MasterSem  *sema.Sem
}

// deviceIndex maps a user ASID to its printer/terminal device index: ASID
// n owns device n-1 on those per-process lines.
func deviceIndex(asid uint32) int { return int(asid) - 1 }

// Terminate is SYS9: a user-level terminate. sem, if non-nil, is V'd
// first so a dying holder doesn't wedge a shared resource; the
// master-termination semaphore is always V'd so the instantiator's
// termination-counting loop (spec.md 4.J) can tell this process is gone.
func (d *Dispatcher) Terminate(k *nucleus.Kernel, p *pcb.PCB, sem *sema.Sem) error {
	if sem != nil {
		k.SysV(sem)
	}
	k.SysV(d.MasterSem)
	k.SysTerminate(p)
	return k.Dispatch()
}

// GetTOD is SYS10.
func (d *Dispatcher) GetTOD(k *nucleus.Kernel) uint64 {
	return k.Clock.NowMicros()
}

func validLineLength(length int) bool {
	return length >= 0 && length <= maxLineLength
}

// WritePrinter is SYS11: write buf[:length] to the caller's printer, one
// character at a time.
func (d *Dispatcher) WritePrinter(k *nucleus.Kernel, p *pcb.PCB, asid uint32, buf []byte, length int) (int, error) {
	return d.writeLine(k, p, nucleus.LinePrinter, asid, buf, length, false)
}

// WriteTerminal is SYS12: write buf[:length] to the caller's terminal's
// transmit half, one character at a time.
func (d *Dispatcher) WriteTerminal(k *nucleus.Kernel, p *pcb.PCB, asid uint32, buf []byte, length int) (int, error) {
	return d.writeLine(k, p, nucleus.LineTerminal, asid, buf, length, true)
}

func (d *Dispatcher) writeLine(k *nucleus.Kernel, p *pcb.PCB, line int, asid uint32, buf []byte, length int, xmit bool) (int, error) {
	if !validLineLength(length) || length > len(buf) {
		k.SysTerminate(p)
		return 0, k.Dispatch()
	}
	dev := deviceIndex(asid)
	if err := d.Mutexes.Acquire(k, line, dev); err != nil {
		return 0, err
	}
	defer d.Mutexes.Release(k, line, dev)

	for i := 0; i < length; i++ {
		ch := buf[i]
		d.Regs.WriteData0(line, dev, uint32(ch))
		cmd := uint32(device.OpPrintChar)
		if xmit {
			cmd = (uint32(ch) << 8) | device.OpTermXmit
		}
		d.Regs.WriteCommand(line, dev, cmd)

		status := device.CompleteIO(k, line, dev, xmit, func() uint8 { return device.StatusReady })
		if status != device.StatusReady {
			return -int(status), nil
		}
	}
	return length, nil
}

// ReadTerminal is SYS13: read characters from the caller's terminal's
// receive half into buf, stopping at a newline or when buf fills.
func (d *Dispatcher) ReadTerminal(k *nucleus.Kernel, p *pcb.PCB, asid uint32, buf []byte) (int, error) {
	dev := deviceIndex(asid)
	if err := d.Mutexes.Acquire(k, nucleus.LineTerminal, dev); err != nil {
		return 0, err
	}
	defer d.Mutexes.Release(k, nucleus.LineTerminal, dev)

	count := 0
	for count < len(buf) {
		d.Regs.WriteCommand(nucleus.LineTerminal, dev, device.OpTermReceive)

		var received byte
		status := device.CompleteIO(k, nucleus.LineTerminal, dev, false, func() uint8 {
			received = byte(d.Regs.ReadData1(nucleus.LineTerminal, dev) >> 24)
			return device.StatusReady
		})
		if status != device.StatusReady {
			return -int(status), nil
		}

		buf[count] = received
		count++
		if received == '\n' {
			break
		}
	}
	return count, nil
}

// DiskPut is SYS14, DiskGet is SYS15: write or read one sector of the
// caller's disk at the given linear sector number. addr/length describe
// the user buffer the real syscall would copy to/from; since this
// simulation does not model user address space, they are validated for
// the same termination behavior spec.md 4.H calls for, and frame is the
// buffer itself.
func (d *Dispatcher) DiskPut(k *nucleus.Kernel, p *pcb.PCB, addr, length uint32, diskNo int, sector uint32, frame []uint32) (int, error) {
	return d.diskTransfer(k, p, addr, length, diskNo, sector, frame, true)
}

func (d *Dispatcher) DiskGet(k *nucleus.Kernel, p *pcb.PCB, addr, length uint32, diskNo int, sector uint32, frame []uint32) (int, error) {
	return d.diskTransfer(k, p, addr, length, diskNo, sector, frame, false)
}

func (d *Dispatcher) diskTransfer(k *nucleus.Kernel, p *pcb.PCB, addr, length uint32, diskNo int, sector uint32, frame []uint32, write bool) (int, error) {
	if !device.ValidUserRange(addr, length) {
		k.SysTerminate(p)
		return 0, k.Dispatch()
	}
	store := d.DiskStore(diskNo)

	geometry := device.DecodeGeometry(d.Regs.ReadData1(nucleus.LineDisk, diskNo))
	cyl, head, sec, ok := device.DecodeCHS(geometry, sector)
	if !ok {
		k.SysTerminate(p)
		return 0, k.Dispatch()
	}

	return device.TransferDisk(k, d.Regs, store, d.Mutexes, diskNo, cyl, head, sec, sector, frame, write), nil
}

// FlashPut is SYS16, FlashGet is SYS17: write or read one block of the
// caller's flash device.
func (d *Dispatcher) FlashPut(k *nucleus.Kernel, p *pcb.PCB, addr, length uint32, flashNo int, block uint32, frame []uint32) (int, error) {
	return d.flashTransfer(k, p, addr, length, flashNo, block, frame, true)
}

func (d *Dispatcher) FlashGet(k *nucleus.Kernel, p *pcb.PCB, addr, length uint32, flashNo int, block uint32, frame []uint32) (int, error) {
	return d.flashTransfer(k, p, addr, length, flashNo, block, frame, false)
}

func (d *Dispatcher) flashTransfer(k *nucleus.Kernel, p *pcb.PCB, addr, length uint32, flashNo int, block uint32, frame []uint32, write bool) (int, error) {
	if !device.ValidUserRange(addr, length) || !device.ValidFlashBlock(block) {
		k.SysTerminate(p)
		return 0, k.Dispatch()
	}
	store := d.FlashStore(flashNo)
	return device.TransferFlash(k, d.Regs, store, d.Mutexes, flashNo, block, frame, write), nil
}

// Delay is SYS18.
func (d *Dispatcher) Delay(k *nucleus.Kernel, p *pcb.PCB, secs int32, now uint64) error {
	return d.ADL.Request(k, p, secs, now)
}
