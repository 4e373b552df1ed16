/*
 * kernelsim - Component H, the flash and disk DMA paths.
 *
 * Grounded on emu/sys_channel.go's command-word dispatch (a single
 * register write selects operation and byte count, then the caller waits
 * for the channel to signal completion); generalized here to the flash
 * one-phase and disk two-phase command sequences spec.md 4.H and 6 define.
 *
 * This simulation resolves a device transfer within the same call that
 * issues it: CompleteIO blocks the caller on SYS5 exactly as the real
 * nucleus syscall does (so soft-block accounting and the ASL are
 * exercised faithfully), then immediately performs the transfer and
 * delivers the completion interrupt itself, since there is no separate
 * asynchronous hardware goroutine driving real wall-clock timing in this
 * repository (spec.md 1, Non-goals: no MIPS instruction execution, which
 * is what real device timing would interleave against).
 */

package device

import (
	"github.com/mipskernel/kernel/bios"
	"github.com/mipskernel/kernel/nucleus"
	"github.com/mipskernel/kernel/nucleus/sema"
)

// Command words, spec.md 6.
const (
	CmdReset = 0
	CmdAck   = 1

	OpFlashRead  = 2
	OpFlashWrite = 3

	OpDiskSeek  = 2
	OpDiskRead  = 3
	OpDiskWrite = 4

	OpPrintChar   = 2 // printer: byte in data0
	OpTermReceive = 2 // terminal receive half
	OpTermXmit    = 2 // terminal transmit half, OR'd with (char << 8)
)

// Status codes, spec.md 6.
const (
	StatusUninstalled = 0
	StatusReady       = 1
	StatusBusy        = 3
)

// Mutexes holds one mutual-exclusion semaphore per (line, device) pair,
// separate from the nucleus's per-sub-device completion semaphores: the
// same indexing formula applies, but this array protects the device's DMA
// buffer and registers from concurrent use by two different processes
// (spec.md 5, lock-ordering rule (a): "device mutex may be acquired only
// while holding no other lock").
type Mutexes struct {
	sems [40]*sema.Sem
}

// NewMutexes builds the per-device mutex array, all initialized to 1.
func NewMutexes() *Mutexes {
	m := &Mutexes{}
	for i := range m.sems {
		m.sems[i] = sema.New(1)
	}
	return m
}

func mutexIndex(line, dev int) int {
	return (line-nucleus.LineDisk)*8 + dev
}

// Acquire/Release wrap SYS3/SYS4 on the device's mutex.
func (m *Mutexes) Acquire(k *nucleus.Kernel, line, dev int) error {
	return k.SysP(m.sems[mutexIndex(line, dev)])
}

func (m *Mutexes) Release(k *nucleus.Kernel, line, dev int) {
	k.SysV(m.sems[mutexIndex(line, dev)])
}

// CompleteIO issues a SYS5 wait-for-io for the calling process, then
// immediately runs perform (the actual register/backing-store work) and
// delivers the resulting status via the nucleus's own interrupt path, so
// the process is handed straight back the CPU instead of waiting for a
// real asynchronous tick. Shared by every device path in this package,
// and by the support-syscall dispatcher's character-at-a-time printer,
// terminal-write and terminal-read loops, so all device I/O in this
// simulation resolves through the same single helper.
func CompleteIO(k *nucleus.Kernel, line, dev int, xmit bool, perform func() uint8) uint8 {
	p := k.Current
	if p == nil {
		return StatusUninstalled
	}
	if err := k.SysWaitForIO(line, dev, xmit); err != nil {
		return StatusUninstalled
	}

	entry := k.Clock.NowMicros()
	status := perform()
	_ = k.HandleDeviceInterrupt(line, dev, xmit, status, entry)

	// p regains the CPU immediately rather than waiting its turn behind
	// any other ready process; the fairness cost of this is in trade for
	// not simulating real device latency at all (the transfer already
	// happened, above, by the time the quantum would otherwise expire).
	if k.Ready.RemoveSpecific(p) == nil {
		k.Current = p
	}
	return status
}

// TransferFlash implements the one-phase flash path: acquire the device
// mutex, issue the block/op command, wait for completion, release the
// mutex, translate status.
func TransferFlash(k *nucleus.Kernel, regs bios.Registers, store *BlockStore, mutexes *Mutexes, dev int, block uint32, frame []uint32, write bool) int {
	if err := mutexes.Acquire(k, nucleus.LineFlash, dev); err != nil {
		return -1
	}
	defer mutexes.Release(k, nucleus.LineFlash, dev)

	op := uint32(OpFlashRead)
	if write {
		op = OpFlashWrite
	}
	regs.SetDMABuffer(nucleus.LineFlash, dev, frame)
	regs.WriteCommand(nucleus.LineFlash, dev, (block<<8)|op)

	status := CompleteIO(k, nucleus.LineFlash, dev, false, func() uint8 {
		var err error
		if write {
			err = store.WriteBlock(int64(block), frame)
		} else {
			err = store.ReadBlock(int64(block), frame)
		}
		if err != nil {
			return StatusBusy
		}
		return StatusReady
	})

	if status != StatusReady {
		return -int(status)
	}
	return 1
}

// Geometry is a disk's decoded (maxCyl, maxHead, maxSect) word, spec.md 6.
type Geometry struct {
	MaxCyl  uint32
	MaxHead uint32
	MaxSect uint32
}

// DecodeGeometry splits the packed geometry word read from a disk's
// data1 register.
func DecodeGeometry(word uint32) Geometry {
	return Geometry{
		MaxCyl:  word >> 16,
		MaxHead: (word >> 8) & 0xff,
		MaxSect: word & 0xff,
	}
}

// DecodeCHS splits a linear sector number into (cyl, head, sec) given the
// disk's geometry, or reports the sector is out of range.
func DecodeCHS(g Geometry, linear uint32) (cyl, head, sec uint32, ok bool) {
	perCyl := g.MaxHead * g.MaxSect
	if perCyl == 0 || linear >= g.MaxCyl*perCyl {
		return 0, 0, 0, false
	}
	cyl = linear / perCyl
	rem := linear % perCyl
	head = rem / g.MaxSect
	sec = rem % g.MaxSect
	return cyl, head, sec, true
}

// TransferDisk implements the two-phase disk path: seek, then
// read/write, each issued with its own SYS5 wait, under the device's
// mutex. linear is the absolute block number the seek+read/write pair
// resolves to, used to address store.
func TransferDisk(k *nucleus.Kernel, regs bios.Registers, store *BlockStore, mutexes *Mutexes, dev int, cyl, head, sec uint32, linear uint32, frame []uint32, write bool) int {
	if err := mutexes.Acquire(k, nucleus.LineDisk, dev); err != nil {
		return -1
	}
	defer mutexes.Release(k, nucleus.LineDisk, dev)

	regs.WriteCommand(nucleus.LineDisk, dev, (cyl<<8)|OpDiskSeek)
	seekStatus := CompleteIO(k, nucleus.LineDisk, dev, false, func() uint8 { return StatusReady })
	if seekStatus != StatusReady {
		return -int(seekStatus)
	}

	op := uint32(OpDiskRead)
	if write {
		op = OpDiskWrite
	}
	regs.SetDMABuffer(nucleus.LineDisk, dev, frame)
	regs.WriteCommand(nucleus.LineDisk, dev, (head<<16)|(sec<<8)|op)

	status := CompleteIO(k, nucleus.LineDisk, dev, false, func() uint8 {
		var err error
		if write {
			err = store.WriteBlock(int64(linear), frame)
		} else {
			err = store.ReadBlock(int64(linear), frame)
		}
		if err != nil {
			return StatusBusy
		}
		return StatusReady
	})
	if status != StatusReady {
		return -int(status)
	}
	return 1
}
