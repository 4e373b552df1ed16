/*
 * kernelsim - Component J, the instantiator.
 *
 * Grounded on the teacher's root main.go boot sequence (load config,
 * build every configured unit, hand off to the core loop) and on
 * emu/sys_channel's habit of a fixed-shape initialization routine run
 * exactly once; generalized to spec.md 4.J's process-tree construction.
 */

package boot

import (
	"fmt"
	"strconv"

	"github.com/mipskernel/kernel/bios"
	"github.com/mipskernel/kernel/config/kconf"
	"github.com/mipskernel/kernel/delay"
	"github.com/mipskernel/kernel/nucleus"
	"github.com/mipskernel/kernel/nucleus/cpustate"
	"github.com/mipskernel/kernel/nucleus/pcb"
	"github.com/mipskernel/kernel/nucleus/sema"
	"github.com/mipskernel/kernel/nucleus/supportstruct"
	"github.com/mipskernel/kernel/support/device"
	"github.com/mipskernel/kernel/support/pager"
	"github.com/mipskernel/kernel/support/swappool"
	"github.com/mipskernel/kernel/support/syscall"
)

// MaxUsers is the largest NUSERS the boot configuration may request.
const MaxUsers = 8

var bootConfig struct {
	numUsers int
}

func init() {
	kconf.RegisterOption("NUSERS", func(_ uint16, value string, _ []kconf.Option) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("NUSERS: %w", err)
		}
		bootConfig.numUsers = n
		return nil
	})
}

// NumUsers returns the NUSERS directive's value, as last parsed by
// kconf.LoadFile, or 0 if the directive was never seen.
func NumUsers() int { return bootConfig.numUsers }

// Config is everything spec.md 4.J's instantiator needs to build the
// initial process tree: one entry per knob the boot configuration file
// fills in, plus the backing-store lookups the pager and the
// support-syscall dispatcher share.
type Config struct {
	NumUsers int // 1..MaxUsers

	TextStart uint32 // initial user PC
	StackTop  uint32 // initial user SP, the last virtual page

	SwapPoolFrames int
	ADLCapacity    int
	StackWords     int // size of each reserved pager/support stack

	PagerPC, PagerSP     uint32
	SupportPC, SupportSP uint32

	// DiskStore/FlashStore resolve a user-named disk/flash number to its
	// backing store, shared between the pager's implicit per-ASID flash
	// lookup and the support-syscall dispatcher's explicitly numbered
	// SYS14-17 paths (support/syscall.Dispatcher doc comment).
	DiskStore  func(diskNo int) *device.BlockStore
	FlashStore func(flashNo int) *device.BlockStore
}

// Instantiator holds the kernel-wide structures Boot builds exactly
// once, plus the instantiator's own post-launch continuation state. Like
// the delay daemon, the instantiator's PCB has no user instruction
// stream to resume from after a blocking SYS3: the driver recognizes its
// PCB and calls Step every time it becomes Current again, instead of
// "executing" whatever comes after the P in a real instruction stream.
type Instantiator struct {
	Pool       *swappool.Table
	ADL        *delay.ADL
	Mutexes    *device.Mutexes
	Pager      *pager.Pager
	Dispatcher *syscall.Dispatcher
	TermSem    *sema.Sem

	remaining int
}

// Boot runs spec.md 4.J: build the swap pool, the ADL, the per-device
// mutexes and the pager/dispatcher that share them; then, as the calling
// PCB self (conventionally ASID 0, already k.Current), launch cfg.NumUsers
// user processes at ASIDs 1..NumUsers, each with an all-invalid page
// table, both support contexts primed to enter kernel mode with
// interrupts and the PLT enabled, and a private delay semaphore starting
// at 0 (supportstruct.New already provides the page table and the
// semaphore; Boot primes the contexts itself).
func Boot(k *nucleus.Kernel, regs bios.Registers, tlb bios.TLB, cfg Config) (*Instantiator, error) {
	if cfg.NumUsers < 1 || cfg.NumUsers > MaxUsers {
		return nil, fmt.Errorf("boot: NumUsers = %d, want 1..%d", cfg.NumUsers, MaxUsers)
	}
	if cfg.SwapPoolFrames < 1 {
		return nil, fmt.Errorf("boot: SwapPoolFrames must be positive")
	}
	if k.Current == nil {
		return nil, fmt.Errorf("boot: Boot must run as the current process (ASID 0)")
	}

	pool := swappool.New(cfg.SwapPoolFrames)
	adl := delay.New(cfg.ADLCapacity)
	mutexes := device.NewMutexes()
	termSem := sema.New(0)

	pg := pager.New(pool, tlb, regs, mutexes, func(asid uint32) (*device.BlockStore, int) {
		dev := int(asid) - 1
		return cfg.FlashStore(dev), dev
	})

	disp := &syscall.Dispatcher{
		Regs:       regs,
		Mutexes:    mutexes,
		DiskStore:  cfg.DiskStore,
		FlashStore: cfg.FlashStore,
		ADL:        adl,
		MasterSem:  termSem,
	}

	inst := &Instantiator{
		Pool:       pool,
		ADL:        adl,
		Mutexes:    mutexes,
		Pager:      pg,
		Dispatcher: disp,
		TermSem:    termSem,
		remaining:  cfg.NumUsers,
	}

	userStatus := cpustate.StatusIntEnable | cpustate.StatusUserMode | cpustate.StatusPLT
	kernelStatus := cpustate.StatusIntEnable | cpustate.StatusPLT

	for asid := uint32(1); asid <= uint32(cfg.NumUsers); asid++ {
		sup := supportstruct.New(asid, cfg.StackWords)
		sup.NewContext[supportstruct.ExcPager] = cpustate.Context{
			SP: cfg.PagerSP, PC: cfg.PagerPC, Status: kernelStatus,
		}
		sup.NewContext[supportstruct.ExcGeneral] = cpustate.Context{
			SP: cfg.SupportSP, PC: cfg.SupportPC, Status: kernelStatus,
		}

		initState := &cpustate.CPUState{PC: cfg.TextStart, Status: userStatus}
		initState.Regs[29] = cfg.StackTop // sp

		if _, err := k.SysCreate(initState, sup); err != nil {
			return nil, fmt.Errorf("boot: SysCreate asid %d: %w", asid, err)
		}
	}

	return inst, nil
}

// Step runs one unit of the instantiator's post-launch loop: P the
// termination semaphore once if a user process is still outstanding
// (genuinely blocking self until the next SYS9 arrives), or - once every
// user has terminated - SYS2 itself, driving the process count to zero
// so the nucleus halts. The driver calls Step every time self is
// Current, exactly the continuation strategy delay.ADL.Run uses.
func (inst *Instantiator) Step(k *nucleus.Kernel, self *pcb.PCB) error {
	k.Current = self
	if inst.remaining > 0 {
		inst.remaining--
		return k.SysP(inst.TermSem)
	}
	k.SysTerminate(self)
	return k.Dispatch()
}
