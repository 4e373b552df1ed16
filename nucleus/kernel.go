/*
 * kernelsim - nucleus: the statically initialized kernel context threaded
 * explicitly into every handler, and the fatal outcomes (HALT, PANIC) the
 * spec reserves for the system as a whole.
 *
 * Grounded on the teacher's single package-level sysCPU var (emu/cpu.go)
 * holding all mutable processor state, generalized into an explicit
 * struct per spec.md's design note against implicit singletons: nothing
 * here is a package-level var, it is threaded through every call.
 */

package nucleus

import (
	"errors"
	"fmt"

	"github.com/mipskernel/kernel/nucleus/asl"
	"github.com/mipskernel/kernel/nucleus/pcb"
	"github.com/mipskernel/kernel/nucleus/sema"
)

// Quantum is the scheduler's round-robin time slice.
const Quantum = 5000 // microseconds

// PseudoClockInterval is the interval timer's reload value.
const PseudoClockInterval = 100000 // microseconds

// Device line numbers, priority order 3 (highest) to 7 (lowest).
const (
	LineTimer    = 1 // local timer (PLT)
	LineClock    = 2 // interval timer / pseudo-clock
	LineDisk     = 3
	LineFlash    = 4
	LinePrinter  = 5
	LineNetwork  = 6
	LineTerminal = 7
)

const devicesPerLine = 8

// deviceSemCount sizes the per-sub-device semaphore array: receive
// indices occupy 0..39, terminal-transmit indices occupy 64..71 (see
// RecvSemIndex / XmitSemIndex).
const deviceSemCount = 72

// RecvSemIndex returns the semaphore array index for the receive (or
// only) half of device dev on line.
func RecvSemIndex(line, dev int) int {
	return (line-LineDisk)*devicesPerLine + dev
}

// XmitSemIndex returns the semaphore array index for a terminal's
// transmit half. Only line == LineTerminal uses this bank.
func XmitSemIndex(line, dev int) int {
	return 32 + (line-LineDisk)*devicesPerLine + dev
}

// Outcome distinguishes the two ways a kernel run ends, per spec.md §7.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeHalt
	OutcomePanic
)

// FatalError is returned up through the run loop when the system reaches
// HALT (process count zero, nothing left to run) or PANIC (deadlock or
// impossible internal state). It is fatal to the whole system, not to one
// process.
type FatalError struct {
	Outcome Outcome
	Reason  string
}

func (e *FatalError) Error() string {
	switch e.Outcome {
	case OutcomeHalt:
		return "HALT: " + e.Reason
	case OutcomePanic:
		return "PANIC: " + e.Reason
	default:
		return e.Reason
	}
}

func halt(format string, args ...any) error {
	return &FatalError{Outcome: OutcomeHalt, Reason: fmt.Sprintf(format, args...)}
}

func panicErr(format string, args ...any) error {
	return &FatalError{Outcome: OutcomePanic, Reason: fmt.Sprintf(format, args...)}
}

// ErrSpurious is returned (not treated as fatal) by the interrupt handler
// when a device line fires with no PCB waiting on its semaphore. spec.md
// §9 leaves this an open question; this implementation keeps the source
// behavior (acknowledge, return to current) but exposes SpuriousCount so a
// caller can tell whether it is happening.
var ErrSpurious = errors.New("nucleus: spurious interrupt")

// Bios is the thin bridge to BIOS-level primitives the nucleus depends on
// (Component K). Kept small deliberately: the value of this repository is
// in the nucleus/support logic, not in re-simulating a MIPS core.
type Bios interface {
	// SetPLT programs the local timer to fire after micros, or to
	// "never" fire when micros is 0 (used by the empty-ready-queue wait
	// policy).
	SetPLT(micros uint64)
	// SetIntervalTimer reloads the pseudo-clock interval timer.
	SetIntervalTimer(micros uint64)
	// EnableInterrupts / DisableInterrupts model the global
	// interrupt-enable bit the atomic TLB/PTE and release-and-sleep
	// patterns toggle around a critical pair of operations.
	EnableInterrupts()
	DisableInterrupts()
	// Wait puts the simulated CPU into the WAIT primitive: interrupts
	// enabled, timer set to never, blocked until an interrupt arrives.
	Wait()
}

// Kernel is the single, explicitly threaded kernel context: process
// pool and queues, the ASL, counts, the device semaphore array, the
// pseudo-clock semaphore, and the bridge to BIOS primitives.
type Kernel struct {
	Pool  *pcb.Pool
	Ready pcb.Queue
	ASL   *asl.ASL

	Current        *pcb.PCB
	ProcessCount   int
	SoftBlockCount int
	QuantumStart   uint64

	DeviceSems  [deviceSemCount]*sema.Sem
	PseudoClock *sema.Sem

	SpuriousCount int

	Clock Clock
	Bios  Bios
}

// New builds a Kernel with an empty ready queue, a fresh PCB pool and ASL,
// all per-sub-device completion semaphores at 0 (so the first wait-for-io
// on each blocks until the matching interrupt arrives), and the
// pseudo-clock semaphore at 0. The per-device mutual-exclusion semaphores
// spec.md 4.J describes are a separate array, owned by the support level
// (support/device), since nucleus syscalls never acquire them directly.
func New(clock Clock, bios Bios) *Kernel {
	k := &Kernel{
		Pool:        pcb.NewPool(),
		ASL:         asl.New(),
		PseudoClock: sema.New(0),
		Clock:       clock,
		Bios:        bios,
	}
	for i := range k.DeviceSems {
		k.DeviceSems[i] = sema.New(0)
	}
	return k
}
