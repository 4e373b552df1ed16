package nucleus

import (
	"testing"

	"github.com/mipskernel/kernel/nucleus/cpustate"
	"github.com/mipskernel/kernel/nucleus/sema"
	"github.com/mipskernel/kernel/nucleus/supportstruct"
)

// fakeClock lets tests advance time deterministically instead of waiting
// on the real one.
type fakeClock struct{ micros uint64 }

func (c *fakeClock) NowMicros() uint64 { return c.micros }

// fakeBios records calls instead of touching real hardware state.
type fakeBios struct {
	plt       uint64
	interval  uint64
	enabled   bool
	waitCalls int
}

func (b *fakeBios) SetPLT(micros uint64)          { b.plt = micros }
func (b *fakeBios) SetIntervalTimer(micros uint64) { b.interval = micros }
func (b *fakeBios) EnableInterrupts()             { b.enabled = true }
func (b *fakeBios) DisableInterrupts()            { b.enabled = false }
func (b *fakeBios) Wait()                         { b.waitCalls++ }

func newTestKernel() (*Kernel, *fakeClock, *fakeBios) {
	clk := &fakeClock{}
	bios := &fakeBios{}
	return New(clk, bios), clk, bios
}

func TestDispatchHaltsWhenNoProcessesRemain(t *testing.T) {
	k, _, _ := newTestKernel()
	err := k.Dispatch()
	fe, ok := err.(*FatalError)
	if !ok || fe.Outcome != OutcomeHalt {
		t.Fatalf("Dispatch() = %v, want HALT", err)
	}
}

func TestDispatchPanicsOnDeadlock(t *testing.T) {
	k, _, _ := newTestKernel()
	k.ProcessCount = 1 // a process exists but is neither ready nor soft-blocked
	err := k.Dispatch()
	fe, ok := err.(*FatalError)
	if !ok || fe.Outcome != OutcomePanic {
		t.Fatalf("Dispatch() = %v, want PANIC", err)
	}
}

func TestDispatchWaitsOnSoftBlock(t *testing.T) {
	k, _, bios := newTestKernel()
	k.ProcessCount = 1
	k.SoftBlockCount = 1
	if err := k.Dispatch(); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if bios.waitCalls != 1 {
		t.Fatalf("expected one Wait() call, got %d", bios.waitCalls)
	}
	if k.Current != nil {
		t.Fatalf("Current should be nil while waiting")
	}
}

func TestQuantumExpiryRequeuesAndChargesTime(t *testing.T) {
	k, clk, _ := newTestKernel()
	root, _ := k.Pool.Alloc()
	k.Current = root
	k.ProcessCount = 1
	k.QuantumStart = 0
	clk.micros = Quantum

	if err := k.HandlePLTInterrupt(); err != nil {
		t.Fatalf("HandlePLTInterrupt: %v", err)
	}
	if root.CPUTime != Quantum {
		t.Fatalf("CPUTime = %d, want %d", root.CPUTime, Quantum)
	}
	if k.Current != root {
		t.Fatalf("expected the single ready process to be redispatched")
	}
}

func TestHandlePLTInterruptPanicsWithNoCurrent(t *testing.T) {
	k, _, _ := newTestKernel()
	err := k.HandlePLTInterrupt()
	fe, ok := err.(*FatalError)
	if !ok || fe.Outcome != OutcomePanic {
		t.Fatalf("HandlePLTInterrupt with no current process = %v, want a panic outcome", err)
	}
}

func TestSysGetCPUTimeFoldsInRunningQuantum(t *testing.T) {
	k, clk, _ := newTestKernel()
	root, _ := k.Pool.Alloc()
	root.CPUTime = 100
	k.Current = root
	k.QuantumStart = 50
	clk.micros = 80

	if got := k.SysGetCPUTime(root); got != 130 {
		t.Fatalf("SysGetCPUTime = %d, want 130 (100 + (80-50))", got)
	}
}

func TestSysGetCPUTimeOtherProcessNotFoldedIn(t *testing.T) {
	k, clk, _ := newTestKernel()
	root, _ := k.Pool.Alloc()
	other, _ := k.Pool.Alloc()
	other.CPUTime = 42
	k.Current = root
	k.QuantumStart = 50
	clk.micros = 80

	if got := k.SysGetCPUTime(other); got != 42 {
		t.Fatalf("SysGetCPUTime = %d, want 42 (not Current, no quantum slice folded in)", got)
	}
}

func TestSysPVBlockAndWake(t *testing.T) {
	k, _, _ := newTestKernel()
	a, _ := k.Pool.Alloc()
	k.Current = a
	k.ProcessCount = 1

	s := sema.New(0)
	if err := k.SysP(s); err != nil {
		t.Fatalf("SysP: %v", err)
	}
	if k.Current != nil {
		t.Fatalf("SysP on a zero semaphore should block the caller")
	}
	if s.Value != -1 {
		t.Fatalf("Value = %d, want -1", s.Value)
	}

	k.SysV(s)
	if s.Value != 0 {
		t.Fatalf("Value = %d, want 0", s.Value)
	}
	if k.Ready.PeekHead() != a {
		t.Fatalf("SysV should have requeued the blocked process")
	}
}

func TestSysTerminateCascadesChildren(t *testing.T) {
	k, _, _ := newTestKernel()
	root, _ := k.Pool.Alloc()
	k.Current = root
	k.ProcessCount = 1

	childState := cpustate.CPUState{}
	child, err := k.SysCreate(&childState, nil)
	if err != nil {
		t.Fatalf("SysCreate: %v", err)
	}
	k.Current = child
	grandchild, err := k.SysCreate(&childState, nil)
	if err != nil {
		t.Fatalf("SysCreate grandchild: %v", err)
	}

	k.Current = root
	k.SysTerminate(root)

	if k.ProcessCount != 0 {
		t.Fatalf("ProcessCount = %d, want 0 after cascade terminate", k.ProcessCount)
	}
	if k.Pool.InUse() != 0 {
		t.Fatalf("InUse = %d, want 0, pool not fully freed", k.Pool.InUse())
	}
	_ = grandchild
}

func TestHandleDeviceInterruptSpurious(t *testing.T) {
	k, _, _ := newTestKernel()
	if err := k.HandleDeviceInterrupt(LineDisk, 0, false, 0, 0); err != ErrSpurious {
		t.Fatalf("HandleDeviceInterrupt = %v, want ErrSpurious", err)
	}
	if k.SpuriousCount != 1 {
		t.Fatalf("SpuriousCount = %d, want 1", k.SpuriousCount)
	}
}

func TestHandleDeviceInterruptWakesWaiter(t *testing.T) {
	k, clk, _ := newTestKernel()
	a, _ := k.Pool.Alloc()
	k.Current = a
	k.ProcessCount = 1

	if err := k.SysWaitForIO(LineDisk, 2, false); err != nil {
		t.Fatalf("SysWaitForIO: %v", err)
	}
	if k.SoftBlockCount != 1 {
		t.Fatalf("SoftBlockCount = %d, want 1", k.SoftBlockCount)
	}

	entry := clk.micros
	clk.micros += 25
	if err := k.HandleDeviceInterrupt(LineDisk, 2, false, 7, entry); err != nil {
		t.Fatalf("HandleDeviceInterrupt: %v", err)
	}
	if k.SoftBlockCount != 0 {
		t.Fatalf("SoftBlockCount = %d, want 0 after completion", k.SoftBlockCount)
	}
	if k.Ready.PeekHead() != a {
		t.Fatalf("expected waiter requeued")
	}
	if a.State.Regs[2] != 7 {
		t.Fatalf("status register = %d, want 7", a.State.Regs[2])
	}
	if a.CPUTime != 25 {
		t.Fatalf("CPUTime = %d, want 25 (charged between exception entry and now)", a.CPUTime)
	}
}

func TestHandleClockInterruptWakesAllWaiters(t *testing.T) {
	k, _, _ := newTestKernel()
	a, _ := k.Pool.Alloc()
	b, _ := k.Pool.Alloc()

	k.Current = a
	_ = k.SysWaitForClock()
	k.Current = b
	_ = k.SysWaitForClock()

	if k.SoftBlockCount != 2 {
		t.Fatalf("SoftBlockCount = %d, want 2", k.SoftBlockCount)
	}

	k.HandleClockInterrupt()

	if k.SoftBlockCount != 0 {
		t.Fatalf("SoftBlockCount = %d, want 0 after clock tick", k.SoftBlockCount)
	}
	seen := map[int]bool{}
	for i := 0; i < 2; i++ {
		p := k.Ready.RemoveHead()
		if p == nil {
			t.Fatalf("expected two processes on the ready queue")
		}
		seen[p.Pid] = true
	}
	if !seen[a.Pid] || !seen[b.Pid] {
		t.Fatalf("not all waiters were woken")
	}
}

func TestPassUpOrDieKillsProcessWithoutSupport(t *testing.T) {
	k, _, _ := newTestKernel()
	root, _ := k.Pool.Alloc()
	k.Current = root
	k.ProcessCount = 1

	// root is the only process, so terminating it ends in a HALT.
	if fe, ok := k.PassUpOrDie(cpustate.ExcTLBInvLoad).(*FatalError); !ok || fe.Outcome != OutcomeHalt {
		t.Fatalf("PassUpOrDie on the last process should HALT, got %v", fe)
	}
	if k.ProcessCount != 0 {
		t.Fatalf("ProcessCount = %d, want 0, process should have been terminated", k.ProcessCount)
	}
}

func TestPassUpOrDieRedirectsToSupportContext(t *testing.T) {
	k, _, _ := newTestKernel()
	root, _ := k.Pool.Alloc()
	sup := supportstruct.New(1, 16)
	sup.NewContext[supportstruct.ExcPager] = cpustate.Context{SP: 0x2000, PC: 0x3000, Status: cpustate.StatusIntEnable}
	root.Support = sup
	k.Current = root
	k.ProcessCount = 1

	if err := k.PassUpOrDie(cpustate.ExcTLBInvStore); err != nil {
		t.Fatalf("PassUpOrDie: %v", err)
	}
	if k.Current != root {
		t.Fatalf("process should not be terminated when it has a support structure")
	}
	if root.State.PC != 0x3000 || root.State.Regs[29] != 0x2000 {
		t.Fatalf("TLB fault not redirected to the support-level pager handler: %+v", root.State)
	}
}
