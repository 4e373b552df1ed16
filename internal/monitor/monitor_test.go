package monitor

import (
	"strings"
	"testing"

	"github.com/mipskernel/kernel/delay"
	"github.com/mipskernel/kernel/nucleus"
	"github.com/mipskernel/kernel/nucleus/cpustate"
	"github.com/mipskernel/kernel/nucleus/sema"
	"github.com/mipskernel/kernel/nucleus/supportstruct"
	"github.com/mipskernel/kernel/support/swappool"
)

type fakeClock struct{ micros uint64 }

func (c *fakeClock) NowMicros() uint64 { return c.micros }

type fakeBios struct{}

func (b *fakeBios) SetPLT(micros uint64)           {}
func (b *fakeBios) SetIntervalTimer(micros uint64) {}
func (b *fakeBios) EnableInterrupts()              {}
func (b *fakeBios) DisableInterrupts()             {}
func (b *fakeBios) Wait()                          {}

func newConsole() *Console {
	k := nucleus.New(&fakeClock{}, &fakeBios{})
	return &Console{Kernel: k, Swap: swappool.New(4), Delay: delay.New(4), Out: &strings.Builder{}}
}

func TestProcessCommandUnknown(t *testing.T) {
	c := newConsole()
	_, _, err := ProcessCommand("bogus", c)
	if err == nil {
		t.Fatalf("expected an error for an unknown command")
	}
}

func TestProcessCommandAmbiguousPrefix(t *testing.T) {
	c := newConsole()
	// "s" matches both "swap" and "spurious".
	_, _, err := ProcessCommand("s", c)
	if err == nil {
		t.Fatalf("expected an ambiguous-command error")
	}
}

func TestProcessCommandAbbreviation(t *testing.T) {
	c := newConsole()
	_, out, err := ProcessCommand("sw", c)
	if err != nil {
		t.Fatalf("ProcessCommand: %v", err)
	}
	if !strings.Contains(out, "frames:") {
		t.Fatalf("output = %q, want a frames summary", out)
	}
}

func TestProcessCommandQuit(t *testing.T) {
	c := newConsole()
	quit, _, err := ProcessCommand("quit", c)
	if err != nil || !quit {
		t.Fatalf("quit = %v, err = %v, want quit=true", quit, err)
	}
}

func TestCmdPSListsAllocatedProcesses(t *testing.T) {
	c := newConsole()
	p, err := c.Kernel.Pool.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	p.Support = supportstruct.New(1, 8)
	p.State = cpustate.CPUState{PC: 0x4000}
	c.Kernel.Current = p

	out := cmdPS(c)
	if !strings.Contains(out, "current") {
		t.Fatalf("ps output = %q, want a current marker", out)
	}
	if !strings.Contains(out, "1") {
		t.Fatalf("ps output = %q, want asid 1 present", out)
	}
}

func TestCmdQueueReportsReadyOrder(t *testing.T) {
	c := newConsole()
	a, _ := c.Kernel.Pool.Alloc()
	b, _ := c.Kernel.Pool.Alloc()
	c.Kernel.Ready.InsertTail(a)
	c.Kernel.Ready.InsertTail(b)

	out := cmdQueue(c)
	ai := strings.Index(out, "pid "+itoa(a.Pid))
	bi := strings.Index(out, "pid "+itoa(b.Pid))
	if ai == -1 || bi == -1 || ai > bi {
		t.Fatalf("queue output = %q, want a before b", out)
	}
}

func TestCmdASLReportsBlockedProcesses(t *testing.T) {
	c := newConsole()
	p, _ := c.Kernel.Pool.Alloc()
	s := sema.New(0)
	if err := c.Kernel.ASL.InsertBlocked(s, p); err != nil {
		t.Fatalf("InsertBlocked: %v", err)
	}

	out := cmdASL(c)
	if !strings.Contains(out, "pid "+itoa(p.Pid)) {
		t.Fatalf("asl output = %q, want pid %d listed", out, p.Pid)
	}
}

func TestCmdASLEmpty(t *testing.T) {
	c := newConsole()
	out := cmdASL(c)
	if !strings.Contains(out, "empty") {
		t.Fatalf("asl output = %q, want an empty marker", out)
	}
}

func TestCmdSwapReportsOccupancy(t *testing.T) {
	c := newConsole()
	c.Swap.Entries[0].ASID = 3
	c.Swap.Entries[0].VPN = 7

	out := cmdSwap(c)
	if !strings.Contains(out, "1 used, 3 free") {
		t.Fatalf("swap output = %q, want 1 used of 4 frames", out)
	}
}

func TestCmdSpuriousReportsCount(t *testing.T) {
	c := newConsole()
	c.Kernel.SpuriousCount = 5
	out := cmdSpurious(c)
	if !strings.Contains(out, "5") {
		t.Fatalf("spurious output = %q, want count 5", out)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
