package hw

import (
	"log/slog"
	"testing"
	"time"

	"github.com/mipskernel/kernel/bios"
	"github.com/mipskernel/kernel/internal/bus"
	"github.com/mipskernel/kernel/nucleus"
	"github.com/mipskernel/kernel/support/device"
)

func drain(t *testing.T, events chan bus.Packet, want bus.Msg, within time.Duration) bus.Packet {
	t.Helper()
	select {
	case pkt := <-events:
		if pkt.Msg != want {
			t.Fatalf("got Msg %v, want %v", pkt.Msg, want)
		}
		return pkt
	case <-time.After(within):
		t.Fatalf("timed out waiting for Msg %v", want)
		return bus.Packet{}
	}
}

func noEvent(t *testing.T, events chan bus.Packet, within time.Duration) {
	t.Helper()
	select {
	case pkt := <-events:
		t.Fatalf("unexpected event %+v", pkt)
	case <-time.After(within):
	}
}

func TestBiosSetPLTFires(t *testing.T) {
	events := make(chan bus.Packet, 4)
	b := NewBios(events)
	defer b.Shutdown()

	b.SetPLT(5000)
	drain(t, events, bus.PLTTick, time.Second)
}

func TestBiosSetPLTZeroDisarms(t *testing.T) {
	events := make(chan bus.Packet, 4)
	b := NewBios(events)
	defer b.Shutdown()

	b.SetPLT(5000)
	b.SetPLT(0)
	noEvent(t, events, 20*time.Millisecond)
}

func TestBiosSetIntervalTimerFires(t *testing.T) {
	events := make(chan bus.Packet, 4)
	b := NewBios(events)
	defer b.Shutdown()

	b.SetIntervalTimer(5000)
	drain(t, events, bus.ClockTick, time.Second)
}

func TestBiosReprogramReplacesPending(t *testing.T) {
	events := make(chan bus.Packet, 4)
	b := NewBios(events)
	defer b.Shutdown()

	b.SetPLT(200000)
	b.SetPLT(5000)
	drain(t, events, bus.PLTTick, time.Second)
	noEvent(t, events, 50*time.Millisecond)
}

func TestRegistersWriteCommandTransmitsTerminalChar(t *testing.T) {
	r := NewRegisters(slog.Default())
	// No terminal attached: WriteCommand must not panic, and Status still
	// reflects the command having been issued.
	r.WriteCommand(nucleus.LineTerminal, 2, uint32(device.OpTermXmit)|('A'<<8))
	if got := r.Status(nucleus.LineTerminal, 2); got != device.StatusReady {
		t.Fatalf("Status = %d, want StatusReady", got)
	}
}

func TestRegistersGeometryRoundTrip(t *testing.T) {
	r := NewRegisters(slog.Default())
	r.SetGeometry(1, 10, 4, 32)

	got := r.ReadData1(nucleus.LineDisk, 1)
	want := uint32(10<<16) | uint32(4<<8) | uint32(32)
	if got != want {
		t.Fatalf("ReadData1 = %#x, want %#x", got, want)
	}
}

func TestRegistersTerminalReceiveQueue(t *testing.T) {
	r := NewRegisters(slog.Default())

	if got := r.ReadData1(nucleus.LineTerminal, 0); got != 0 {
		t.Fatalf("ReadData1 with empty queue = %#x, want 0", got)
	}

	r.PushRecv(0, 'Q')
	got := r.ReadData1(nucleus.LineTerminal, 0)
	if want := uint32('Q') << 24; got != want {
		t.Fatalf("ReadData1 = %#x, want %#x", got, want)
	}
	// Queue is one-shot: the byte is consumed.
	if got := r.ReadData1(nucleus.LineTerminal, 0); got != 0 {
		t.Fatalf("ReadData1 after consuming = %#x, want 0", got)
	}
}

func TestRegistersPushRecvOutOfRangeIgnored(t *testing.T) {
	r := NewRegisters(slog.Default())
	r.PushRecv(-1, 'x')
	r.PushRecv(1000, 'x')
}

func TestRegistersSetDMABuffer(t *testing.T) {
	r := NewRegisters(slog.Default())
	frame := make([]uint32, 4)
	r.SetDMABuffer(nucleus.LineFlash, 0, frame)
	if got := r.lines[nucleus.LineFlash&7][0].frame; len(got) != len(frame) {
		t.Fatalf("frame length = %d, want %d", len(got), len(frame))
	}
}

func TestTLBWriteAndProbe(t *testing.T) {
	tlb := NewTLB(4)
	entry := bios.TLBEntry{EntryHI: 0x1234, Frame: 7, Valid: true}
	tlb.Write(1, entry)

	idx, ok := tlb.Probe(0x1234)
	if !ok || idx != 1 {
		t.Fatalf("Probe = (%d, %v), want (1, true)", idx, ok)
	}

	if _, ok := tlb.Probe(0x5678); ok {
		t.Fatalf("Probe found an entry that was never written")
	}
}

func TestTLBWriteRandomRoundRobin(t *testing.T) {
	tlb := NewTLB(2)
	e0 := bios.TLBEntry{EntryHI: 1, Valid: true}
	e1 := bios.TLBEntry{EntryHI: 2, Valid: true}
	e2 := bios.TLBEntry{EntryHI: 3, Valid: true}

	tlb.WriteRandom(e0)
	tlb.WriteRandom(e1)
	tlb.WriteRandom(e2) // wraps, overwrites slot 0 (e0)

	if _, ok := tlb.Probe(1); ok {
		t.Fatalf("slot 0 should have been overwritten by round robin")
	}
	if idx, ok := tlb.Probe(3); !ok || idx != 0 {
		t.Fatalf("Probe(3) = (%d, %v), want (0, true)", idx, ok)
	}
}
