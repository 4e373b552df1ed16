/*
 * kernelsim - Component K's concrete bridge: the only place in this
 * repository that actually implements bios.Registers/bios.TLB/nucleus.Bios
 * instead of declaring the interface or faking it for a test.
 *
 * Grounded on two teacher shapes: emu/sys_channel.go's register-access
 * functions (ChanReadByte/ChanWriteByte/StartIO/TestIO - a command word in,
 * a status/data word out) for Registers, and emu/timer.Timer's
 * goroutine-plus-ticker shape for the PLT and pseudo-clock, generalized
 * from a fixed 5ms interval to a duration the nucleus reprograms on every
 * Dispatch (SetPLT/SetIntervalTimer each carry their own micros value,
 * where 0 means "never fire" per spec.md 4.C's empty-ready-queue policy,
 * rather than the teacher's fixed-tick enable/disable toggle).
 *
 * Like support/device/dma.go's CompleteIO, every device path here resolves
 * synchronously within the call that issues it: a disk/flash transfer is
 * real file I/O with no artificial latency, and a terminal read returns
 * whatever is already sitting in that device's receive queue. A live
 * telnet client's bytes must already be on the wire by the time a demo
 * routine issues the read; this repository does not model a process
 * genuinely blocking across wall-clock time waiting on a future network
 * byte (spec.md 1, Non-goals: no MIPS instruction execution to interleave
 * that wait against).
 */

package hw

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mipskernel/kernel/bios"
	"github.com/mipskernel/kernel/internal/bus"
	"github.com/mipskernel/kernel/internal/termline"
	"github.com/mipskernel/kernel/nucleus"
	"github.com/mipskernel/kernel/support/device"
)

// lineTimer is one reprogrammable one-shot timer: set(d) arms it to fire
// bus.Packet{Msg: msg} after d, replacing any previously pending fire; set(0)
// disarms it. Grounded on emu/timer.Timer's wg/done/run/select shape.
type lineTimer struct {
	reprogram chan time.Duration
	done      chan struct{}
	wg        sync.WaitGroup
}

func newLineTimer(events chan<- bus.Packet, msg bus.Msg) *lineTimer {
	lt := &lineTimer{reprogram: make(chan time.Duration, 1), done: make(chan struct{})}
	lt.wg.Add(1)
	go lt.run(events, msg)
	return lt
}

func (lt *lineTimer) run(events chan<- bus.Packet, msg bus.Msg) {
	defer lt.wg.Done()
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	armed := false

	for {
		var fire <-chan time.Time
		if armed {
			fire = t.C
		}
		select {
		case d := <-lt.reprogram:
			if armed && !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			if d <= 0 {
				armed = false
				continue
			}
			t.Reset(d)
			armed = true

		case <-fire:
			armed = false
			events <- bus.Packet{Msg: msg}

		case <-lt.done:
			return
		}
	}
}

func (lt *lineTimer) set(d time.Duration) { lt.reprogram <- d }

func (lt *lineTimer) shutdown() {
	close(lt.done)
	lt.wg.Wait()
}

// Bios drives the PLT (line 1) and pseudo-clock (line 2) as two
// independently reprogrammable timers posting onto the shared event bus.
// EnableInterrupts/DisableInterrupts are bookkeeping only: this
// simulation never preempts a handler mid-flight (spec.md 4.C's "one
// process executing at a time" loop), so there is no window for a
// disabled interrupt to actually need holding back.
type Bios struct {
	plt     *lineTimer
	clock   *lineTimer
	mu      sync.Mutex
	enabled bool
}

// NewBios starts the PLT and pseudo-clock goroutines, posting to events.
func NewBios(events chan<- bus.Packet) *Bios {
	return &Bios{
		plt:   newLineTimer(events, bus.PLTTick),
		clock: newLineTimer(events, bus.ClockTick),
	}
}

func (b *Bios) SetPLT(micros uint64)           { b.plt.set(time.Duration(micros) * time.Microsecond) }
func (b *Bios) SetIntervalTimer(micros uint64) { b.clock.set(time.Duration(micros) * time.Microsecond) }

func (b *Bios) EnableInterrupts() {
	b.mu.Lock()
	b.enabled = true
	b.mu.Unlock()
}

func (b *Bios) DisableInterrupts() {
	b.mu.Lock()
	b.enabled = false
	b.mu.Unlock()
}

// Wait is a no-op: the driver loop's own blocking receive on the event
// channel, one level up, is what actually parks the simulated CPU.
func (b *Bios) Wait() {}

// Shutdown stops both timer goroutines. Safe to call once, after the
// driver loop has exited.
func (b *Bios) Shutdown() {
	b.plt.shutdown()
	b.clock.shutdown()
}

type devState struct {
	status uint8
	data0  uint32
	data1  uint32
	frame  []uint32
}

// recvQueue is one terminal device's buffered input: bytes termline has
// already received from the network, waiting for a ReadData1 to claim
// them one at a time.
type recvQueue struct {
	mu  sync.Mutex
	buf []byte
}

func (q *recvQueue) push(b byte) {
	q.mu.Lock()
	q.buf = append(q.buf, b)
	q.mu.Unlock()
}

func (q *recvQueue) pop() (byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return 0, false
	}
	b := q.buf[0]
	q.buf = q.buf[1:]
	return b, true
}

// Registers is the concrete bios.Registers: one devState per (line, dev),
// a telnet-backed terminal transport for the terminal line's transmit
// half and a receive queue per device for its receive half, and a
// configured geometry word per disk unit.
type Registers struct {
	mu    sync.Mutex
	lines [8][8]devState
	recv  [termline.MaxLines]recvQueue

	term     *termline.Server
	geometry map[int]uint32 // diskNo -> packed (maxCyl<<16)|(maxHead<<8)|maxSect
	log      *slog.Logger
}

// NewRegisters builds a Registers bridge. term may be nil until
// termline.Start returns one; SetTerminal installs it once the listeners
// are up.
func NewRegisters(log *slog.Logger) *Registers {
	return &Registers{geometry: make(map[int]uint32), log: log}
}

// SetTerminal installs the live telnet transport, once termline.Start has
// built it.
func (r *Registers) SetTerminal(s *termline.Server) {
	r.mu.Lock()
	r.term = s
	r.mu.Unlock()
}

// SetGeometry records diskNo's (maxCyl, maxHead, maxSect), read back by
// ReadData1(LineDisk, diskNo) the way a real disk controller reports its
// format.
func (r *Registers) SetGeometry(diskNo int, maxCyl, maxHead, maxSect uint32) {
	r.mu.Lock()
	r.geometry[diskNo] = (maxCyl << 16) | (maxHead << 8) | maxSect
	r.mu.Unlock()
}

// PushRecv stages one byte termline received on dev's line for the next
// ReadData1(LineTerminal, dev) to claim.
func (r *Registers) PushRecv(dev int, b byte) {
	if dev < 0 || dev >= termline.MaxLines {
		return
	}
	r.recv[dev].push(b)
}

func (r *Registers) Status(line, dev int) uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines[line&7][dev&7].status
}

// WriteCommand decodes cmd the way spec.md 6's register layout describes:
// a terminal transmit command carries its character packed in the upper
// bits and sends it out over the live telnet connection immediately; a
// printer command prints to the structured log, since this repository
// has no separate printer transport; disk/flash commands only set the
// status to ready and are not stored, since TransferDisk/TransferFlash
// perform the actual backing-store I/O directly against a BlockStore
// rather than through this bridge.
func (r *Registers) WriteCommand(line, dev int, cmd uint32) {
	r.mu.Lock()
	st := &r.lines[line&7][dev&7]
	st.status = device.StatusReady
	r.mu.Unlock()

	switch line {
	case nucleus.LineTerminal:
		op := cmd & 0xff
		if op == device.OpTermXmit {
			ch := byte(cmd >> 8)
			if r.term != nil {
				if err := r.term.Transmit(dev, ch); err != nil && r.log != nil {
					r.log.Warn("terminal transmit failed", "dev", dev, "err", err)
				}
			}
		}
	case nucleus.LinePrinter:
		if cmd&0xff == device.OpPrintChar && r.log != nil {
			r.mu.Lock()
			ch := byte(r.lines[line&7][dev&7].data0)
			r.mu.Unlock()
			r.log.Info("printer output", "dev", dev, "char", fmt.Sprintf("%q", ch))
		}
	}
}

func (r *Registers) WriteData0(line, dev int, val uint32) {
	r.mu.Lock()
	r.lines[line&7][dev&7].data0 = val
	r.mu.Unlock()
}

// ReadData1 returns a disk's configured geometry word, or, for a
// terminal's receive half, the next buffered character in its upper byte
// (spec.md 6: "the received character in its upper byte"), 0 if nothing
// has arrived yet.
func (r *Registers) ReadData1(line, dev int) uint32 {
	if line == nucleus.LineDisk {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.geometry[dev]
	}
	if line == nucleus.LineTerminal {
		if dev < 0 || dev >= termline.MaxLines {
			return 0
		}
		if b, ok := r.recv[dev].pop(); ok {
			return uint32(b) << 24
		}
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines[line&7][dev&7].data1
}

func (r *Registers) SetDMABuffer(line, dev int, frame []uint32) {
	r.mu.Lock()
	r.lines[line&7][dev&7].frame = frame
	r.mu.Unlock()
}

// TLB is the software-managed translation cache: a fixed slot table,
// probed linearly, written by index or round-robin. Grounded on
// support/pager's doc comment describing a "software-managed TLB with a
// flash-backed swap pool"; real MIPS hardware associatively searches all
// slots in parallel, which a linear Probe stands in for here.
type TLB struct {
	mu      sync.Mutex
	entries []bios.TLBEntry
	next    int
}

// NewTLB builds a TLB with the given number of slots.
func NewTLB(slots int) *TLB {
	return &TLB{entries: make([]bios.TLBEntry, slots)}
}

func (t *TLB) Probe(entryHI uint32) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e.Valid && e.EntryHI == entryHI {
			return i, true
		}
	}
	return 0, false
}

func (t *TLB) Write(index int, e bios.TLBEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[index] = e
}

// WriteRandom installs e at the next slot in round-robin order. Real
// hardware's "not TLBWR" choice of victim is implementation-defined; a
// round robin is the simplest fair stand-in.
func (t *TLB) WriteRandom(e bios.TLBEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[t.next] = e
	t.next = (t.next + 1) % len(t.entries)
}
