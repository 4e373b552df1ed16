/*
 * kernelsim - main(): boot configuration, device wiring, and the driver
 * loop that feeds PLT/pseudo-clock/terminal events into the nucleus.
 *
 * Grounded on the teacher's root main.go: getopt for flags, obslog for
 * logging, a config loader run once at startup, a master event channel
 * handed to every hardware-simulation goroutine, a signal.Notify/select
 * shutdown loop. Generalized in two ways the teacher's single emulated
 * CPU didn't need: (1) the teacher's own stdin-reading goroutine (an IPL
 * command prompt) is replaced outright by internal/monitor's read-only
 * console, since this kernel's operator wants ps/queue/asl/swap
 * visibility, not an IPL device number; (2) the instantiator's and delay
 * daemon's PCBs have no instruction stream to resume after a blocking
 * syscall, so the driver recognizes them by pointer and calls their
 * continuation method (Instantiator.Step / ADL.Run) every time either
 * becomes Current, exactly as their own doc comments describe.
 */

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/mipskernel/kernel/boot"
	"github.com/mipskernel/kernel/config/kconf"
	"github.com/mipskernel/kernel/internal/bus"
	"github.com/mipskernel/kernel/internal/hw"
	"github.com/mipskernel/kernel/internal/monitor"
	"github.com/mipskernel/kernel/internal/obslog"
	"github.com/mipskernel/kernel/internal/termline"
	"github.com/mipskernel/kernel/nucleus"
	"github.com/mipskernel/kernel/nucleus/pcb"
	"github.com/mipskernel/kernel/support/device"
)

// Sizing and entry-point constants this binary picks for the kernel it
// boots. None of these are read back by spec.md's Non-goal of executing
// real MIPS instructions: PagerPC/PagerSP/SupportPC/SupportSP are
// recorded in each process's Support structure exactly as a real
// instantiator would, but nothing in this repository ever jumps to them.
const (
	tlbSlots       = 16
	swapPoolFrames = 16
	adlCapacity    = 16
	stackWords     = 128

	pagerPC   = 0x80020000
	pagerSP   = 0x80030000
	supportPC = 0x80040000
	supportSP = 0x80050000

	defaultFlashCapacity = device.FlashBlockMax
)

func main() {
	optConfig := getopt.StringLong("config", 'c', "kernelsim.cfg", "Boot configuration file")
	optYAML := getopt.StringLong("yaml", 'y', "", "Boot configuration as a YAML manifest (alternative to -config)")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Mirror info/debug log lines to stderr")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var logFile io.Writer
	if *optLogFile != "" {
		f, err := os.Create(*optLogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kernelsim: %v\n", err)
			os.Exit(1)
		}
		logFile = f
	}
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	if *optDebug {
		level.Set(slog.LevelDebug)
	}
	logger := slog.New(obslog.NewHandler(logFile, &slog.HandlerOptions{Level: level}, *optDebug))
	slog.SetDefault(logger)

	if err := run(logger, *optConfig, *optYAML); err != nil {
		logger.Error("kernelsim exiting", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath, yamlPath string) error {
	if yamlPath != "" {
		if err := kconf.LoadYAMLFile(yamlPath); err != nil {
			return fmt.Errorf("loading %s: %w", yamlPath, err)
		}
	} else {
		if err := kconf.LoadFile(configPath); err != nil {
			return fmt.Errorf("loading %s: %w", configPath, err)
		}
	}

	numUsers := boot.NumUsers()
	if numUsers < 1 || numUsers > boot.MaxUsers {
		return fmt.Errorf("NUSERS = %d, want 1..%d (set via the boot configuration)", numUsers, boot.MaxUsers)
	}

	diskStores, flashStores, err := attachStores(numUsers)
	if err != nil {
		return err
	}
	defer closeStores(diskStores)
	defer closeStores(flashStores)

	events := make(chan bus.Packet, 64)
	clock := nucleus.NewWallClock()
	bios := hw.NewBios(events)
	defer bios.Shutdown()
	regs := hw.NewRegisters(logger)
	tlb := hw.NewTLB(tlbSlots)

	for diskNo, g := range allConfiguredDiskGeometry() {
		regs.SetGeometry(diskNo, g.MaxCyl, g.MaxHead, g.MaxSect)
	}

	k := nucleus.New(clock, bios)
	self, err := k.Pool.Alloc()
	if err != nil {
		return fmt.Errorf("allocating the instantiator's PCB: %w", err)
	}
	k.Current = self
	k.ProcessCount = 1

	daemon, err := k.Pool.Alloc()
	if err != nil {
		return fmt.Errorf("allocating the delay daemon's PCB: %w", err)
	}

	cfg := boot.Config{
		NumUsers:       numUsers,
		TextStart:      device.KUSEG,
		StackTop:       device.StackTop - 4,
		SwapPoolFrames: swapPoolFrames,
		ADLCapacity:    adlCapacity,
		StackWords:     stackWords,
		PagerPC:        pagerPC,
		PagerSP:        pagerSP,
		SupportPC:      supportPC,
		SupportSP:      supportSP,
		DiskStore:      func(diskNo int) *device.BlockStore { return diskStores[diskNo] },
		FlashStore:     func(flashNo int) *device.BlockStore { return flashStores[flashNo] },
	}

	inst, err := boot.Boot(k, regs, tlb, cfg)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	term, err := termline.Start(events)
	if err != nil {
		return fmt.Errorf("starting terminal lines: %w", err)
	}
	defer term.Stop()
	regs.SetTerminal(term)

	// Prime the instantiator and the delay daemon into their steady-state
	// blocked waits, then dispatch the first ready user. self is already
	// Current (boot.Boot requires it); the daemon only becomes Current via
	// ADL.Run's own assignment, so main is the one place that seeds it.
	if err := inst.Step(k, self); err != nil {
		return logHalt(logger, err)
	}
	if err := inst.ADL.Run(k, daemon, k.Clock.NowMicros()); err != nil {
		return logHalt(logger, err)
	}
	if err := k.Dispatch(); err != nil {
		return logHalt(logger, err)
	}
	if err := settle(k, inst, self, daemon); err != nil {
		return logHalt(logger, err)
	}

	console := &monitor.Console{Kernel: k, Swap: inst.Pool, Delay: inst.ADL, Out: os.Stdout}
	monitorDone := make(chan struct{})
	go func() {
		if err := monitor.Run(console); err != nil {
			logger.Warn("monitor console exited with an error", "err", err)
		}
		close(monitorDone)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("kernelsim running", "users", numUsers)

loop:
	for {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			break loop

		case <-monitorDone:
			logger.Info("monitor console exited, shutting down")
			break loop

		case pkt := <-events:
			if err := handleEvent(k, inst, self, daemon, regs, logger, pkt); err != nil {
				return logHalt(logger, err)
			}
		}
	}

	return nil
}

// handleEvent applies one bus.Packet to the kernel and, for the two event
// kinds that can move Current, drives the instantiator/daemon
// continuations until Current settles on an ordinary user process (or nil,
// on halt/wait).
func handleEvent(k *nucleus.Kernel, inst *boot.Instantiator, self, daemon *pcb.PCB, regs *hw.Registers, logger *slog.Logger, pkt bus.Packet) error {
	switch pkt.Msg {
	case bus.PLTTick:
		if err := k.HandlePLTInterrupt(); err != nil {
			return err
		}
		return settle(k, inst, self, daemon)

	case bus.ClockTick:
		k.HandleClockInterrupt()
		if k.Current == nil {
			if err := k.Dispatch(); err != nil {
				return err
			}
		}
		return settle(k, inst, self, daemon)

	case bus.TermConnect:
		logger.Info("terminal connected", "dev", pkt.Device)

	case bus.TermDisconnect:
		logger.Info("terminal disconnected", "dev", pkt.Device)

	case bus.TermRecv:
		regs.PushRecv(pkt.Device, pkt.Data)
	}
	return nil
}

// settle runs the instantiator's or delay daemon's continuation every
// time Dispatch hands either of them the CPU, redispatching after each
// one blocks, until Current is an ordinary process (or nil, on
// halt/wait). Neither continuation has anything further to do once it
// returns without blocking (no pending V had already satisfied its next
// wait): in that case it simply keeps the CPU, like any other process,
// until the next interrupt preempts it.
func settle(k *nucleus.Kernel, inst *boot.Instantiator, self, daemon *pcb.PCB) error {
	for {
		switch k.Current {
		case self:
			if err := inst.Step(k, self); err != nil {
				return err
			}
		case daemon:
			if err := inst.ADL.Run(k, daemon, k.Clock.NowMicros()); err != nil {
				return err
			}
		default:
			return nil
		}

		if k.Current != nil {
			return nil
		}
		if err := k.Dispatch(); err != nil {
			return err
		}
	}
}

// logHalt reports a *nucleus.FatalError as an expected shutdown (HALT) or
// an unexpected one (PANIC), and passes any other error straight through.
func logHalt(logger *slog.Logger, err error) error {
	if fe, ok := err.(*nucleus.FatalError); ok {
		if fe.Outcome == nucleus.OutcomeHalt {
			logger.Info("kernel halted", "reason", fe.Reason)
			return nil
		}
		logger.Error("kernel panicked", "reason", fe.Reason)
		return err
	}
	return err
}

// attachStores opens one BlockStore per DISK/FLASH directive the boot
// configuration registered, plus a default flash file for every user ASID
// the pager needs to page against even if no FLASH directive named it
// explicitly (device n-1 backs ASID n's demand paging, spec.md 4.F).
func attachStores(numUsers int) (disks, flashes map[int]*device.BlockStore, err error) {
	disks = make(map[int]*device.BlockStore)
	for unit, file := range device.ConfiguredDisks() {
		g := device.DiskGeometry(unit)
		capacity := int64(g.MaxCyl) * int64(g.MaxHead) * int64(g.MaxSect)
		store, err := device.Attach(file, capacity)
		if err != nil {
			closeStores(disks)
			return nil, nil, fmt.Errorf("attaching disk %d (%s): %w", unit, file, err)
		}
		disks[unit] = store
	}

	flashes = make(map[int]*device.BlockStore)
	for unit, file := range device.ConfiguredFlashes() {
		store, err := device.Attach(file, defaultFlashCapacity)
		if err != nil {
			closeStores(disks)
			closeStores(flashes)
			return nil, nil, fmt.Errorf("attaching flash %d (%s): %w", unit, file, err)
		}
		flashes[unit] = store
	}

	for dev := 0; dev < numUsers; dev++ {
		if _, ok := flashes[dev]; ok {
			continue
		}
		file := fmt.Sprintf("flash%d.img", dev)
		store, err := device.Attach(file, defaultFlashCapacity)
		if err != nil {
			closeStores(disks)
			closeStores(flashes)
			return nil, nil, fmt.Errorf("attaching default flash %d (%s): %w", dev, file, err)
		}
		flashes[dev] = store
	}

	return disks, flashes, nil
}

func closeStores(stores map[int]*device.BlockStore) {
	for _, s := range stores {
		_ = s.Close()
	}
}

func allConfiguredDiskGeometry() map[int]device.Geometry {
	out := make(map[int]device.Geometry)
	for unit := range device.ConfiguredDisks() {
		out[unit] = device.DiskGeometry(unit)
	}
	return out
}
