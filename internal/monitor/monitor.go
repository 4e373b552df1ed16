/*
 * kernelsim - read-only introspection console.
 *
 * Grounded on the teacher's command/parser package: a small command table
 * matched by unambiguous name prefix (cmdList, matchCommand, matchList),
 * trimmed from a mainframe operator's attach/detach/set/show vocabulary
 * down to the handful of read-only views a kernel's operator actually
 * wants - ps, queue, asl, swap, spurious - per the soft-block /
 * process-count consistency check and spurious-interrupt counter the
 * original Pandos-style kernel exposed for debugging.
 *
 * Raw-mode stdin (golang.org/x/term) is grounded on the commented-out
 * term.MakeRaw/term.Restore pair in awesomeVM's main.go; this console is
 * the one place in the repository that actually turns it on, since every
 * other line of output goes out over a telnet-backed terminal line
 * (internal/termline), not the operator's own stdin.
 */

package monitor

import (
	"fmt"
	"io"
	"os"
	"sort"

	"golang.org/x/term"

	"github.com/mipskernel/kernel/delay"
	"github.com/mipskernel/kernel/nucleus"
	"github.com/mipskernel/kernel/support/swappool"
)

// Console is the introspection surface: the same kernel context the
// nucleus mutates, read but never written here.
type Console struct {
	Kernel *nucleus.Kernel
	Swap   *swappool.Table
	Delay  *delay.ADL

	Out io.Writer
}

type cmd struct {
	name    string
	min     int
	process func(*Console) string
}

var cmdList = []cmd{
	{name: "ps", min: 1, process: cmdPS},
	{name: "queue", min: 1, process: cmdQueue},
	{name: "asl", min: 1, process: cmdASL},
	{name: "swap", min: 1, process: cmdSwap},
	{name: "spurious", min: 1, process: cmdSpurious},
	{name: "help", min: 1, process: cmdHelp},
}

// matchCommand reports whether command matches match.name to at least
// match.min characters.
func matchCommand(match cmd, command string) bool {
	if len(command) > len(match.name) {
		return false
	}
	for i := range command {
		if match.name[i] != command[i] {
			return false
		}
	}
	return len(command) >= match.min
}

func matchList(command string) []cmd {
	if command == "" {
		return nil
	}
	var match []cmd
	for _, m := range cmdList {
		if matchCommand(m, command) {
			match = append(match, m)
		}
	}
	return match
}

// ProcessCommand runs one command line and returns the text to print, or
// an error if the command is unknown, ambiguous, or (for "quit"/"exit")
// reports that the console should stop.
func ProcessCommand(line string, c *Console) (quit bool, output string, err error) {
	name := line
	for i, r := range line {
		if r == ' ' {
			name = line[:i]
			break
		}
	}
	if name == "" {
		return false, "", nil
	}
	if name == "quit" || name == "exit" {
		return true, "", nil
	}

	match := matchList(name)
	switch len(match) {
	case 0:
		return false, "", fmt.Errorf("unknown command: %s", name)
	case 1:
		return false, match[0].process(c), nil
	default:
		return false, "", fmt.Errorf("ambiguous command: %s", name)
	}
}

func cmdHelp(_ *Console) string {
	return "commands: ps, queue, asl, swap, spurious, help, quit"
}

func cmdPS(c *Console) string {
	procs := c.Kernel.Pool.Snapshot()
	sort.Slice(procs, func(i, j int) bool { return procs[i].Pid < procs[j].Pid })

	out := fmt.Sprintf("%-4s %-8s %-10s %-10s\r\n", "pid", "asid", "pc", "cputime")
	for _, p := range procs {
		asid := uint32(0)
		if p.Support != nil {
			asid = p.Support.ASID
		}
		state := "blocked"
		if p == c.Kernel.Current {
			state = "current"
		} else if p.Sem == nil {
			state = "ready"
		}
		out += fmt.Sprintf("%-4d %-8d %#08x %-10d %s\r\n", p.Pid, asid, p.State.PC, p.CPUTime, state)
	}
	out += fmt.Sprintf("total: %d, process count: %d, soft-blocked: %d\r\n",
		len(procs), c.Kernel.ProcessCount, c.Kernel.SoftBlockCount)
	return out
}

func cmdQueue(c *Console) string {
	ready := c.Kernel.Ready.Snapshot()
	out := fmt.Sprintf("ready queue (%d): ", len(ready))
	for i, p := range ready {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("pid %d", p.Pid)
	}
	return out + "\r\n"
}

func cmdASL(c *Console) string {
	out := "active semaphore list:\r\n"
	entries := c.Kernel.ASL.Snapshot()
	if len(entries) == 0 {
		return out + "  (empty)\r\n"
	}
	for _, d := range entries {
		out += fmt.Sprintf("  addr %d:", d.Key)
		for _, p := range d.Blocked {
			out += fmt.Sprintf(" pid %d", p.Pid)
		}
		out += "\r\n"
	}
	return out
}

func cmdSwap(c *Console) string {
	if c.Swap == nil {
		return "swap pool not installed\r\n"
	}
	free, used := 0, 0
	out := fmt.Sprintf("%-6s %-6s %-6s\r\n", "frame", "asid", "vpn")
	for i, e := range c.Swap.Entries {
		if e.ASID == swappool.FreeASID {
			free++
			continue
		}
		used++
		out += fmt.Sprintf("%-6d %-6d %-6d\r\n", i, e.ASID, e.VPN)
	}
	out += fmt.Sprintf("frames: %d used, %d free\r\n", used, free)
	return out
}

func cmdSpurious(c *Console) string {
	return fmt.Sprintf("spurious interrupts: %d\r\n", c.Kernel.SpuriousCount)
}

// Run puts stdin in raw mode and drives a simple read-eval-print loop
// until "quit"/"exit" or a read error (Ctrl-D). Output always uses \r\n,
// required once the terminal is in raw mode.
func Run(c *Console) error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("monitor: MakeRaw: %w", err)
	}
	defer term.Restore(fd, oldState)

	fmt.Fprint(c.Out, "kernelsim> ")
	var line []byte
	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			fmt.Fprint(c.Out, "\r\n")
			return nil
		}
		b := buf[0]
		switch {
		case b == '\r' || b == '\n':
			fmt.Fprint(c.Out, "\r\n")
			quit, output, err := ProcessCommand(string(line), c)
			if err != nil {
				fmt.Fprintf(c.Out, "error: %v\r\n", err)
			} else if output != "" {
				fmt.Fprint(c.Out, output)
			}
			if quit {
				return nil
			}
			line = line[:0]
			fmt.Fprint(c.Out, "kernelsim> ")

		case b == 3: // Ctrl-C
			fmt.Fprint(c.Out, "\r\n")
			return nil

		case b == 127 || b == 8: // Backspace/Delete
			if len(line) > 0 {
				line = line[:len(line)-1]
				fmt.Fprint(c.Out, "\b \b")
			}

		default:
			line = append(line, b)
			fmt.Fprintf(c.Out, "%c", b)
		}
	}
}
