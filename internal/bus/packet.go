/*
 * kernelsim - interrupt/event bus between hardware-simulation goroutines
 * and the single nucleus dispatch loop.
 *
 * The retrieved S/370 teacher's core.go, timer.go and telnet.go all send
 * a small Packet value over a "master" channel into one consuming loop;
 * the package that defined Packet was not present in the retrieved
 * snapshot, so this is a reconstruction in the same shape and role.
 */

package bus

import "net"

// Msg identifies what kind of event a Packet carries.
type Msg int

const (
	// PLTTick: the processor local timer's quantum has expired.
	PLTTick Msg = iota
	// ClockTick: the interval timer (pseudo-clock) has fired (every 100ms).
	ClockTick
	// DeviceReady: a device on (Line, Device) has completed, Status holds
	// the latched device status word.
	DeviceReady
	// TermConnect / TermDisconnect / TermRecv: a telnet-backed terminal's
	// network transport changed state.
	TermConnect
	TermDisconnect
	TermRecv
)

// Packet is the single event envelope posted by every hardware-simulation
// goroutine (PLT, pseudo-clock, per-device completion timers, telnet
// listeners) to the nucleus dispatch loop's channel.
type Packet struct {
	Msg    Msg
	Line   int    // interrupt line number, 3..7
	Device int    // device index within the line, 0..7
	Term   bool   // for DeviceReady on the terminal line: true selects the transmitter half
	Status uint8  // latched device status for DeviceReady
	Data   byte   // received character for TermRecv
	Conn   net.Conn
}
