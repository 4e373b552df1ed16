/*
 * kernelsim - Component H transport, telnet-backed terminal lines.
 *
 * Grounded on the teacher's telnet/telnet.go (the IAC/WILL/WONT/DO/DONT
 * line-state machine) and telnet/listener.go (one net.Listener goroutine
 * per configured port, a per-connection handler goroutine); trimmed of
 * the teacher's 3270-specific terminal-type subnegotiation and multi-port
 * group/model matching, since this kernel's terminal sub-devices are
 * plain ASCII lines addressed directly by device number, not discovered
 * by terminal model at connect time.
 *
 * Configuration registers a dev->port mapping during kconf.LoadFile, the
 * same split the teacher's telnet.RegisterTerminal/telnet.Start use: a
 * device announces itself during config parsing, and the actual
 * listeners are brought up once, later, by Start.
 */

package termline

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/mipskernel/kernel/config/kconf"
	"github.com/mipskernel/kernel/internal/bus"
	"github.com/mipskernel/kernel/nucleus"
)

// MaxLines is the width of the terminal line's device bank, spec.md 6.
const MaxLines = 8

const (
	iac  byte = 255
	will byte = 251
	wont byte = 252
	do   byte = 253
	dont byte = 254
	sb   byte = 250
	se   byte = 240

	optBinary byte = 0
	optEcho   byte = 1
	optSGA    byte = 3
	optLine   byte = 34
)

// initNegotiation is sent to every newly connected client: refuse
// line-mode, offer to echo and suppress go-ahead ourselves, and run
// binary so the high bit of a character is never stolen by telnet.
var initNegotiation = []byte{
	iac, wont, optLine,
	iac, will, optEcho,
	iac, will, optSGA,
	iac, will, optBinary,
}

const (
	stateData = iota
	stateIAC
	stateWill
	stateWont
	stateDo
	stateDont
	stateSB
	stateSBData
	stateSBIAC
)

var configMu sync.Mutex
var configuredPorts = map[int]string{}

func init() {
	kconf.RegisterModel("TERM", register)
}

// register handles the "TERM <dev> <port>" directive: dev is the
// terminal sub-device number (0..MaxLines-1), port the TCP port Start
// will later listen on for that device.
func register(dev uint16, _ string, options []kconf.Option) error {
	if int(dev) >= MaxLines {
		return fmt.Errorf("TERM device %#x out of range 0..%d", dev, MaxLines-1)
	}
	if len(options) != 1 {
		return fmt.Errorf("TERM requires exactly one port, dev %#x", dev)
	}
	opt := options[0]
	if opt.EqualOpt != "" || len(opt.Value) != 0 {
		return fmt.Errorf("TERM port takes no sub-options: %s", opt.Name)
	}
	if _, err := strconv.ParseUint(opt.Name, 10, 32); err != nil {
		return fmt.Errorf("TERM port must be numeric: %s", opt.Name)
	}

	configMu.Lock()
	defer configMu.Unlock()
	if _, exists := configuredPorts[int(dev)]; exists {
		return fmt.Errorf("TERM device %#x already configured", dev)
	}
	configuredPorts[int(dev)] = opt.Name
	return nil
}

// Server owns one Line per configured terminal sub-device.
type Server struct {
	mu     sync.Mutex
	lines  map[int]*Line
	events chan<- bus.Packet
}

// Start brings up a listener for every device TERM directives configured,
// posting connect/disconnect/receive events to events as they occur. The
// caller is the single consumer of events, normally the nucleus driver
// loop (spec.md 4 core loop).
func Start(events chan<- bus.Packet) (*Server, error) {
	configMu.Lock()
	snapshot := make(map[int]string, len(configuredPorts))
	for dev, port := range configuredPorts {
		snapshot[dev] = port
	}
	configMu.Unlock()

	s := &Server{lines: make(map[int]*Line), events: events}
	for dev, port := range snapshot {
		l, err := listen(dev, port, events)
		if err != nil {
			s.Stop()
			return nil, fmt.Errorf("termline: dev %d port %s: %w", dev, port, err)
		}
		s.lines[dev] = l
	}
	return s, nil
}

// Stop closes every listener and any connected client.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lines {
		l.close()
	}
}

// Addr reports the listening address for dev, for tests and startup logs.
func (s *Server) Addr(dev int) (net.Addr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lines[dev]
	if !ok {
		return nil, false
	}
	return l.listener.Addr(), true
}

// Transmit writes one character out to dev's connected client. Called
// from the terminal transmit half of support/device's DMA path.
func (s *Server) Transmit(dev int, ch byte) error {
	s.mu.Lock()
	l, ok := s.lines[dev]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("termline: no line configured for device %d", dev)
	}
	return l.transmit(ch)
}

// Line is one terminal sub-device's network transport: a listener plus,
// at most, one connected client at a time, matching the real device's
// single-session nature.
type Line struct {
	dev      int
	listener net.Listener
	events   chan<- bus.Packet

	mu   sync.Mutex
	conn net.Conn
}

func listen(dev int, port string, events chan<- bus.Packet) (*Line, error) {
	ln, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, err
	}
	l := &Line{dev: dev, listener: ln, events: events}
	slog.Info("terminal line listening", "dev", dev, "addr", ln.Addr().String())
	go l.accept()
	return l, nil
}

func (l *Line) close() {
	l.listener.Close()
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (l *Line) accept() {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			return
		}

		l.mu.Lock()
		busy := l.conn != nil
		if !busy {
			l.conn = conn
		}
		l.mu.Unlock()

		if busy {
			fmt.Fprintf(conn, "line %d busy\r\n", l.dev)
			conn.Close()
			continue
		}

		go l.serve(conn)
	}
}

func (l *Line) transmit(ch byte) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("termline: device %d has no connected client", l.dev)
	}
	_, err := conn.Write([]byte{ch})
	return err
}

// serve runs the negotiation state machine for one connection until it
// disconnects or errors, forwarding data bytes to events as TermRecv and
// silently acknowledging (or refusing) option negotiation the way
// initNegotiation already claimed.
func (l *Line) serve(conn net.Conn) {
	defer func() {
		l.mu.Lock()
		if l.conn == conn {
			l.conn = nil
		}
		l.mu.Unlock()
		conn.Close()
		l.events <- bus.Packet{Msg: bus.TermDisconnect, Line: nucleus.LineTerminal, Device: l.dev}
	}()

	if _, err := conn.Write(initNegotiation); err != nil {
		return
	}
	l.events <- bus.Packet{Msg: bus.TermConnect, Line: nucleus.LineTerminal, Device: l.dev, Conn: conn}

	state := stateData
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		for i := 0; i < n; i++ {
			state = l.step(state, buf[i])
		}
	}
}

// step advances the telnet negotiation state machine by one byte,
// emitting a TermRecv event for ordinary data (including a literal 0xff
// sent as IAC IAC) and silently consuming everything else: WILL/WONT/DO
// requests this kernel never originates options for are simply
// acknowledged by doing nothing, and subnegotiation payloads (terminal
// type, NAWS, environment) are discarded entire, since none of them
// changes how a plain ASCII line behaves.
func (l *Line) step(state int, b byte) int {
	switch state {
	case stateData:
		if b == iac {
			return stateIAC
		}
		l.events <- bus.Packet{Msg: bus.TermRecv, Line: nucleus.LineTerminal, Device: l.dev, Data: b}
		return stateData

	case stateIAC:
		switch b {
		case iac:
			l.events <- bus.Packet{Msg: bus.TermRecv, Line: nucleus.LineTerminal, Device: l.dev, Data: iac}
			return stateData
		case will:
			return stateWill
		case wont:
			return stateWont
		case do:
			return stateDo
		case dont:
			return stateDont
		case sb:
			return stateSB
		default:
			return stateData
		}

	case stateWill, stateWont, stateDo, stateDont:
		return stateData

	case stateSB:
		return stateSBData

	case stateSBData:
		if b == iac {
			return stateSBIAC
		}
		return stateSBData

	case stateSBIAC:
		if b == se {
			return stateData
		}
		if b == iac {
			return stateSBIAC
		}
		return stateSBData
	}
	return stateData
}
