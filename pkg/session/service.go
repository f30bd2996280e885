// Package session owns one connection to a CUL stick: it opens the
// transport, runs the receive-enable handshake, frames and decodes
// inbound telegrams, and reconnects after failures.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ammawel/cul_bridge/pkg/telegram"
	"github.com/ammawel/cul_bridge/pkg/transport"
)

const (
	eventBufferSize = 256
	readBufferSize  = 256
)

// afterFunc schedules f and returns a function that cancels it.
type afterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Session is safe for concurrent use. Events must be drained by exactly
// one consumer.
type Session struct {
	dialer    transport.Dialer
	cfg       Config
	decoder   *telegram.Decoder
	log       *log.Entry
	afterFunc afterFunc

	events chan Event
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu            sync.Mutex
	state         State
	conn          io.ReadWriteCloser
	gen           uint64
	started       bool
	closed        bool
	reconnectStop func() bool
	initStop      func() bool
}

func New(dialer transport.Dialer, cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		dialer:    dialer,
		cfg:       cfg,
		decoder:   telegram.NewDecoder(cfg.RSSI),
		log:       log.WithField("component", "session"),
		afterFunc: realAfterFunc,
		events:    make(chan Event, eventBufferSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Decoder exposes the protocol table so callers can register parsers
// before Start.
func (s *Session) Decoder() *telegram.Decoder {
	return s.decoder
}

func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Ready() bool {
	return s.State() == StateReady
}

// Start issues the first connection attempt in the background.
func (s *Session) Start() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.connect()
}

// Write sends command followed by the line terminator. Commands are
// dropped while the transport is not open; write failures are reported
// on the event channel and never returned.
func (s *Session) Write(command string) {
	s.write(0, command)
}

// Cmd sends a structured command. FS20 commands are tagged "F"; other
// protocols concatenate their four fields unchanged.
func (s *Session) Cmd(protocol, housecode, address, value string) {
	if protocol == string(telegram.ProtocolFS20) {
		s.Write("F" + housecode + address + value)
		return
	}
	s.Write(protocol + housecode + address + value)
}

// ScheduleReconnect replaces any pending attempt with a new one after
// the configured delay.
func (s *Session) ScheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	stopTimer(&s.reconnectStop)
	s.reconnectStop = s.afterFunc(s.cfg.ReconnectDelay, s.connect)
	s.log.Infof("Reconnecting in %v", s.cfg.ReconnectDelay)
}

// PendingReconnect reports whether a reconnect attempt is scheduled.
func (s *Session) PendingReconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectStop != nil
}

// Close cancels pending timers and releases the transport. Errors from
// an already closed transport are ignored. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stopTimer(&s.reconnectStop)
	stopTimer(&s.initStop)
	conn := s.conn
	s.conn = nil
	s.state = StateClosed
	s.cancel()
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			s.log.Debugf("Close: %v", err)
		}
	}
	s.log.Info("Session closed")

	select {
	case s.events <- Event{Type: EventClosed, Time: time.Now()}:
	default:
	}
	close(s.done)
}

func (s *Session) connect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	stopTimer(&s.reconnectStop)
	stopTimer(&s.initStop)
	s.gen++
	gen := s.gen
	old := s.conn
	s.conn = nil
	s.state = StateOpening
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}

	s.log.Infof("Connecting to CUL on %s", s.dialer)
	conn, err := s.dialer.Dial(s.ctx)

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		s.state = StateErroring
		s.mu.Unlock()
		s.log.Errorf("Cannot open %s: %v", s.dialer, err)
		s.emit(Event{Type: EventError, Err: err})
		if s.cfg.AutoReconnect {
			s.ScheduleReconnect()
		}
		return
	}
	s.conn = conn
	s.state = StateInitializing
	s.mu.Unlock()

	s.emit(Event{Type: EventOpen})
	go s.readLoop(gen, conn)

	// A freshly opened serial adapter (CH340 and friends) needs time to
	// settle before it accepts commands.
	if s.dialer.Kind() == transport.KindSerial && s.cfg.SettleDelay > 0 {
		s.schedule(gen, s.cfg.SettleDelay, func() { s.handshake(gen) })
		return
	}
	s.handshake(gen)
}

func (s *Session) handshake(gen uint64) {
	if !s.cfg.VersionProbe {
		s.enableReceive(gen)
		return
	}
	if !s.write(gen, "V") {
		return
	}
	if s.cfg.ProbeDelay > 0 {
		s.schedule(gen, s.cfg.ProbeDelay, func() { s.enableReceive(gen) })
		return
	}
	s.enableReceive(gen)
}

func (s *Session) enableReceive(gen uint64) {
	if s.cfg.InitCmd != "" && !s.write(gen, s.cfg.InitCmd) {
		return
	}

	s.mu.Lock()
	if gen != s.gen || s.state != StateInitializing {
		s.mu.Unlock()
		return
	}
	s.initStop = nil
	s.state = StateReady
	s.mu.Unlock()

	s.log.Info("CUL connected and initialized")
	s.emit(Event{Type: EventReady})
}

// schedule runs f after d unless the connection generation changed.
func (s *Session) schedule(gen uint64, d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	stopTimer(&s.initStop)
	s.initStop = s.afterFunc(d, f)
}

// write returns false when the command was not written. gen 0 targets
// whichever connection is current.
func (s *Session) write(gen uint64, command string) bool {
	s.mu.Lock()
	conn, cur, state := s.conn, s.gen, s.state
	s.mu.Unlock()

	if (gen != 0 && gen != cur) || conn == nil || (state != StateInitializing && state != StateReady) {
		s.log.Warnf("Transport not open, dropping command %q", command)
		return false
	}

	s.writeMu.Lock()
	_, err := conn.Write([]byte(command + LineTerminator))
	s.writeMu.Unlock()
	if err != nil {
		s.fail(cur, fmt.Errorf("write error: %w", err))
		return false
	}
	s.log.Debugf("TX: %s", command)
	return true
}

func (s *Session) readLoop(gen uint64, conn io.Reader) {
	framer := telegram.NewFramer()
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, line := range framer.Feed(buf[:n]) {
				s.dispatch(gen, line)
			}
		}
		if err != nil {
			s.fail(gen, err)
			return
		}
	}
}

func (s *Session) dispatch(gen uint64, line string) {
	s.mu.Lock()
	current, state := gen == s.gen, s.state
	s.mu.Unlock()
	if !current {
		return
	}

	if state != StateReady {
		s.log.Debugf("RX (not ready): %s", line)
		s.emit(Event{Type: EventReply, Line: line})
		return
	}
	msg := s.decoder.Decode(line)
	s.log.Debugf("RX: %s parsed: %s %s", line, msg.Protocol, msg.Address)
	s.emit(Event{Type: EventTelegram, Line: line, Message: msg})
}

// fail tears down the connection of generation gen after a transport
// error and schedules a reconnect unless the session was closed.
func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.conn == nil {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	stopTimer(&s.initStop)
	s.state = StateErroring
	s.mu.Unlock()

	conn.Close()
	s.log.Errorf("CUL Error: %v", err)
	s.emit(Event{Type: EventError, Err: err})
	if s.cfg.AutoReconnect {
		s.ScheduleReconnect()
	}
}

func (s *Session) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func stopTimer(stop *func() bool) {
	if *stop != nil {
		(*stop)()
		*stop = nil
	}
}
