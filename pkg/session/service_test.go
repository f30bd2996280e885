package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ammawel/cul_bridge/pkg/telegram"
	"github.com/ammawel/cul_bridge/pkg/transport"
)

// ============================================================
// Test doubles
// ============================================================

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) func() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	ft.timers = append(ft.timers, t)
	return func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

func (ft *fakeTimers) pending() []*fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	var out []*fakeTimer
	for _, t := range ft.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (ft *fakeTimers) all() []*fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]*fakeTimer(nil), ft.timers...)
}

// waitPending polls until n timers are pending; timers are armed from
// the session's own goroutines.
func (ft *fakeTimers) waitPending(t *testing.T, n int) []*fakeTimer {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		p := ft.pending()
		if len(p) == n {
			return p
		}
		if time.Now().After(deadline) {
			t.Fatalf("pending timers = %d, want %d", len(p), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (ft *fakeTimers) fire(t *fakeTimer) {
	ft.mu.Lock()
	if t.stopped || t.fired {
		ft.mu.Unlock()
		return
	}
	t.fired = true
	ft.mu.Unlock()
	t.f()
}

// pipeDialer hands out one end of a net.Pipe per Dial.
type pipeDialer struct {
	kind  transport.Kind
	mu    sync.Mutex
	dials int
	err   error
	peers chan net.Conn
}

func newPipeDialer(kind transport.Kind) *pipeDialer {
	return &pipeDialer{kind: kind, peers: make(chan net.Conn, 4)}
}

func (p *pipeDialer) Kind() transport.Kind { return p.kind }
func (p *pipeDialer) String() string       { return "pipe" }

func (p *pipeDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dials++
	if p.err != nil {
		return nil, p.err
	}
	a, b := net.Pipe()
	p.peers <- b
	return a, nil
}

func (p *pipeDialer) dialCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dials
}

// stick plays the CUL side of a pipe and records received commands.
type stick struct {
	conn     net.Conn
	commands chan string
}

func newStick(t *testing.T, d *pipeDialer) *stick {
	t.Helper()
	select {
	case c := <-d.peers:
		st := &stick{conn: c, commands: make(chan string, 16)}
		go func() {
			r := bufio.NewReader(c)
			for {
				line, err := r.ReadString('\n')
				if err != nil {
					return
				}
				st.commands <- line
			}
		}()
		t.Cleanup(func() { c.Close() })
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("no dial happened")
		return nil
	}
}

func (st *stick) expectCommand(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-st.commands:
		if got != want+LineTerminator {
			t.Fatalf("stick received %q, want %q", got, want+LineTerminator)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for command %q", want)
	}
}

func (st *stick) send(t *testing.T, data string) {
	t.Helper()
	if _, err := st.conn.Write([]byte(data)); err != nil {
		t.Fatalf("stick write: %v", err)
	}
}

func expectEvent(t *testing.T, s *Session, want EventType) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		if ev.Type != want {
			t.Fatalf("event = %s (err=%v line=%q), want %s", ev.Type, ev.Err, ev.Line, want)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s event", want)
		return Event{}
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SettleDelay = 0
	cfg.ProbeDelay = 0
	cfg.ReconnectDelay = 10 * time.Second
	return cfg
}

func newTestSession(d *pipeDialer, cfg Config) (*Session, *fakeTimers) {
	s := New(d, cfg)
	timers := &fakeTimers{}
	s.afterFunc = timers.AfterFunc
	return s, timers
}

// ============================================================
// Handshake and telegram flow
// ============================================================

func TestSession_StreamHandshakeAndTelegram(t *testing.T) {
	d := newPipeDialer(transport.KindStream)
	s, _ := newTestSession(d, testConfig())
	defer s.Close()

	s.Start()
	st := newStick(t, d)

	expectEvent(t, s, EventOpen)
	st.expectCommand(t, "V")
	st.expectCommand(t, "X21")
	expectEvent(t, s, EventReady)
	if !s.Ready() {
		t.Fatalf("state = %s, want ready", s.State())
	}

	st.send(t, "F1A2B3C4")
	st.send(t, "0101\r\n")
	ev := expectEvent(t, s, EventTelegram)
	if ev.Line != "F1A2B3C40101" {
		t.Errorf("line = %q", ev.Line)
	}
	if ev.Message.Protocol != telegram.ProtocolFS20 || ev.Message.Address != "1A2B3C" {
		t.Errorf("message = %+v", ev.Message)
	}
	if rssi, ok := ev.Message.RSSI(); !ok || rssi != -73.5 {
		t.Errorf("rssi = %v, %v", rssi, ok)
	}

	st.send(t, "LOVF\r")
	ev = expectEvent(t, s, EventTelegram)
	if ev.Message.Known() || ev.Line != "LOVF" {
		t.Errorf("unknown telegram not surfaced: %+v", ev)
	}
}

func TestSession_ProbeDelayAndReply(t *testing.T) {
	d := newPipeDialer(transport.KindStream)
	cfg := testConfig()
	cfg.ProbeDelay = 200 * time.Millisecond
	s, timers := newTestSession(d, cfg)
	defer s.Close()

	s.Start()
	st := newStick(t, d)
	expectEvent(t, s, EventOpen)
	st.expectCommand(t, "V")

	// The version reply arrives before receive mode is enabled.
	st.send(t, "V 1.67 CUL868\r\n")
	ev := expectEvent(t, s, EventReply)
	if ev.Line != "V 1.67 CUL868" {
		t.Errorf("reply = %q", ev.Line)
	}
	if s.State() != StateInitializing {
		t.Fatalf("state = %s, want initializing", s.State())
	}

	pending := timers.waitPending(t, 1)
	if pending[0].d != 200*time.Millisecond {
		t.Fatalf("probe timer delay = %v", pending[0].d)
	}
	timers.fire(pending[0])
	st.expectCommand(t, "X21")
	expectEvent(t, s, EventReady)
}

func TestSession_SerialWaitsForSettleDelay(t *testing.T) {
	d := newPipeDialer(transport.KindSerial)
	cfg := testConfig()
	cfg.SettleDelay = 500 * time.Millisecond
	cfg.VersionProbe = false
	cfg.InitCmd = "X01"
	s, timers := newTestSession(d, cfg)
	defer s.Close()

	s.Start()
	st := newStick(t, d)
	expectEvent(t, s, EventOpen)

	select {
	case cmd := <-st.commands:
		t.Fatalf("command %q sent before settle delay", cmd)
	case <-time.After(50 * time.Millisecond):
	}

	pending := timers.waitPending(t, 1)
	if pending[0].d != 500*time.Millisecond {
		t.Fatalf("settle timer delay = %v", pending[0].d)
	}
	timers.fire(pending[0])
	st.expectCommand(t, "X01")
	expectEvent(t, s, EventReady)
}

// ============================================================
// Commands
// ============================================================

func TestSession_WriteAndCmd(t *testing.T) {
	d := newPipeDialer(transport.KindStream)
	cfg := testConfig()
	cfg.VersionProbe = false
	s, _ := newTestSession(d, cfg)
	defer s.Close()

	s.Start()
	st := newStick(t, d)
	expectEvent(t, s, EventOpen)
	st.expectCommand(t, "X21")
	expectEvent(t, s, EventReady)

	s.Cmd("FS20", "1A2B", "3C", "11")
	st.expectCommand(t, "F1A2B3C11")

	s.Cmd("FHT", "1234", "00", "2A")
	st.expectCommand(t, "FHT1234002A")

	s.Write("X67")
	st.expectCommand(t, "X67")
}

func TestSession_WriteWhileDisconnectedIsDropped(t *testing.T) {
	d := newPipeDialer(transport.KindStream)
	s, _ := newTestSession(d, testConfig())
	defer s.Close()

	// Not started: nothing to write to, must not panic or block.
	s.Write("X21")
	s.Cmd("FS20", "1A2B", "3C", "11")
	if d.dialCount() != 0 {
		t.Error("Write must not dial")
	}
}

// ============================================================
// Failures and reconnect
// ============================================================

func TestSession_DialErrorSchedulesReconnect(t *testing.T) {
	d := newPipeDialer(transport.KindSerial)
	d.err = errors.New("no such device")
	s, timers := newTestSession(d, testConfig())
	defer s.Close()

	s.Start()
	ev := expectEvent(t, s, EventError)
	if ev.Err == nil || !strings.Contains(ev.Err.Error(), "no such device") {
		t.Errorf("err = %v", ev.Err)
	}
	if s.State() != StateErroring {
		t.Errorf("state = %s, want erroring", s.State())
	}

	pending := timers.waitPending(t, 1)
	if pending[0].d != 10*time.Second {
		t.Fatalf("reconnect delay = %v", pending[0].d)
	}
	if !s.PendingReconnect() {
		t.Fatal("PendingReconnect = false")
	}

	d.mu.Lock()
	d.err = nil
	d.mu.Unlock()
	// The handshake writes block until the stick reads them.
	go timers.fire(pending[0])
	st := newStick(t, d)
	expectEvent(t, s, EventOpen)
	st.expectCommand(t, "V")
	st.expectCommand(t, "X21")
	expectEvent(t, s, EventReady)
	if d.dialCount() != 2 {
		t.Errorf("dials = %d, want 2", d.dialCount())
	}
}

func TestSession_ScheduleReconnectIsIdempotent(t *testing.T) {
	d := newPipeDialer(transport.KindStream)
	d.err = errors.New("refused")
	cfg := testConfig()
	cfg.AutoReconnect = false
	s, timers := newTestSession(d, cfg)
	defer s.Close()

	s.ScheduleReconnect()
	s.ScheduleReconnect()

	pending := timers.pending()
	if len(pending) != 1 {
		t.Fatalf("pending timers = %d, want 1", len(pending))
	}
	if len(timers.timers) != 2 || !timers.timers[0].stopped {
		t.Error("second schedule must cancel the first timer")
	}

	timers.fire(pending[0])
	expectEvent(t, s, EventError)
	if d.dialCount() != 1 {
		t.Errorf("dials = %d, want exactly 1", d.dialCount())
	}
	if s.PendingReconnect() {
		t.Error("auto reconnect disabled: no new timer expected")
	}
}

func TestSession_ReadErrorReconnects(t *testing.T) {
	d := newPipeDialer(transport.KindStream)
	s, timers := newTestSession(d, testConfig())
	defer s.Close()

	s.Start()
	st := newStick(t, d)
	expectEvent(t, s, EventOpen)
	st.expectCommand(t, "V")
	st.expectCommand(t, "X21")
	expectEvent(t, s, EventReady)

	st.conn.Close()
	expectEvent(t, s, EventError)
	if s.Ready() {
		t.Error("session must leave ready after a transport error")
	}
	timers.waitPending(t, 1)
	if !s.PendingReconnect() {
		t.Error("PendingReconnect = false after transport error")
	}
}

func TestSession_CloseCancelsTimers(t *testing.T) {
	d := newPipeDialer(transport.KindSerial)
	cfg := testConfig()
	cfg.SettleDelay = time.Second
	s, timers := newTestSession(d, cfg)

	s.Start()
	newStick(t, d)
	expectEvent(t, s, EventOpen)
	s.ScheduleReconnect()

	s.Close()
	if n := len(timers.pending()); n != 0 {
		t.Errorf("pending timers after Close = %d, want 0", n)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}
	if s.PendingReconnect() {
		t.Error("reconnect still pending after Close")
	}

	// Late timer callbacks and repeated Close are harmless.
	for _, tm := range timers.all() {
		tm.f()
	}
	s.Close()
	s.ScheduleReconnect()
	if s.PendingReconnect() {
		t.Error("ScheduleReconnect after Close must be ignored")
	}
	if d.dialCount() != 1 {
		t.Errorf("dials = %d, want 1", d.dialCount())
	}
}
