package session

import (
	"time"

	"github.com/ammawel/cul_bridge/pkg/telegram"
)

// State is the lifecycle position of a session.
type State int

const (
	StateDisconnected State = iota
	StateOpening
	StateInitializing
	StateReady
	StateErroring
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateErroring:
		return "erroring"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

type EventType int

const (
	// EventOpen: the transport is open, the handshake is about to run.
	EventOpen EventType = iota
	// EventReady: receive mode is enabled, telegrams are decoded.
	EventReady
	// EventTelegram carries one decoded telegram and its raw line.
	EventTelegram
	// EventReply carries a line received before the session was ready.
	EventReply
	// EventError carries a transport failure.
	EventError
	// EventClosed: the session was closed by its owner.
	EventClosed
)

func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventReady:
		return "ready"
	case EventTelegram:
		return "telegram"
	case EventReply:
		return "reply"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is delivered in order on the session's event channel.
type Event struct {
	Type    EventType
	Time    time.Time
	Line    string
	Message telegram.Message
	Err     error
}

// Config holds the handshake and reconnect parameters.
type Config struct {
	// InitCmd enables reception, X21 on a stock culfw.
	InitCmd string
	// VersionProbe sends "V" before InitCmd.
	VersionProbe bool
	// SettleDelay is waited after a serial port opens before the handshake.
	SettleDelay time.Duration
	// ProbeDelay separates the version probe from InitCmd.
	ProbeDelay time.Duration
	// ReconnectDelay is waited after a failure before the next attempt.
	ReconnectDelay time.Duration
	AutoReconnect  bool
	// RSSI decodes the trailing signal strength byte of each telegram.
	RSSI bool
}

func DefaultConfig() Config {
	return Config{
		InitCmd:        "X21",
		VersionProbe:   true,
		SettleDelay:    500 * time.Millisecond,
		ProbeDelay:     200 * time.Millisecond,
		ReconnectDelay: 30 * time.Second,
		AutoReconnect:  true,
		RSSI:           true,
	}
}

// LineTerminator is appended to every command written to the stick.
const LineTerminator = "\r\n"
