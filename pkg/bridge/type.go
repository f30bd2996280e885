package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/ammawel/cul_bridge/pkg/objectdb"
)

var (
	// ErrNotReady is returned by the command boundary while the session
	// is not ready. The command itself is still handed to the session.
	ErrNotReady       = errors.New("cul not ready")
	ErrInvalidStateID = errors.New("not a device state id")
)

// TelegramLog persists every received line.
type TelegramLog interface {
	InsertTelegram(ctx context.Context, t *objectdb.RawTelegram) error
}

// Status is a snapshot for the operator surface.
type Status struct {
	State      string    `json:"state"`
	Connected  bool      `json:"connected"`
	Version    string    `json:"version,omitempty"`
	LatestRaw  string    `json:"latest_raw,omitempty"`
	LatestAt   time.Time `json:"latest_at,omitempty"`
	Telegrams  int       `json:"telegrams"`
	Unknown    int       `json:"unknown"`
	Pending    int       `json:"pending"`
	StoreFails int       `json:"store_failures"`
}

// Command is a structured command addressed to a device.
type Command struct {
	Protocol  string `json:"protocol"`
	Housecode string `json:"housecode"`
	Address   string `json:"address"`
	Value     string `json:"value"`
}
