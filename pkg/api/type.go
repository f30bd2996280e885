package api

import (
	"context"
	"time"

	"github.com/ammawel/cul_bridge/pkg/bridge"
	"github.com/ammawel/cul_bridge/pkg/objectdb"
)

// Bridge is the part of the bridge the HTTP surface uses.
type Bridge interface {
	Status() bridge.Status
	Latest() (string, time.Time)
	Command(c bridge.Command) error
	Raw(command string) error
	SetState(id string, val any) error
}

// TelegramSource lists the raw telegram log, newest first.
type TelegramSource interface {
	RecentTelegrams(ctx context.Context, limit int) ([]objectdb.RawTelegram, error)
}

type rawRequest struct {
	Command string `json:"command"`
}

type stateRequest struct {
	Val any `json:"val"`
}

type latestResponse struct {
	Raw        string    `json:"raw"`
	ReceivedAt time.Time `json:"received_at"`
	Connected  bool      `json:"connected"`
}
