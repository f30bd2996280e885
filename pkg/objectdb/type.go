package objectdb

import "time"

// RawTelegram is one received line as kept in the raw traffic log.
type RawTelegram struct {
	ID         int64     `db:"id" json:"id"`
	ReceivedAt time.Time `db:"received_at" json:"received_at"`
	Protocol   string    `db:"protocol" json:"protocol"`
	Address    string    `db:"address" json:"address"`
	Line       string    `db:"line" json:"line"`
}
