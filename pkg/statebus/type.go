package statebus

import "time"

// Change is broadcast after a state value was written.
type Change struct {
	ID        string    `json:"id"`
	Val       any       `json:"val"`
	Ack       bool      `json:"ack"`
	Timestamp time.Time `json:"ts"`
}

const subscriberBuffer = 64
