// Package transport opens the physical link to the CUL stick.
package transport

import (
	"context"
	"io"
)

// Kind selects how the session recognises an open link.
type Kind string

const (
	// KindSerial links report "open" once the device node is configured.
	KindSerial Kind = "serial"
	// KindStream links are writable as soon as the socket connects.
	KindStream Kind = "tcp"
)

// Dialer opens one connection per call.
type Dialer interface {
	Kind() Kind
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}
