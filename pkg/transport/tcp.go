package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

const defaultDialTimeout = 5 * time.Second

// TCPDialer reaches a CUL behind a serial-to-network bridge (ser2net, CUNO).
type TCPDialer struct {
	Address string
	Timeout time.Duration
}

func NewTCPDialer(address string) *TCPDialer {
	return &TCPDialer{Address: address, Timeout: defaultDialTimeout}
}

func (t *TCPDialer) Kind() Kind { return KindStream }

func (t *TCPDialer) String() string {
	return "tcp " + t.Address
}

func (t *TCPDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	d := net.Dialer{Timeout: t.Timeout}
	conn, err := d.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", t.Address, err)
	}
	return conn, nil
}
