package transport

import (
	"context"
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
	bugst "go.bug.st/serial"
)

// SerialDialer opens a CUL attached to a serial device node.
type SerialDialer struct {
	Port     string
	Baudrate uint
}

func NewSerialDialer(port string, baudrate uint) *SerialDialer {
	return &SerialDialer{Port: port, Baudrate: baudrate}
}

func (s *SerialDialer) Kind() Kind { return KindSerial }

func (s *SerialDialer) String() string {
	return fmt.Sprintf("serial %s @ %d baud", s.Port, s.Baudrate)
}

func (s *SerialDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	options := serial.OpenOptions{
		PortName:        s.Port,
		BaudRate:        s.Baudrate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", s.Port, err)
	}
	return port, nil
}

// ListPorts returns the serial device nodes present on this host.
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
