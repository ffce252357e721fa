package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"

	"github.com/rewired-gh/postureguard/internal/logger"
)

// PortOptions describes the serial connection parameters of the headset bridge.
type PortOptions struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
}

// Normalize validates the options and applies defaults for unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o
	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	return opts, nil
}

// SerialMode converts the options into a go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{BaudRate: opts.BaudRate, DataBits: opts.DataBits}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	} else {
		mode.StopBits = serial.OneStopBit
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// OpenFunc opens a serial device.
type OpenFunc func(path string, mode *serial.Mode) (io.ReadCloser, error)

func openPort(path string, mode *serial.Mode) (io.ReadCloser, error) {
	return serial.Open(path, mode)
}

// SerialSource reads newline-delimited samples from a serial port.
type SerialSource struct {
	path    string
	opts    PortOptions
	radians bool
	open    OpenFunc
}

// NewSerialSource creates a serial source. A nil open uses the system port.
func NewSerialSource(path string, opts PortOptions, radians bool, open OpenFunc) (*SerialSource, error) {
	if path == "" {
		return nil, errors.New("serial port path is required")
	}
	if _, err := opts.Normalize(); err != nil {
		return nil, err
	}
	if open == nil {
		open = openPort
	}
	return &SerialSource{path: path, opts: opts, radians: radians, open: open}, nil
}

func (s *SerialSource) Name() string { return "serial:" + s.path }

// Run reads lines until ctx is cancelled or the port fails.
func (s *SerialSource) Run(ctx context.Context, sink Sink) error {
	mode, err := s.opts.SerialMode()
	if err != nil {
		return err
	}
	port, err := s.open(s.path, mode)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrUnavailable, s.path, err)
	}

	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer func() {
		if stop() {
			_ = port.Close()
		}
	}()

	scan := bufio.NewScanner(port)
	for scan.Scan() {
		line := scan.Bytes()
		if len(line) == 0 {
			continue
		}
		sample, err := Decode(line, s.radians)
		if err != nil {
			logger.Debug("Skipping serial line %q: %v", string(line), err)
			continue
		}
		sink(sample)
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := scan.Err(); err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrUnavailable, s.path, err)
	}
	return fmt.Errorf("%w: %s closed", ErrUnavailable, s.path)
}
