package device

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	serial "go.bug.st/serial"
)

// SerialDevice implements Device on top of any byte stream. A single reader
// goroutine splits the stream into lines so timed-out reads never leave a
// pending read behind.
type SerialDevice struct {
	port  io.ReadWriteCloser
	lines chan string
	done  chan struct{}

	wmu       sync.Mutex
	emu       sync.Mutex
	readErr   error
	closeOnce sync.Once
}

// OpenSerial opens a serial port at dev with the given baud rate (8N1).
func OpenSerial(dev string, baud int) (*SerialDevice, error) {
	p, err := serial.Open(dev, &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial %s: %w", dev, err)
	}
	return NewSerialDevice(p), nil
}

// NewSerialDevice wraps an already open stream.
func NewSerialDevice(port io.ReadWriteCloser) *SerialDevice {
	d := &SerialDevice{
		port:  port,
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}
	go d.readLoop()
	return d
}

func (d *SerialDevice) readLoop() {
	defer close(d.lines)
	r := bufio.NewReader(d.port)
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			select {
			case d.lines <- line:
			case <-d.done:
				return
			}
		}
		if err != nil {
			d.emu.Lock()
			d.readErr = err
			d.emu.Unlock()
			return
		}
	}
}

// ReadLine returns the next complete line.
func (d *SerialDevice) ReadLine(timeout time.Duration) (string, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case line, ok := <-d.lines:
		if !ok {
			return "", d.err()
		}
		return line, nil
	case <-d.done:
		return "", errors.New("serial port closed")
	case <-expired:
		return "", ErrTimeout
	}
}

func (d *SerialDevice) err() error {
	d.emu.Lock()
	defer d.emu.Unlock()
	if d.readErr == nil {
		return io.EOF
	}
	return d.readErr
}

// WriteLine writes a single line followed by '\n'. Concurrent writers never
// interleave within a line.
func (d *SerialDevice) WriteLine(line string) error {
	select {
	case <-d.done:
		return errors.New("serial port closed")
	default:
	}
	d.wmu.Lock()
	defer d.wmu.Unlock()
	_, err := d.port.Write(append([]byte(line), '\n'))
	return err
}

// Close closes the underlying port. It is safe to call more than once.
func (d *SerialDevice) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		err = d.port.Close()
	})
	return err
}
