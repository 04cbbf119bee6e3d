package device

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"ThymioNav/internal/model"
	"ThymioNav/internal/parser"
	"ThymioNav/internal/slot"
)

// Camera receives vision detections as UDP datagrams, one detection per line.
type Camera struct {
	Addr       string
	ReadBuffer int
	Parser     parser.Parser

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewCamera returns a receiver for detections sent to addr.
func NewCamera(addr string, readBuffer int, p parser.Parser) *Camera {
	return &Camera{Addr: addr, ReadBuffer: readBuffer, Parser: p}
}

// Listen binds the UDP socket. Run calls it when needed.
func (c *Camera) Listen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	addr, err := net.ResolveUDPAddr("udp", c.Addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	if c.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(c.ReadBuffer); err != nil {
			log.Printf("[camera] failed to set UDP receive buffer to %d bytes: %v", c.ReadBuffer, err)
		}
	}
	c.conn = conn
	return nil
}

// LocalAddr returns the bound address, or nil before Listen.
func (c *Camera) LocalAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// Run reads detections until ctx is done and publishes them with
// PublishDetection.
func (c *Camera) Run(ctx context.Context, pose *slot.Slot[model.Pose], goal *slot.Slot[model.Point]) error {
	if err := c.Listen(); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		_ = conn.Close()
		c.conn = nil
		c.mu.Unlock()
	}()

	log.Printf("[camera] listening for detections on %s", conn.LocalAddr())
	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("read detection: %w", err)
		}
		for _, line := range strings.Split(string(buf[:n]), "\n") {
			if line = strings.TrimSpace(line); line == "" {
				continue
			}
			d, err := c.Parser.DecodeDetection(line)
			if err != nil {
				log.Printf("[camera] skip detection %q: %v", line, err)
				continue
			}
			d.Time = time.Now()
			PublishDetection(d, pose, goal)
		}
	}
}

// PublishDetection stores the found parts of d. A robot or goal that was not
// found leaves the previously published value in place.
func PublishDetection(d model.Detection, pose *slot.Slot[model.Pose], goal *slot.Slot[model.Point]) {
	if d.RobotFound && pose != nil {
		pose.Publish(d.Robot)
	}
	if d.GoalFound && goal != nil {
		goal.Publish(d.Goal)
	}
}
