package util

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// VirtualSerial manages socat processes that link two pseudo-terminals, used to
// run the navigator against the simulated robot over a real serial stack.
type VirtualSerial struct {
	mu     sync.Mutex
	cmds   []*exec.Cmd
	links  []string
	closed bool

	// Command is the socat binary; tests replace it.
	Command string
}

// NewVirtualSerial initializes an empty manager.
func NewVirtualSerial() *VirtualSerial {
	return &VirtualSerial{Command: "socat"}
}

// CreatePair starts socat linking the pty symlinks a and b and waits until both
// exist or ctx is done.
func (m *VirtualSerial) CreatePair(ctx context.Context, a, b string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("virtual serial manager closed")
	}
	cmd := exec.Command(m.Command,
		fmt.Sprintf("pty,raw,echo=0,link=%s", a),
		fmt.Sprintf("pty,raw,echo=0,link=%s", b),
	)
	if err := cmd.Start(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("start %s: %w", m.Command, err)
	}
	m.cmds = append(m.cmds, cmd)
	m.links = append(m.links, a, b)
	m.mu.Unlock()

	Info("[virt-serial] started %s (pid=%d): %s <-> %s", m.Command, cmd.Process.Pid, a, b)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if exists(a) && exists(b) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s and %s: %w", a, b, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Cleanup stops all socat processes and removes the created links. It is safe
// to call more than once.
func (m *VirtualSerial) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true

	for _, cmd := range m.cmds {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
		}
	}
	for _, path := range m.links {
		if _, err := os.Lstat(path); err == nil {
			_ = os.Remove(path)
		}
	}
	Info("[virt-serial] cleanup complete (%d pairs)", len(m.links)/2)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
