package util

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVirtualSerialMissingBinary(t *testing.T) {
	prev := Logf
	SetLogger(nil)
	t.Cleanup(func() { Logf = prev })

	m := NewVirtualSerial()
	m.Command = "thymionav-no-such-socat"
	dir := t.TempDir()
	err := m.CreatePair(context.Background(), filepath.Join(dir, "a"), filepath.Join(dir, "b"))
	assert.Error(t, err)

	m.Cleanup()
	m.Cleanup()
	assert.Error(t, m.CreatePair(context.Background(), filepath.Join(dir, "c"), filepath.Join(dir, "d")))
}
