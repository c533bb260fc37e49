package connmgr

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndMarkLive(t *testing.T) {
	m := NewManager(Config{})
	m.Register(1, 7)

	info, ok := m.Get(7)
	require.True(t, ok)
	assert.Equal(t, StateConnecting, info.State)

	m.MarkLive(7, time.Now())
	info, ok = m.Get(7)
	require.True(t, ok)
	assert.Equal(t, StateLive, info.State)
}

func TestTickSendsHeartbeatToLivePeers(t *testing.T) {
	var mu sync.Mutex
	var sent []uint16

	m := NewManager(Config{
		SendHeartbeat: func(pluginID uint16) error {
			mu.Lock()
			sent = append(sent, pluginID)
			mu.Unlock()
			return nil
		},
	})
	m.Register(1, 7)
	m.MarkLive(7, time.Now())

	m.tick(time.Now())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint16{7}, sent)
}

func TestTickMarksDeadAfterTimeoutAndInvokesCleanup(t *testing.T) {
	var cleaned ConnectionInfo
	var cleanedCalled bool

	m := NewManager(Config{
		Timeout: 100 * time.Millisecond,
		OnDead: func(c ConnectionInfo) {
			cleaned = c
			cleanedCalled = true
		},
	})
	m.Register(1, 7)
	m.MarkLive(7, time.Now().Add(-time.Second))

	m.tick(time.Now())

	assert.True(t, cleanedCalled)
	assert.Equal(t, uint16(7), cleaned.PluginID)
	assert.Equal(t, StateDead, cleaned.State)

	_, ok := m.Get(7)
	assert.False(t, ok)
}

func TestStopIsIdempotent(t *testing.T) {
	m := NewManager(Config{})
	m.Stop()
	assert.NotPanics(t, func() { m.Stop() })
}
