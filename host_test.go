package dasipc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/behrlich/das-ipc-host/internal/constants"
	"github.com/behrlich/das-ipc-host/internal/logging"
	"github.com/behrlich/das-ipc-host/internal/runloop"
)

func TestDefaultHostConfig(t *testing.T) {
	cfg := DefaultHostConfig(4242)

	if cfg.MaxMessageSize != constants.DefaultMaxMessageSize {
		t.Errorf("MaxMessageSize = %d, want %d", cfg.MaxMessageSize, constants.DefaultMaxMessageSize)
	}
	if cfg.MaxReentrantDepth != constants.MaxReentrancyDepth {
		t.Errorf("MaxReentrantDepth = %d, want %d", cfg.MaxReentrantDepth, constants.MaxReentrancyDepth)
	}
	if cfg.HostQueueName == "" || cfg.PluginQueueName == "" {
		t.Error("expected non-empty queue names")
	}
	if !cfg.CreateQueues {
		t.Error("expected CreateQueues to default true")
	}
}

func TestLoadHostConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host.yaml")
	yamlBody := "max_message_size: 4096\nheartbeat_interval: 2s\ncreate_queues: false\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadHostConfig(path)
	if err != nil {
		t.Fatalf("LoadHostConfig: %v", err)
	}

	if cfg.MaxMessageSize != 4096 {
		t.Errorf("MaxMessageSize = %d, want 4096", cfg.MaxMessageSize)
	}
	if cfg.HeartbeatInterval != 2*time.Second {
		t.Errorf("HeartbeatInterval = %s, want 2s", cfg.HeartbeatInterval)
	}
	if cfg.CreateQueues {
		t.Error("expected CreateQueues overridden to false")
	}
	// Fields the file didn't mention keep DefaultHostConfig's value.
	if cfg.MaxReentrantDepth != constants.MaxReentrancyDepth {
		t.Errorf("MaxReentrantDepth = %d, want default %d", cfg.MaxReentrantDepth, constants.MaxReentrancyDepth)
	}
}

func TestLoadHostConfigMissingFile(t *testing.T) {
	if _, err := LoadHostConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestOptionsApply(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)
	logger := logging.NewLogger(nil)

	ho := &hostOptions{}
	WithObserver(obs)(ho)
	WithLogger(logger)(ho)
	WithRequestHandler(func(ctx context.Context, req runloop.Frame) ([]byte, int32) {
		return []byte("ok"), 0
	})(ho)

	if ho.observer != Observer(obs) {
		t.Error("WithObserver did not set the observer")
	}
	if ho.logger != logger {
		t.Error("WithLogger did not set the logger")
	}
	if ho.onRequest == nil {
		t.Fatal("WithRequestHandler did not set onRequest")
	}
	body, code := ho.onRequest(context.Background(), runloop.Frame{})
	if string(body) != "ok" || code != 0 {
		t.Errorf("onRequest returned (%q, %d)", body, code)
	}
}
