package daemon

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/relforge/internal/events"
)

func TestWatcherReloadsDefinition(t *testing.T) {
	d, _ := newTestDaemon(t, false)
	require.False(t, d.Config().Trigger.AllowManual)

	reloaded, unsubscribe := events.Subscribe[events.ConfigReloaded](d.bus, 1)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.watcher.debounceTime = 50 * time.Millisecond
	require.NoError(t, d.watcher.Start(ctx))
	defer d.watcher.Stop()

	raw, err := os.ReadFile(d.watcher.configPath)
	require.NoError(t, err)
	updated := strings.Replace(string(raw), "allow_manual: false", "allow_manual: true", 1)
	require.NotEqual(t, string(raw), updated)
	require.NoError(t, os.WriteFile(d.watcher.configPath, []byte(updated), 0o644))

	select {
	case evt := <-reloaded:
		assert.Equal(t, d.watcher.configPath, evt.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload event")
	}

	assert.True(t, d.Config().Trigger.AllowManual)
}

func TestWatcherKeepsPreviousOnBadDefinition(t *testing.T) {
	d, _ := newTestDaemon(t, true)
	before := d.Config()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.watcher.debounceTime = 50 * time.Millisecond
	require.NoError(t, d.watcher.Start(ctx))
	defer d.watcher.Stop()

	require.NoError(t, os.WriteFile(d.watcher.configPath, []byte("platforms: ["), 0o644))

	// Give the debounced reload a chance to run and be rejected.
	time.Sleep(500 * time.Millisecond)
	assert.Same(t, before, d.Config())
}
