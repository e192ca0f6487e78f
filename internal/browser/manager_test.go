package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Headless)
	assert.Equal(t, 30*time.Second, cfg.NavigationTimeout())
	assert.Equal(t, 3*time.Second, cfg.FindTimeout())
}

func TestConfigZeroValuesFallBack(t *testing.T) {
	var cfg Config
	assert.Equal(t, 30*time.Second, cfg.NavigationTimeout())
	assert.Equal(t, 3*time.Second, cfg.FindTimeout())
}

// stubLifecycle wires fake launch/health/teardown into a Manager so the
// reuse-vs-relaunch logic can be exercised without a real Chrome.
type stubLifecycle struct {
	launches  int
	teardowns int
	healthErr error
}

func (s *stubLifecycle) install(m *Manager) {
	m.launch = func(context.Context) (*rod.Browser, error) {
		s.launches++
		return rod.New(), nil
	}
	m.teardown = func(*rod.Browser) error {
		s.teardowns++
		return nil
	}
	m.health = func(*rod.Browser) error { return s.healthErr }
}

func TestManagerReusesHealthyBrowser(t *testing.T) {
	m := NewManager(DefaultConfig(), zap.NewNop())
	stub := &stubLifecycle{}
	stub.install(m)

	ctx := context.Background()
	first, err := m.ensureBrowser(ctx)
	require.NoError(t, err)
	second, err := m.ensureBrowser(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, stub.launches)
	assert.Equal(t, 0, stub.teardowns)
}

func TestManagerRelaunchesWhenHealthCheckFails(t *testing.T) {
	m := NewManager(DefaultConfig(), zap.NewNop())
	stub := &stubLifecycle{}
	stub.install(m)

	ctx := context.Background()
	first, err := m.ensureBrowser(ctx)
	require.NoError(t, err)

	stub.healthErr = errors.New("browser gone")
	second, err := m.ensureBrowser(ctx)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, stub.launches)
	assert.Equal(t, 1, stub.teardowns, "dead browser must be torn down before relaunch")
}

func TestManagerLaunchErrorSurfaces(t *testing.T) {
	m := NewManager(DefaultConfig(), zap.NewNop())
	boom := errors.New("no chrome to be found")
	m.launch = func(context.Context) (*rod.Browser, error) { return nil, boom }

	_, err := m.ensureBrowser(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestManagerShutdownUsesTeardown(t *testing.T) {
	m := NewManager(DefaultConfig(), zap.NewNop())
	stub := &stubLifecycle{}
	stub.install(m)

	_, err := m.ensureBrowser(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Shutdown())
	assert.Equal(t, 1, stub.teardowns)
	require.NoError(t, m.Shutdown(), "second shutdown is a no-op")
	assert.Equal(t, 1, stub.teardowns)
}
