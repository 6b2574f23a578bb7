package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/meditime/internal/config"
	"github.com/gmsas95/meditime/internal/metrics"
	"github.com/gmsas95/meditime/internal/reminder"
	"github.com/gmsas95/meditime/internal/store"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.Port = 8787
	cfg.Reminders.RepeatInterval = 10 * time.Second
	cfg.Reminders.RolloverCron = "0 0 * * *"
	cfg.Reminders.Title = "MediTime - Medication Reminder"
	cfg.Reminders.Speech = true
	cfg.Reminders.Tone = false
	cfg.Reminders.Desktop = true
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()

	st, err := store.NewBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	a := New(cfg, st, zap.NewNop(), "test")
	a.Metrics = metrics.New()
	return a
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		version string
	}{
		{"create app with version", "1.0.0"},
		{"create app with dev version", "dev"},
		{"create app with empty version", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(nil, nil, nil, tt.version)
			require.NotNil(t, a)
			assert.Equal(t, tt.version, a.Version)
		})
	}
}

func TestInit_WiresEngine(t *testing.T) {
	a := newTestApp(t, testConfig())
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(a.Scheduler.Cancel)

	assert.Equal(t, []string{SinkLog, SinkSpeech, SinkTone, SinkDesktop, SinkBrowser}, a.Sinks.Names())
	assert.True(t, a.Sinks.Enabled(SinkSpeech))
	assert.False(t, a.Sinks.Enabled(SinkTone))
	assert.True(t, a.Sinks.Enabled(SinkDesktop))

	require.NotNil(t, a.Service)
	require.NotNil(t, a.CronRunner)
	require.NotNil(t, a.Server)
	assert.False(t, a.CronRunner.IsRunning())
	assert.Equal(t, reminder.StateIdle, a.Service.Reminder().State)
}

func TestInit_BadRolloverSpec(t *testing.T) {
	cfg := testConfig()
	cfg.Reminders.RolloverCron = "every midnight"

	a := newTestApp(t, cfg)
	assert.Error(t, a.Init(context.Background()))
}

func TestApplyConfig(t *testing.T) {
	a := newTestApp(t, testConfig())
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(a.Scheduler.Cancel)

	next := testConfig()
	next.Reminders.Speech = false
	next.Reminders.Tone = true
	next.Reminders.RepeatInterval = 30 * time.Second
	a.ApplyConfig(next)

	assert.False(t, a.Sinks.Enabled(SinkSpeech))
	assert.True(t, a.Sinks.Enabled(SinkTone))
	assert.Equal(t, 30*time.Second, a.Config.Reminders.RepeatInterval)
}

func TestShutdown_WithoutStart(t *testing.T) {
	a := newTestApp(t, testConfig())
	require.NoError(t, a.Init(context.Background()))

	assert.NotPanics(t, a.shutdown)
}
