package triathlon

import (
	"strings"
	"testing"
	"time"

	"github.com/LuisLeon1705/Triatlon-Ujap/kv"
	"github.com/LuisLeon1705/Triatlon-Ujap/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestConfigDefaults tests the defaults filled in by NewConfig.
func TestConfigDefaults(t *testing.T) {
	cfg, err := NewConfig(WithStore(kv.NewMemory()))
	require.NoError(t, err)

	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.Random)
	assert.IsType(t, &timer.RealTicker{}, cfg.Ticker)
	assert.IsType(t, timer.RealClock{}, cfg.WallClock)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, 0.001, cfg.DisqualifyProbability)
	assert.Equal(t, SpeedJitter{Min: 0.8, Max: 1.2}, cfg.SpeedJitter)
	assert.Equal(t, time.Local, cfg.Location)
	assert.Empty(t, cfg.Listeners)
	assert.Nil(t, cfg.Auditor)
}

// TestConfigOptions tests that every option lands in the config.
func TestConfigOptions(t *testing.T) {
	store := kv.NewMemory()
	ticker := timer.NewMockTicker()
	wall := timer.NewFakeClock(TestEpoch)
	rng := NeverDisqualify()
	listener := &RecordingListener{}
	logger := zap.NewExample()
	loc := time.FixedZone("VET", -4*3600)

	cfg, err := NewConfig(
		WithStore(store),
		WithLogger(logger),
		WithRandom(rng),
		WithTicker(ticker),
		WithWallClock(wall),
		WithTickInterval(250*time.Millisecond),
		WithDisqualifyProbability(0),
		WithSpeedJitter(1, 1),
		WithLocation(loc),
		WithListener(listener),
		WithAuditor(&countingAuditor{}),
	)
	require.NoError(t, err)

	assert.Same(t, store, cfg.Store)
	assert.Same(t, logger, cfg.Logger)
	assert.Same(t, rng, cfg.Random)
	assert.Same(t, ticker, cfg.Ticker)
	assert.Same(t, wall, cfg.WallClock)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Zero(t, cfg.DisqualifyProbability)
	assert.Equal(t, SpeedJitter{Min: 1, Max: 1}, cfg.SpeedJitter)
	assert.Same(t, loc, cfg.Location)
	assert.Len(t, cfg.Listeners, 1)
	assert.NotNil(t, cfg.Auditor)
}

// TestConfigSeedIsRepeatable tests that WithSeed gives the same draws.
func TestConfigSeedIsRepeatable(t *testing.T) {
	a, err := NewConfig(WithStore(kv.NewMemory()), WithSeed(99))
	require.NoError(t, err)
	b, err := NewConfig(WithStore(kv.NewMemory()), WithSeed(99))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Random.Float64(), b.Random.Float64())
	}
}

// TestConfigValidation tests that invalid settings are rejected.
func TestConfigValidation(t *testing.T) {
	store := WithStore(kv.NewMemory())

	tests := []struct {
		name    string
		opts    []ConfigOption
		wantErr string
	}{
		{
			name:    "MissingStore",
			opts:    nil,
			wantErr: "store is required",
		},
		{
			name:    "ZeroTickInterval",
			opts:    []ConfigOption{store, WithTickInterval(0)},
			wantErr: "tick interval must be positive",
		},
		{
			name:    "NegativeProbability",
			opts:    []ConfigOption{store, WithDisqualifyProbability(-0.1)},
			wantErr: "disqualify probability",
		},
		{
			name:    "ProbabilityAboveOne",
			opts:    []ConfigOption{store, WithDisqualifyProbability(1.5)},
			wantErr: "disqualify probability",
		},
		{
			name:    "InvertedJitter",
			opts:    []ConfigOption{store, WithSpeedJitter(1.2, 0.8)},
			wantErr: "invalid speed jitter",
		},
		{
			name:    "ZeroJitter",
			opts:    []ConfigOption{store, WithSpeedJitter(0, 1)},
			wantErr: "invalid speed jitter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.opts...)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "got %q", err)
		})
	}
}

// TestConfigNilOptions tests that nil collaborators are rejected up front.
func TestConfigNilOptions(t *testing.T) {
	opts := []ConfigOption{
		WithStore(nil),
		WithLogger(nil),
		WithRandom(nil),
		WithTicker(nil),
		WithWallClock(nil),
		WithLocation(nil),
		WithListener(nil),
		WithAuditor(nil),
	}

	for _, opt := range opts {
		_, err := NewConfig(opt)
		assert.Error(t, err)
	}
}
