package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, 5618, cfg.Server.Port)
	assert.Equal(t, []int{7, 10, 12, 15, 18, 21}, cfg.Schedule.SlotHours)
	assert.Equal(t, 6, cfg.Schedule.PostsPerDay)
	assert.Equal(t, 60, cfg.Schedule.GraceMinutes)
	assert.Equal(t, 6, cfg.Scan.CriticalBuffer)
	assert.Equal(t, 12, cfg.Scan.LowBuffer)
	assert.Equal(t, 30, cfg.Scan.HealthyBuffer)
	assert.Equal(t, 0.4, cfg.Scan.MinVisualRatio)
	assert.Equal(t, []string{"reddit", "giphy"}, cfg.Scan.EssentialPlatforms)
	assert.Equal(t, 2, cfg.Publisher.MaxRetries)
	assert.Equal(t, "30m", cfg.Reconciler.Interval)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9000
	cfg.Schedule.SlotHours = []int{8, 20}
	cfg.Schedule.PostsPerDay = 2
	ApplyDefaults(cfg)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []int{8, 20}, cfg.Schedule.SlotHours)
	assert.Equal(t, 2, cfg.Schedule.PostsPerDay)
}
