package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 50000, cfg.Sweep.SnapshotMaxChars)
	assert.Equal(t, 4000, cfg.Sweep.ClassifierMaxChars)
	assert.Equal(t, 8, cfg.Scheduler.PageSize)
	assert.Equal(t, 2*time.Second, cfg.Fetch.OraclePace())
	assert.Equal(t, 15*time.Second, cfg.Fetch.Timeout())
}

func TestWeeklyRules(t *testing.T) {
	sc := SchedulerConfig{WeeklyJurisdictions: map[string]string{
		"US": "Friday",
		"KR": "monday",
	}}

	rules, err := sc.WeeklyRules()
	require.NoError(t, err)
	assert.Equal(t, time.Friday, rules["US"])
	assert.Equal(t, time.Monday, rules["KR"])
}

func TestWeeklyRules_UnknownDay(t *testing.T) {
	sc := SchedulerConfig{WeeklyJurisdictions: map[string]string{"US": "Funday"}}

	_, err := sc.WeeklyRules()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Funday")
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}
