package clog

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetSinkCapturesRecords(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetSink(core)
	t.Cleanup(func() { SetSink(defaultCore()) })

	Info("hello", zap.Int("n", 1))
	Warn("careful")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "hello", entries[0].Message)
	require.Equal(t, zap.InfoLevel, entries[0].Level)
	require.Equal(t, "careful", entries[1].Message)
	require.Equal(t, zap.WarnLevel, entries[1].Level)
}

func TestSetThresholdFiltersLowerSeverity(t *testing.T) {
	SetSink(defaultCore())
	SetThreshold(LevelWarn)
	t.Cleanup(func() { SetThreshold(LevelDebug) })

	require.False(t, logger().Core().Enabled(zap.InfoLevel), "expected Info to be filtered out below Warn threshold")
	require.True(t, logger().Core().Enabled(zap.WarnLevel), "expected Warn to remain enabled at Warn threshold")
}
