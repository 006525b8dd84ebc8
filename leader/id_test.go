package leader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDEncodesHostnameAndPort(t *testing.T) {
	encoded, err := NewID("scheduler-1", 8080, "1.0.0")
	require.NoError(t, err)
	assert.Contains(t, encoded, `"hostname":"scheduler-1"`)
	assert.Contains(t, encoded, `"http":8080`)
	assert.Contains(t, encoded, `"version":"1.0.0"`)
}

func TestLeaderZkPathTrimsLeadingSlash(t *testing.T) {
	assert.Equal(t, "marathon/scheduler/leader", leaderZkPath("/marathon", "scheduler"))
	assert.Equal(t, "scheduler/leader", leaderZkPath("", "scheduler"))
}
