package config

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	f, err := ioutil.TempFile("", "marathon-config-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString(contents)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func TestParseMergesMultipleFiles(t *testing.T) {
	base := writeTempConfig(t, "framework:\n  name: marathon\noffer:\n  max_instances_per_offer: 5\n"+
		"instance_tracker:\n  update_queue_size: 100\n  num_parallel_updates: 4\nstorage:\n  max_versions: 25\n")
	override := writeTempConfig(t, "offer:\n  max_instances_per_offer: 10\n")

	var cfg SchedulerConfig
	err := Parse(&cfg, base, override)
	require.NoError(t, err)
	assert.Equal(t, "marathon", cfg.Framework.Name)
	assert.Equal(t, 10, cfg.Offer.MaxInstancesPerOffer)
	assert.Equal(t, 120, cfg.MaxStatusMessageLength)
}

func TestParseReturnsValidationErrorForMissingFrameworkName(t *testing.T) {
	f := writeTempConfig(t, "offer:\n  max_instances_per_offer: 1\n")

	var cfg SchedulerConfig
	err := Parse(&cfg, f)
	require.Error(t, err)
	_, ok := err.(ValidationError)
	assert.True(t, ok)
}

func TestParseRequiresAtLeastOneFile(t *testing.T) {
	var cfg SchedulerConfig
	err := Parse(&cfg)
	assert.Error(t, err)
}
