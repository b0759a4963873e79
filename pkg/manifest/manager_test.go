package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest(runID string) Manifest {
	return Manifest{
		RunID:      runID,
		StartedAt:  time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2025, 6, 1, 2, 4, 30, 0, time.UTC),
		SourceType: "FS",
		RowCounts: map[string]int{
			"customers":    500,
			"transactions": 4200,
		},
		CustomersScored: 500,
		CampaignsScored: 12,
		QualityWarnings: 3,
	}
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager("", "customer360", nil)
	assert.Error(t, err)

	_, err = NewManager(t.TempDir(), "", nil)
	assert.Error(t, err)
}

func TestRecordAndLoadLatest(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir, "customer360", map[string]string{"cluster_count": "4"})
	require.NoError(t, err)

	require.NoError(t, mgr.Record(testManifest("run-001")))

	loaded, err := mgr.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, ManifestVersion, loaded.Version)
	assert.Equal(t, "customer360", loaded.PipelineName)
	assert.Equal(t, "run-001", loaded.RunID)
	assert.Equal(t, "FS", loaded.SourceType)
	assert.Equal(t, 500, loaded.CustomersScored)
	assert.Equal(t, 500, loaded.RowCounts["customers"])
	assert.False(t, loaded.WrittenAt.IsZero())

	// Per-run manifest exists alongside the latest pointer.
	_, err = os.Stat(filepath.Join(dir, "run-run-001.json"))
	assert.NoError(t, err)
}

func TestLatestPointerFollowsNewestRun(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), "customer360", nil)
	require.NoError(t, err)

	require.NoError(t, mgr.Record(testManifest("run-001")))
	second := testManifest("run-002")
	second.QualityWarnings = 0
	require.NoError(t, mgr.Record(second))

	loaded, err := mgr.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, "run-002", loaded.RunID)
	assert.Equal(t, 0, loaded.QualityWarnings)
}

func TestLoadLatestMissing(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), "customer360", nil)
	require.NoError(t, err)

	_, err = mgr.LoadLatest()
	assert.Error(t, err)
}

func TestRecordRequiresRunID(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), "customer360", nil)
	require.NoError(t, err)

	err = mgr.Record(Manifest{})
	assert.Error(t, err)
}

func TestLoadLatestCorrupted(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir, "customer360", nil)
	require.NoError(t, err)

	path := filepath.Join(dir, "manifest-customer360-latest.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err = mgr.LoadLatest()
	assert.Error(t, err)
}

func TestWriteAtomicLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	require.NoError(t, WriteAtomic(path, []byte(`{"ok":true}`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
