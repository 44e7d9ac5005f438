package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gidence/scm/internal/fleet"
)

func TestLoadFirstRunGeneratesIdentity(t *testing.T) {
	dir := t.TempDir()
	d, err := Load(dir)
	require.NoError(t, err)

	p := d.Processor()
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, p.ID, p.Name)
	assert.Equal(t, "yolov8n.hef", p.Model)
	assert.EqualValues(t, 8000, p.Address.Port)
	assert.Positive(t, p.Version)
	assert.Nil(t, p.Webhook)

	// Both files now exist on disk.
	_, err = os.Stat(filepath.Join(dir, "processor.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "camera.json"))
	assert.NoError(t, err)
}

func TestLoadReusesPersistedIdentity(t *testing.T) {
	dir := t.TempDir()
	first, err := Load(dir)
	require.NoError(t, err)

	second, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, first.Processor().ID, second.Processor().ID)
	assert.Equal(t, first.Processor().Version, second.Processor().Version)
}

func TestSetProcessorKeepsIDAndBumps(t *testing.T) {
	d, err := Load(t.TempDir())
	require.NoError(t, err)
	before := d.Processor()

	updated, err := d.SetProcessor(fleet.Processor{
		ID:    "attacker-chosen",
		Name:  "line-3",
		Model: "yolov8s.hef",
	})
	require.NoError(t, err)
	assert.Equal(t, before.ID, updated.ID)
	assert.Equal(t, "line-3", updated.Name)
	assert.Greater(t, updated.Version, before.Version)
}

func TestVersionStrictlyIncreasing(t *testing.T) {
	d, err := Load(t.TempDir())
	require.NoError(t, err)

	var versions []int64
	versions = append(versions, d.Version())
	for i := 0; i < 5; i++ {
		_, err := d.InsertCamera(fleet.Camera{Name: "cam"})
		require.NoError(t, err)
		versions = append(versions, d.Version())
	}
	for i := 1; i < len(versions); i++ {
		assert.Greater(t, versions[i], versions[i-1])
	}
}

func TestCameraCRUD(t *testing.T) {
	d, err := Load(t.TempDir())
	require.NoError(t, err)

	created, err := d.InsertCamera(fleet.Camera{Name: "entrance"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	created.Name = "entrance-north"
	updated, err := d.UpdateCamera(created)
	require.NoError(t, err)
	assert.Equal(t, "entrance-north", updated.Name)

	got, ok := d.Camera(created.ID)
	require.True(t, ok)
	assert.Equal(t, "entrance-north", got.Name)

	require.NoError(t, d.DeleteCamera(created.ID))
	_, ok = d.Camera(created.ID)
	assert.False(t, ok)
	assert.Empty(t, d.Cameras())
}

func TestCameraMutationsOnMissingEntry(t *testing.T) {
	d, err := Load(t.TempDir())
	require.NoError(t, err)

	_, err = d.UpdateCamera(fleet.Camera{ID: "nope"})
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, d.DeleteCamera("nope"), os.ErrNotExist)
}

func TestRosterSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	d, err := Load(dir)
	require.NoError(t, err)
	created, err := d.InsertCamera(fleet.Camera{Name: "dock"})
	require.NoError(t, err)

	reloaded, err := Load(dir)
	require.NoError(t, err)
	got, ok := reloaded.Camera(created.ID)
	require.True(t, ok)
	assert.Equal(t, "dock", got.Name)
}
