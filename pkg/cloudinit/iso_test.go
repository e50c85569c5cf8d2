package cloudinit_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalteJ/mvirt/pkg/cloudinit"
	"github.com/MalteJ/mvirt/pkg/models"
)

func TestRequired(t *testing.T) {
	assert.False(t, cloudinit.Required(nil))
	assert.False(t, cloudinit.Required(&models.CloudInitConfig{}))
	assert.True(t, cloudinit.Required(&models.CloudInitConfig{UserData: "x"}))
}

func TestWriteProducesFile(t *testing.T) {
	dir := t.TempDir()
	isoPath := filepath.Join(dir, "cloudinit.iso")

	cfg := &models.CloudInitConfig{
		UserData: "runcmd:\n  - echo hi\n",
		MetaData: "instance-id: vm-1\n",
	}

	require.NoError(t, cloudinit.Write(isoPath, cfg))
	assert.FileExists(t, isoPath)
}
