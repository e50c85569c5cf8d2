package shared_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalteJ/mvirt/pkg/hypervisor/shared"
)

func TestPIDRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.Join("/vm/vm-1", "cloudhypervisor.pid")

	require.NoError(t, fs.MkdirAll("/vm/vm-1", 0o755))
	require.NoError(t, shared.PIDWriteToFile(4242, path, fs))

	got, err := shared.PIDReadFromFile(path, fs)
	require.NoError(t, err)
	assert.Equal(t, 4242, got)
}

func TestProcessAliveForSelf(t *testing.T) {
	assert.True(t, shared.ProcessAlive(os.Getpid()))
}

func TestProcessAliveFalseForInvalidPID(t *testing.T) {
	assert.False(t, shared.ProcessAlive(0))
	assert.False(t, shared.ProcessAlive(-1))
}
