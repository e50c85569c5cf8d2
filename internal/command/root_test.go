package command

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommandRegistersSubcommands(t *testing.T) {
	cmd, err := NewRootCommand()
	require.NoError(t, err)

	assert.Equal(t, "mvirtd", cmd.Use)

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	assert.True(t, names["run"])
	assert.True(t, names["version"])
}

func TestNewRootCommandRegistersPersistentFlags(t *testing.T) {
	cmd, err := NewRootCommand()
	require.NoError(t, err)

	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-format"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestVersionCommandPrintsBuildMetadata(t *testing.T) {
	cmd := versionCommand()

	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.RunE(cmd, nil))
	assert.Contains(t, out.String(), "mvirtd")
	assert.Contains(t, out.String(), "dev")
}
