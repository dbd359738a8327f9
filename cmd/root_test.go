// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Help, version, and argument validation all resolve before the persistent
// config hook runs, so these tests never touch the filesystem or a browser.

func TestRootCmd_VersionFlag(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--version"})

	err := rootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), Version)
}

func TestRootCmd_Help(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--help"})

	err := rootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), "autonomous browser exploration")
	assert.Contains(t, out.String(), "explore")
	assert.Contains(t, out.String(), "heal")
}

func TestExploreCmd_RequiresTarget(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"explore"})

	err := rootCmd.ExecuteContext(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "arg")
}
