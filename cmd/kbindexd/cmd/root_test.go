package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	// Given: the root command
	cmd := NewRootCmd()

	// Then: all subcommands are present
	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "run", "source", "reindex", "stats", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootCmd_Help(t *testing.T) {
	// Given: the root command invoked with --help
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	// When: executing
	err := cmd.Execute()

	// Then: usage text mentions the service
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "kbindexd")
	assert.Contains(t, buf.String(), "serve")
}
