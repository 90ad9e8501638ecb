package generator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeClaude(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestClaudeComplete(t *testing.T) {
	bin := fakeClaude(t, `echo '{"type":"result","is_error":false,"result":"package main"}'`)
	c := &Claude{Bin: bin}

	got, err := c.Complete(context.Background(), "sys", "usr")
	require.NoError(t, err)
	assert.Equal(t, "package main", got)
}

func TestClaudeErrors(t *testing.T) {
	t.Run("is_error", func(t *testing.T) {
		bin := fakeClaude(t, `echo '{"type":"result","is_error":true,"result":"overloaded"}'`)
		_, err := (&Claude{Bin: bin}).Complete(context.Background(), "s", "u")
		require.Error(t, err)
		assert.False(t, IsPermanent(err))
		assert.Contains(t, err.Error(), "overloaded")
	})

	t.Run("non-zero exit", func(t *testing.T) {
		bin := fakeClaude(t, `echo "auth required" >&2; exit 2`)
		_, err := (&Claude{Bin: bin}).Complete(context.Background(), "s", "u")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auth required")
	})

	t.Run("missing binary", func(t *testing.T) {
		_, err := (&Claude{Bin: filepath.Join(t.TempDir(), "nope")}).Complete(context.Background(), "s", "u")
		require.Error(t, err)
		assert.True(t, IsPermanent(err))
	})
}
