package signer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCopySignerCopiesByteForByte verifies the unsigned path leaves the
// package intact and the input in place for retries.
func TestCopySignerCopiesByteForByte(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "in.zip")
	output := filepath.Join(dir, "out.zip")
	content := []byte("package bytes")

	require.NoError(t, os.WriteFile(input, content, 0o644))
	require.NoError(t, CopySigner{}.Sign(context.Background(), input, output))

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Equal(t, content, got)

	// The input survives so a second signing pass can start from it.
	_, err = os.Stat(input)
	require.NoError(t, err)
}

func TestCopySignerMissingInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	err := CopySigner{}.Sign(context.Background(),
		filepath.Join(dir, "absent.zip"), filepath.Join(dir, "out.zip"))
	require.Error(t, err)
}
