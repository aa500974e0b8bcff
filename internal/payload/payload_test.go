package payload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/ota-packager/internal/container"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

// TestEmbed verifies primary and secondary payloads land under their own
// entry names with the expected content.
func TestEmbed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		secondary   bool
		wantPayload string
		wantProps   string
	}{
		{
			name:        "primary",
			wantPayload: EntryName,
			wantProps:   PropertiesEntryName,
		},
		{
			name:        "secondary",
			secondary:   true,
			wantPayload: SecondaryEntryName,
			wantProps:   SecondaryPropertiesEntryName,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			scratch := t.TempDir()

			p := New("tool", scratch, tt.secondary)
			p.path = filepath.Join(scratch, "payload.bin")
			p.propsPath = filepath.Join(scratch, "props.txt")
			writeTestFile(t, p.path, "payload-bytes")
			writeTestFile(t, p.propsPath, "FILE_HASH=abc\n")

			archivePath := filepath.Join(scratch, "package.zip")

			w, err := container.Create(archivePath)
			require.NoError(t, err)
			require.NoError(t, p.Embed(w))
			require.NoError(t, w.Close())

			r, err := container.Open(archivePath)
			require.NoError(t, err)
			defer r.Close()

			content, err := r.ReadEntry(tt.wantPayload)
			require.NoError(t, err)
			require.Equal(t, "payload-bytes", string(content))

			content, err = r.ReadEntry(tt.wantProps)
			require.NoError(t, err)
			require.Equal(t, "FILE_HASH=abc\n", string(content))

			// Streamed entries must be byte-range addressable.
			offset, size, err := r.EntryOffsetSize(tt.wantPayload)
			require.NoError(t, err)

			raw, err := os.ReadFile(archivePath)
			require.NoError(t, err)
			require.Equal(t, "payload-bytes", string(raw[offset:offset+size]))
		})
	}
}
