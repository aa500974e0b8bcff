package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields and illegal option combinations.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing target.
	opts := Default()

	err := opts.Validate()
	require.ErrorIs(t, err, errTargetRequired)

	// Missing output.
	opts = Default()
	opts.TargetFile = "target.zip"

	err = opts.Validate()
	require.ErrorIs(t, err, errOutputRequired)

	// Downgrade without a source.
	opts = Default()
	opts.TargetFile = "target.zip"
	opts.OutputFile = "out.zip"
	opts.Downgrade = true

	err = opts.Validate()
	require.ErrorIs(t, err, errDowngradeNeedsSource)

	// Okay as an incremental downgrade.
	opts.IncrementalSource = "source.zip"
	require.NoError(t, opts.Validate())
}

// TestSettingsRoundtrip ensures settings are persisted and loaded back correctly.
func TestSettingsRoundtrip(t *testing.T) {
	t.Parallel()

	t.Run("without signer args", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "settings.yaml")

		s := &Settings{
			PackageKey:    "releasekey",
			SignerCommand: "/usr/local/bin/signapk",
			WorkerThreads: 4,
		}

		require.NoError(t, SaveSettings(path, s))

		// An unset slice must load back unset, not empty.
		loaded, err := LoadSettings(path)
		require.NoError(t, err)
		require.Nil(t, loaded.SignerArgs)
		require.Equal(t, s, loaded)
	})

	t.Run("with signer args", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "settings.yaml")

		s := &Settings{
			PackageKey:    "releasekey",
			SignerCommand: "/usr/local/bin/signapk",
			SignerArgs:    []string{"-a", "4"},
			WorkerThreads: 4,
		}

		require.NoError(t, SaveSettings(path, s))

		loaded, err := LoadSettings(path)
		require.NoError(t, err)
		require.Equal(t, s, loaded)
	})
}

// TestLoadSettingsMissingFile ensures a missing settings file yields defaults.
func TestLoadSettingsMissingFile(t *testing.T) {
	t.Parallel()

	loaded, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, &Settings{}, loaded)
}

// TestApplyTo verifies settings only fill fields left at their defaults.
func TestApplyTo(t *testing.T) {
	t.Parallel()

	s := &Settings{
		PackageKey:    "releasekey",
		SignerCommand: "altsigner",
		WorkerThreads: 8,
	}

	opts := Default()
	opts.PackageKey = "explicit"

	s.ApplyTo(opts)
	require.Equal(t, "explicit", opts.PackageKey)
	require.Equal(t, "altsigner", opts.SignerCommand)
	require.Equal(t, 8, opts.WorkerThreads)

	// An explicit worker count beats the settings file.
	opts = Default()
	opts.WorkerThreads = defaultWorkerThreads() + 1

	s.ApplyTo(opts)
	require.Equal(t, defaultWorkerThreads()+1, opts.WorkerThreads)
}
