package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// DeviceAuto is the sentinel device override meaning "derive the device
// name from build properties".
const DeviceAuto = "auto"

const (
	// DefaultConfigFilename is the default filename for persistent tool settings.
	DefaultConfigFilename = "ota-packager-settings.yaml"

	// DefaultSignerCommand invokes the package signer when none is configured.
	DefaultSignerCommand = "signapk"

	// DefaultPayloadTool generates, hashes, signs and describes update payloads.
	DefaultPayloadTool = "brillo_update_payload"

	// DefaultBlockDiffTool computes block-level differences between two
	// filesystem images.
	DefaultBlockDiffTool = "blockimgdiff"

	// DefaultFilePermissions is the default file permission for settings files.
	DefaultFilePermissions = 0o600
)

var (
	// errSettingsNotSet is returned when a nil settings value is provided.
	errSettingsNotSet = errors.New("settings are not set")
	// errTargetRequired is returned when no target build archive is given.
	errTargetRequired = errors.New("target build archive must be provided")
	// errOutputRequired is returned when no output package path is given.
	errOutputRequired = errors.New("output package path must be provided")
	// errDowngradeNeedsSource is returned when downgrade mode is requested
	// for a full package. A downgradable full package would let a device
	// move back from an arbitrary build, so it is never allowed.
	errDowngradeNeedsSource = errors.New("downgrade mode requires an incremental source build")
	// errWorkersInvalid is returned when the worker count is not positive.
	errWorkersInvalid = errors.New("worker count must be positive")
)

// Options carries every knob of a single package-generation run.
// It is populated once by the CLI and treated as read-only afterwards.
type Options struct {
	// TargetFile is the target build archive the package installs.
	TargetFile string
	// OutputFile is the path of the final signed package.
	OutputFile string
	// IncrementalSource is the source build archive for incremental
	// packages; empty means a full package.
	IncrementalSource string

	// PackageKey names the key used to sign the whole package.
	PackageKey string
	// KeyPassword unlocks PackageKey when it is encrypted.
	KeyPassword string
	// NoSigning skips every signing step and emits the package as-is.
	NoSigning bool

	// SignerCommand is the external whole-package signer executable.
	SignerCommand string
	// SignerArgs are extra arguments passed to SignerCommand.
	SignerArgs []string
	// PayloadSigner is an external payload signer executable; empty means
	// signing payload hashes with openssl and PackageKey.
	PayloadSigner string
	// PayloadSignerArgs are extra arguments passed to PayloadSigner.
	PayloadSignerArgs []string
	// PayloadTool is the external payload generator executable.
	PayloadTool string
	// BlockDiffTool is the external block diff engine executable.
	BlockDiffTool string

	// OemSettings lists OEM property files. The first file is authoritative
	// for identity, the rest feed assertion checks only.
	OemSettings []string
	// OemNoMount suppresses mounting the OEM partition in the install script.
	OemNoMount bool
	// DeviceOverride replaces the property-derived device name unless it
	// is DeviceAuto.
	DeviceOverride string

	// WipeUserData marks the package to wipe the data partition on install.
	WipeUserData bool
	// Downgrade permits (and requires) installing an older build on top of
	// a newer one.
	Downgrade bool
	// TwoStep requests the staged boot/recovery/main install sequence.
	TwoStep bool
	// IncludeSecondary additionally embeds a full payload for the
	// secondary slot images.
	IncludeSecondary bool
	// SkipPostinstall drops all postinstall hooks from the payload.
	SkipPostinstall bool

	// WorkerThreads bounds parallelism inside the external diff engine.
	WorkerThreads int
	// ExtraScript is appended verbatim at the end of the install script.
	ExtraScript string
	// UpdaterBinary overrides the install interpreter taken from the build.
	UpdaterBinary string
}

// Default returns Options with every field at its documented default.
func Default() *Options {
	return &Options{
		DeviceOverride: DeviceAuto,
		SignerCommand:  DefaultSignerCommand,
		PayloadTool:    DefaultPayloadTool,
		BlockDiffTool:  DefaultBlockDiffTool,
		WorkerThreads:  defaultWorkerThreads(),
	}
}

// defaultWorkerThreads is the diff engine parallelism when neither a
// flag nor a settings file names one.
func defaultWorkerThreads() int {
	workers := runtime.NumCPU() / 2
	if workers == 0 {
		workers = 1
	}

	return workers
}

// Validate checks the options for required fields and illegal combinations.
func (o *Options) Validate() error {
	if o.TargetFile == "" {
		return errTargetRequired
	}

	if o.OutputFile == "" {
		return errOutputRequired
	}

	if o.Downgrade && o.IncrementalSource == "" {
		return errDowngradeNeedsSource
	}

	if o.WorkerThreads <= 0 {
		return errWorkersInvalid
	}

	return nil
}

// Settings holds machine-level defaults persisted between runs.
type Settings struct {
	// PackageKey names the default package signing key.
	PackageKey string `yaml:"package_key"`
	// SignerCommand is the default whole-package signer executable.
	SignerCommand string `yaml:"signer_command"`
	// SignerArgs are default extra arguments for the signer.
	SignerArgs []string `yaml:"signer_args,omitempty"`
	// PayloadTool is the default payload generator executable.
	PayloadTool string `yaml:"payload_tool"`
	// BlockDiffTool is the default block diff engine executable.
	BlockDiffTool string `yaml:"block_diff_tool"`
	// WorkerThreads is the default diff engine parallelism.
	WorkerThreads int `yaml:"worker_threads"`
}

// LoadSettings reads settings from the provided path.
// A missing file is not an error; defaults then stay in effect.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return &Settings{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(contents, &s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return &s, nil
}

// SaveSettings writes settings to the provided path.
func SaveSettings(path string, s *Settings) error {
	if s == nil {
		return errSettingsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions: the file may name key material.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// ApplyTo copies every non-empty setting into options fields the CLI left
// at their defaults.
func (s *Settings) ApplyTo(o *Options) {
	if s.PackageKey != "" && o.PackageKey == "" {
		o.PackageKey = s.PackageKey
	}

	if s.SignerCommand != "" && o.SignerCommand == DefaultSignerCommand {
		o.SignerCommand = s.SignerCommand
	}

	if len(s.SignerArgs) > 0 && len(o.SignerArgs) == 0 {
		o.SignerArgs = append([]string(nil), s.SignerArgs...)
	}

	if s.PayloadTool != "" && o.PayloadTool == DefaultPayloadTool {
		o.PayloadTool = s.PayloadTool
	}

	if s.BlockDiffTool != "" && o.BlockDiffTool == DefaultBlockDiffTool {
		o.BlockDiffTool = s.BlockDiffTool
	}

	if s.WorkerThreads > 0 && o.WorkerThreads == defaultWorkerThreads() {
		o.WorkerThreads = s.WorkerThreads
	}
}
