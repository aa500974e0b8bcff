package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/ota-packager/internal/config"
	"github.com/oshokin/ota-packager/internal/service/builder"
	"github.com/oshokin/ota-packager/internal/version"
)

var (
	// configPath to the persistent settings YAML file.
	configPath string

	// opts collects every flag of a packaging run.
	opts = config.Default()

	// downgrade builds a downgrade package, wiping user data on install.
	downgrade bool

	// overrideTimestamp builds a downgrade package without the wipe, for
	// builds whose timestamps moved backwards without a real downgrade.
	overrideTimestamp bool

	// rootCmd represents the base command assembling an update package.
	rootCmd = &cobra.Command{
		Use:   "ota-packager [target-build] [output-package]",
		Short: "Assemble an update package from a target build archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			settings, err := config.LoadSettings(configPath)
			if err != nil {
				return err
			}

			settings.ApplyTo(opts)

			opts.TargetFile = args[0]
			opts.OutputFile = args[1]

			if downgrade {
				opts.Downgrade = true
				opts.WipeUserData = true
			}

			if overrideTimestamp {
				opts.Downgrade = true
			}

			return builder.Run(ctx, opts)
		},
	}
)

// Execute runs the ota-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()

	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to persistent settings file")

	flags.StringVarP(&opts.IncrementalSource, "incremental_from", "i", "", "source build archive for an incremental package")
	flags.StringVarP(&opts.PackageKey, "package_key", "k", "", "base path of the package signing key pair")
	flags.StringVar(&opts.KeyPassword, "key_password", "", "password of the package signing key")
	flags.BoolVar(&opts.NoSigning, "no_signing", false, "skip signing and emit the package as-is")
	flags.StringVar(&opts.SignerCommand, "signer_command", config.DefaultSignerCommand, "whole-package signing tool")
	flags.StringSliceVar(&opts.SignerArgs, "signer_args", nil, "extra arguments for the signing tool")
	flags.StringVar(&opts.PayloadSigner, "payload_signer", "", "external payload-hash signing command")
	flags.StringSliceVar(&opts.PayloadSignerArgs, "payload_signer_args", nil, "extra arguments for the payload signer")
	flags.StringVar(&opts.PayloadTool, "payload_tool", config.DefaultPayloadTool, "payload generator tool")
	flags.StringVar(&opts.BlockDiffTool, "block_diff_tool", config.DefaultBlockDiffTool, "block diff engine")

	flags.StringSliceVar(&opts.OemSettings, "oem_settings", nil, "OEM property files, first one authoritative")
	flags.BoolVar(&opts.OemNoMount, "oem_no_mount", false, "do not mount the OEM partition in the install script")
	flags.StringVar(&opts.DeviceOverride, "override_device", config.DeviceAuto, "override the device name the package asserts")

	flags.BoolVar(&opts.WipeUserData, "wipe_user_data", false, "wipe the data partition on install")
	flags.BoolVar(&downgrade, "downgrade", false, "build a downgrade package; implies a data wipe")
	flags.BoolVar(&overrideTimestamp, "override_timestamp", false, "permit an apparent downgrade without wiping data")
	flags.BoolVar(&opts.TwoStep, "two_step", false, "stage the install over multiple recovery boots")
	flags.BoolVar(&opts.IncludeSecondary, "include_secondary", false, "embed a full secondary-slot payload")
	flags.BoolVar(&opts.SkipPostinstall, "skip_postinstall", false, "drop postinstall hooks from the payload")

	flags.IntVar(&opts.WorkerThreads, "worker_threads", opts.WorkerThreads, "parallelism of the diff engine")
	flags.StringVar(&opts.ExtraScript, "extra_script", "", "script fragment appended to the install script")
	flags.StringVar(&opts.UpdaterBinary, "binary", "", "override the install interpreter binary")
}
