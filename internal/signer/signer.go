// Package signer signs assembled packages as whole files.
package signer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oshokin/ota-packager/internal/run"
)

// Key material file suffixes expected next to a key path.
const (
	publicKeySuffix  = ".x509.pem"
	privateKeySuffix = ".pk8"
)

// Signer signs a package file into a new file. The input is left intact
// so a signed copy can be retried from.
type Signer interface {
	Sign(ctx context.Context, inputPath, outputPath string) error
}

// CommandSigner signs packages through an external whole-file signing
// tool given the base path of a key pair. The key password, when set, is
// handed to the tool through its environment.
type CommandSigner struct {
	// command is the signing tool.
	command string
	// args are passed before the key and file arguments.
	args []string
	// keyPath is the key base path, without the material suffixes.
	keyPath string
	// password unlocks the private key, empty for unencrypted keys.
	password string
}

// NewCommandSigner returns a signer invoking the given tool.
func NewCommandSigner(command string, args []string, keyPath, password string) *CommandSigner {
	return &CommandSigner{
		command:  command,
		args:     args,
		keyPath:  keyPath,
		password: password,
	}
}

// Sign signs the whole package file.
func (s *CommandSigner) Sign(ctx context.Context, inputPath, outputPath string) error {
	args := append(append([]string{}, s.args...),
		"-w",
		s.keyPath+publicKeySuffix,
		s.keyPath+privateKeySuffix,
		inputPath,
		outputPath)

	var env []string
	if s.password != "" {
		env = append(env, "KEY_PASSWORD="+s.password)
	}

	if _, err := run.CommandEnv(ctx, env, s.command, args...); err != nil {
		return fmt.Errorf("sign package: %w", err)
	}

	return nil
}

// CopySigner passes packages through unsigned. It serves test builds
// where no release key is available.
type CopySigner struct{}

// Sign copies the package byte-for-byte.
func (CopySigner) Sign(_ context.Context, inputPath, outputPath string) error {
	src, err := os.Open(filepath.Clean(inputPath))
	if err != nil {
		return fmt.Errorf("sign package: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("sign package: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("sign package: %w", err)
	}

	if err := dst.Close(); err != nil {
		return fmt.Errorf("sign package: %w", err)
	}

	return nil
}
