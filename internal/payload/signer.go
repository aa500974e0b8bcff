package payload

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/oshokin/ota-packager/internal/run"
)

// Signer signs a payload or metadata hash file and returns the path of
// the signature file it produced.
type Signer interface {
	Sign(ctx context.Context, hashPath string) (string, error)
}

// OpenSSLSigner signs hashes with a local private key through openssl.
// It is the signer used when no external signing command is configured.
type OpenSSLSigner struct {
	// keyPath is the PEM private key.
	keyPath string
	// scratch is the directory signature files are written to.
	scratch string
}

// NewOpenSSLSigner returns a signer using the given private key.
func NewOpenSSLSigner(keyPath, scratchDir string) *OpenSSLSigner {
	return &OpenSSLSigner{keyPath: keyPath, scratch: scratchDir}
}

// Sign produces an RSA signature over the hash file.
func (s *OpenSSLSigner) Sign(ctx context.Context, hashPath string) (string, error) {
	sigPath := filepath.Join(s.scratch, uuid.NewString()+".sig")

	_, err := run.Command(ctx, "openssl",
		"pkeyutl", "-sign",
		"-inkey", s.keyPath,
		"-pkeyopt", "digest:sha256",
		"-in", hashPath,
		"-out", sigPath)
	if err != nil {
		return "", fmt.Errorf("openssl sign: %w", err)
	}

	return sigPath, nil
}

// CommandSigner delegates hash signing to an external command, for
// setups where the key never leaves a signing service. The hash file and
// the signature file paths are appended to the configured arguments.
type CommandSigner struct {
	// command is the external signer.
	command string
	// args are passed before the hash and signature paths.
	args []string
	// scratch is the directory signature files are written to.
	scratch string
}

// NewCommandSigner returns a signer delegating to the given command.
func NewCommandSigner(command string, args []string, scratchDir string) *CommandSigner {
	return &CommandSigner{command: command, args: args, scratch: scratchDir}
}

// Sign invokes the external command on the hash file.
func (s *CommandSigner) Sign(ctx context.Context, hashPath string) (string, error) {
	sigPath := filepath.Join(s.scratch, uuid.NewString()+".sig")

	args := append(append([]string{}, s.args...), hashPath, sigPath)
	if _, err := run.Command(ctx, s.command, args...); err != nil {
		return "", fmt.Errorf("external payload signer: %w", err)
	}

	return sigPath, nil
}
