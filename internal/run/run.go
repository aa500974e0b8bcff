package run

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/oshokin/ota-packager/internal/logger"
)

// CommandError describes a failed external tool invocation.
type CommandError struct {
	// Name is the executable that was invoked.
	Name string
	// Args are the arguments it was invoked with.
	Args []string
	// Output is the captured combined stdout/stderr.
	Output string
	// Err is the underlying execution error.
	Err error
}

// Error renders the failed command line and its captured output.
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %v\n%s",
		e.Name, strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Output))
}

// Unwrap exposes the underlying execution error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Command runs an external tool to completion and returns its combined
// output. The call blocks until the process exits; a nonzero exit status
// is returned as a CommandError.
func Command(ctx context.Context, name string, args ...string) (string, error) {
	return CommandEnv(ctx, nil, name, args...)
}

// CommandEnv runs an external tool with extra environment variables
// appended to the inherited environment. Secrets travel this way rather
// than on the command line, which other users can read.
func CommandEnv(ctx context.Context, env []string, name string, args ...string) (string, error) {
	logger.DebugKV(ctx, "Executing", "command", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &CommandError{
			Name:   name,
			Args:   args,
			Output: string(out),
			Err:    err,
		}
	}

	return string(out), nil
}
