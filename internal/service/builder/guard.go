package builder

import (
	"context"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/ota-packager/internal/logger"
)

// IsAnotherInstanceRunning reports whether another process with this
// executable's name is alive. Two concurrent runs writing the same
// output would corrupt it, so packaging refuses to start alongside one.
func IsAnotherInstanceRunning(ctx context.Context) bool {
	executable, err := os.Executable()
	if err != nil {
		logger.Infof(ctx, "Unable to resolve own executable: %v", err)
		return false
	}

	processes, err := ps.Processes()
	if err != nil {
		logger.Infof(ctx, "Unable to list processes: %v", err)
		return false
	}

	ownName := filepath.Base(executable)
	ownPID := os.Getpid()

	for _, process := range processes {
		if process.Pid() != ownPID && process.Executable() == ownName {
			logger.InfoKV(ctx, "Found a running instance", "pid", process.Pid())
			return true
		}
	}

	return false
}
