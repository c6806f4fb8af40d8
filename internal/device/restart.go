// Package device restarts the running joinme process so a newly activated
// firmware image takes effect.
package device

import (
	"fmt"
	"os"

	"github.com/muurk/joinme/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ExecFunc replaces the current process image
type ExecFunc func(argv0 string, argv []string, envv []string) error

// ExecRestarter restarts by exec()ing a binary in place of the current
// process. On success Restart never returns.
type ExecRestarter struct {
	// Binary is the executable to run (default: os.Executable())
	Binary string

	// Args is argv[1:] (default: os.Args[1:])
	Args []string

	// Exec performs the exec (default: unix.Exec). Tests override it.
	Exec ExecFunc
}

// NewExecRestarter re-runs the current executable with the current arguments
func NewExecRestarter() (*ExecRestarter, error) {
	binary, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	return &ExecRestarter{
		Binary: binary,
		Args:   os.Args[1:],
	}, nil
}

// Restart replaces the process. It only returns on failure.
func (r *ExecRestarter) Restart() error {
	exec := r.Exec
	if exec == nil {
		exec = unix.Exec
	}

	argv := append([]string{r.Binary}, r.Args...)
	logging.Info("Restarting", zap.String("binary", r.Binary), zap.Strings("args", r.Args))
	logging.Sync()

	if err := exec(r.Binary, argv, os.Environ()); err != nil {
		logging.Error("Restart exec failed, continuing with current process",
			zap.String("binary", r.Binary),
			zap.Error(err),
		)
		return fmt.Errorf("exec %s: %w", r.Binary, err)
	}
	return nil
}
