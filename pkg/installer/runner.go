package installer

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-modpackinstaller/pkg/utils"
)

// ExecRunner runs programs on the local machine
type ExecRunner struct {
	logger *utils.Logger
}

// NewExecRunner creates a runner that logs command output at debug level
func NewExecRunner(logger *utils.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run executes name with args in dir and waits for it to exit
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("no command provided")
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	r.logger.Verbose("Executing command: %s", cmd.String())

	output, err := cmd.CombinedOutput()
	if err != nil {
		r.logger.Debug("Command output: %s", string(output))
		if exitErr, ok := err.(*exec.ExitError); ok {
			return output, fmt.Errorf("%s exited with code %d: %s", name, exitErr.ExitCode(), lastLine(output))
		}
		return output, fmt.Errorf("command execution failed: %w", err)
	}

	if len(output) > 0 {
		r.logger.Debug("Command output: %s", string(output))
	} else {
		r.logger.Verbose("Command produced no output")
	}
	return output, nil
}

// lastLine returns the last non-empty output line, usually the failure reason
func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
