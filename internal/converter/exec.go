package converter

import (
	"context"
	"errors"
	"os"
	"os/exec"

	execute "github.com/alexellis/go-execute/v2"
	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// runTool executes an external binary and turns a non-zero exit into a
// ConversionError carrying its stderr.
func runTool(ctx context.Context, log *logger.Logger, name, command string, args []string) error {
	log.Debug("executing", zap.String("command", command), zap.Strings("args", args))

	task := execute.ExecTask{
		Command: command,
		Args:    args,
	}

	res, err := task.Execute(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &ConversionError{Converter: name, ExitCode: res.ExitCode, Output: res.Stderr, Err: err}
	}
	if res.Cancelled {
		return &ConversionError{Converter: name, Output: res.Stderr, Err: context.Canceled}
	}
	if res.ExitCode != 0 {
		out := res.Stderr
		if out == "" {
			out = res.Stdout
		}
		log.Warn("command exited with non-zero code", zap.String("command", command), zap.Int("code", res.ExitCode))
		return &ConversionError{Converter: name, ExitCode: res.ExitCode, Output: out, Err: errors.New("non-zero exit code")}
	}
	return nil
}

// resolveBinary returns the first candidate that is on PATH or is an
// existing file.
func resolveBinary(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if p, err := exec.LookPath(c); err == nil {
			return p, true
		}
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}
