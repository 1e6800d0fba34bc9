package dump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ConnectionParams are the target database's connection settings. The
// password travels to the child process through its environment only and is
// never placed on the command line.
type ConnectionParams struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Result is the outcome of one dump invocation. Output is the tool's
// combined stdout/stderr with the credential scrubbed.
type Result struct {
	ExitCode int
	Output   string
}

// ErrTimeout reports that the dump process was killed after exceeding its
// configured deadline.
var ErrTimeout = errors.New("dump timed out")

// Executor produces a database dump file at a caller-chosen path.
type Executor interface {
	Dump(ctx context.Context, params ConnectionParams, outputPath string) (*Result, error)
}

// MySQLExecutor runs a mysqldump-compatible binary as a child process.
type MySQLExecutor struct {
	binary  string
	timeout time.Duration
	logger  zerolog.Logger
}

func NewMySQLExecutor(binary string, timeout time.Duration, logger zerolog.Logger) *MySQLExecutor {
	return &MySQLExecutor{
		binary:  binary,
		timeout: timeout,
		logger:  logger.With().Str("component", "dump-executor").Logger(),
	}
}

// Dump invokes the dump tool with arguments passed as a vector (never a
// concatenated shell string). Success requires exit code zero AND a non-empty
// output file; anything else is a dump failure.
func (e *MySQLExecutor) Dump(ctx context.Context, params ConnectionParams, outputPath string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := []string{
		"--host=" + params.Host,
		"--port=" + strconv.Itoa(params.Port),
		"--user=" + params.User,
		"--single-transaction",
		"--routines",
		"--triggers",
		"--result-file=" + outputPath,
		params.Database,
	}

	cmd := exec.CommandContext(ctx, e.binary, args...)
	// The credential lives only in the child's environment for the child's
	// lifetime; MYSQL_PWD is the tool's conventional secure channel.
	cmd.Env = append(cleanEnv(), "MYSQL_PWD="+params.Password)

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	e.logger.Info().Str("database", params.Database).Str("output", outputPath).Msg("starting database dump")
	runErr := cmd.Run()

	output := scrub(combined.String(), params.Password)

	if ctx.Err() == context.DeadlineExceeded {
		_ = os.Remove(outputPath)
		return &Result{ExitCode: -1, Output: output}, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
	}

	exitCode := 0
	if runErr != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &Result{ExitCode: exitCode, Output: output},
			fmt.Errorf("dump tool exited with code %d", exitCode)
	}

	info, statErr := os.Stat(outputPath)
	if statErr != nil {
		return &Result{ExitCode: exitCode, Output: output},
			fmt.Errorf("dump tool produced no output file: %w", statErr)
	}
	if info.Size() == 0 {
		return &Result{ExitCode: exitCode, Output: output},
			fmt.Errorf("dump tool produced an empty output file")
	}

	e.logger.Info().Int64("bytes", info.Size()).Msg("database dump finished")
	return &Result{ExitCode: exitCode, Output: output}, nil
}

// cleanEnv is the parent environment without any inherited MYSQL_PWD, so the
// only credential the child sees is the one passed explicitly.
func cleanEnv() []string {
	var env []string
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, "MYSQL_PWD=") {
			env = append(env, e)
		}
	}
	return env
}

// scrub masks the credential wherever the tool echoed it back.
func scrub(output, password string) string {
	if password == "" {
		return output
	}
	return strings.ReplaceAll(output, password, "****")
}
