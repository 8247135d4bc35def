package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"sync"
	"time"

	"shellrelay/internal/logging"
	"shellrelay/internal/osprofile"
)

const (
	defaultOutputLimit = 64 * 1024
	markerTailSize     = 8 * 1024
	killWaitDelay      = 5 * time.Second
)

// Spec describes a single shell command to execute.
type Spec struct {
	Command  string
	Dir      string
	Timeout  time.Duration
	TrackCwd bool
}

// Result is the outcome of one command. ExitCode is nil when the process was
// killed by timeout or cancellation rather than exiting on its own.
type Result struct {
	ExitCode   *int
	Stdout     string
	Stderr     string
	DurationMs int64
	Truncated  bool
	WorkingDir string
}

// Runner executes commands through the host shell with a hard timeout and a
// byte cap on captured output.
type Runner struct {
	profile     osprofile.Profile
	outputLimit int
	mu          sync.Mutex
	rand        *rand.Rand
}

func New(profile osprofile.Profile, outputLimit int) *Runner {
	if outputLimit <= 0 {
		outputLimit = defaultOutputLimit
	}
	return &Runner{
		profile:     profile,
		outputLimit: outputLimit,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes spec.Command in spec.Dir. A non-zero exit status is not an
// error; the error return is reserved for failures to launch the shell at
// all, which callers treat as fatal for the whole request.
func (r *Runner) Run(ctx context.Context, spec Spec) (Result, error) {
	command := spec.Command
	marker := ""
	if spec.TrackCwd {
		marker = r.newMarker()
		command = r.profile.CwdProbe(command, marker)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	argv := r.profile.CommandArgs(command)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()

	// Close stdin to prevent commands from hanging waiting for user input
	cmd.Stdin = nil

	stdout := newCaptureBuffer(r.outputLimit, markerTailSize)
	stderr := newCaptureBuffer(r.outputLimit, 0)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	setProcGroup(cmd)
	cmd.Cancel = func() error { return killProcess(cmd) }
	cmd.WaitDelay = killWaitDelay

	started := time.Now()
	runErr := cmd.Run()
	duration := time.Since(started).Milliseconds()

	res := Result{DurationMs: duration}

	switch {
	case runErr == nil:
		code := 0
		res.ExitCode = &code
	case runCtx.Err() != nil:
		// Killed by timeout or caller cancellation. ExitCode stays nil.
		logging.DevLog("command killed after %dms: %s", duration, spec.Command)
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code := exitErr.ExitCode()
			res.ExitCode = &code
		} else {
			return Result{}, fmt.Errorf("start shell: %w", runErr)
		}
	}

	stdoutLen := stdout.total
	if spec.TrackCwd && res.ExitCode != nil {
		if cwd, absStart, ok := stdout.extractMarker([]byte(marker)); ok {
			res.WorkingDir = cwd
			// The probe prints "\n<marker><pwd>\n" after the command, so
			// everything from the newline before the marker onward belongs
			// to the probe, not to the command.
			if cmdLen := absStart - 1; cmdLen >= 0 {
				stdoutLen = cmdLen
			}
		}
	}

	res.Stdout = string(stdout.snapshot(stdoutLen))
	res.Stderr = string(stderr.snapshot(stderr.total))
	res.Truncated = stdoutLen > r.outputLimit || stderr.total > r.outputLimit
	return res, nil
}

func (r *Runner) newMarker() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("__SHELLRELAY_CWD_%d_%04x__", time.Now().UnixNano(), r.rand.Intn(0xffff))
}
