package executor

import (
	"context"
	"fmt"
	"time"

	"shellrelay/internal/convstate"
	"shellrelay/internal/logging"
	"shellrelay/internal/runner"
	"shellrelay/internal/sandbox"
)

// StepResult records one executed command within a plan.
type StepResult struct {
	Command    string
	ExitCode   *int
	Stdout     string
	Stderr     string
	DurationMs int64
	Truncated  bool
}

// Report summarizes a plan execution. When StoppedEarly is true the last
// entry in Steps is the one that failed or was killed; steps after it were
// never attempted.
type Report struct {
	Steps          []StepResult
	TotalSteps     int
	CompletedSteps int
	StoppedEarly   bool
}

// Executor runs plans sequentially against a conversation's working
// directory, persisting directory changes between steps.
type Executor struct {
	runner  *runner.Runner
	paths   *sandbox.Resolver
	states  convstate.Store
	timeout time.Duration
}

func New(r *runner.Runner, paths *sandbox.Resolver, states convstate.Store, stepTimeout time.Duration) *Executor {
	return &Executor{
		runner:  r,
		paths:   paths,
		states:  states,
		timeout: stepTimeout,
	}
}

// Execute runs commands in order, stopping at the first step that exits
// non-zero or is killed. Each step starts from the conversation's current
// working directory, so a cd in one step carries into the next. The error
// return is reserved for failures to launch the shell; everything else is
// expressed through the report.
func (e *Executor) Execute(ctx context.Context, conversationID string, commands []string) (Report, error) {
	report := Report{TotalSteps: len(commands)}

	for _, command := range commands {
		state, err := e.states.Get(ctx, conversationID)
		if err != nil {
			return report, fmt.Errorf("load conversation state: %w", err)
		}
		dir, err := e.paths.Resolve(state.WorkingDir)
		if err != nil {
			logging.ErrorLog("stored working dir %q invalid for %s, resetting to root", state.WorkingDir, conversationID)
			dir = e.paths.Root()
		}

		res, err := e.runner.Run(ctx, runner.Spec{
			Command:  command,
			Dir:      dir,
			Timeout:  e.timeout,
			TrackCwd: true,
		})
		if err != nil {
			return report, fmt.Errorf("step %d: %w", report.CompletedSteps+1, err)
		}

		report.Steps = append(report.Steps, StepResult{
			Command:    command,
			ExitCode:   res.ExitCode,
			Stdout:     res.Stdout,
			Stderr:     res.Stderr,
			DurationMs: res.DurationMs,
			Truncated:  res.Truncated,
		})
		report.CompletedSteps++

		if res.WorkingDir != "" {
			e.persistCwd(ctx, conversationID, res.WorkingDir)
		}

		if res.ExitCode == nil || *res.ExitCode != 0 {
			report.StoppedEarly = true
			break
		}
	}
	return report, nil
}

// persistCwd maps the probed absolute directory back into the sandbox and
// stores it. A directory outside the sandbox is discarded so the stored
// state can never point past the root.
func (e *Executor) persistCwd(ctx context.Context, conversationID, absDir string) {
	rel, err := e.paths.Rel(absDir)
	if err != nil {
		logging.ErrorLog("probed working dir %q escapes sandbox for %s, keeping previous", absDir, conversationID)
		return
	}
	if err := e.states.SetCwd(ctx, conversationID, rel); err != nil {
		logging.ErrorLog("persist working dir for %s: %v", conversationID, err)
	}
}
