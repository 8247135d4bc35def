//go:build !windows

package relay

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"shellrelay/internal/convstate"
	"shellrelay/internal/executor"
	"shellrelay/internal/osprofile"
	"shellrelay/internal/runner"
	"shellrelay/internal/sandbox"
)

type fixedTranslator struct {
	plan []string
	err  error
	got  string
}

func (f *fixedTranslator) Translate(_ context.Context, instruction string) ([]string, error) {
	f.got = instruction
	if f.err != nil {
		return nil, f.err
	}
	return f.plan, nil
}

func newTestEngine(t *testing.T, opts Options) (*Engine, convstate.Store) {
	t.Helper()
	if _, err := exec.LookPath("/bin/bash"); err != nil {
		t.Skip("bash not available")
	}
	paths, err := sandbox.New(t.TempDir())
	if err != nil {
		t.Fatalf("sandbox.New: %v", err)
	}
	states := convstate.NewMemory(convstate.ModeCommand)
	r := runner.New(osprofile.ResolveFor("linux"), 0)
	exe := executor.New(r, paths, states, 10*time.Second)
	return NewEngine(states, exe, paths, opts), states
}

func TestHandleCommandMode(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	report, err := e.Handle(context.Background(), Request{
		ConversationID: "conv-1",
		Text:           "echo hello",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(report.Steps) != 1 || report.Steps[0].Stdout != "hello\n" {
		t.Errorf("report = %+v", report)
	}
}

func TestHandleChatModeUsesTranslator(t *testing.T) {
	tr := &fixedTranslator{plan: []string{"echo planned"}}
	e, states := newTestEngine(t, Options{Translator: tr})
	ctx := context.Background()

	if err := states.SetMode(ctx, "conv-1", convstate.ModeChat); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	report, err := e.Handle(ctx, Request{ConversationID: "conv-1", Text: "say planned"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if tr.got != "say planned" {
		t.Errorf("translator got %q", tr.got)
	}
	if len(report.Steps) != 1 || report.Steps[0].Stdout != "planned\n" {
		t.Errorf("report = %+v", report)
	}
}

func TestHandleModeOverride(t *testing.T) {
	tr := &fixedTranslator{plan: []string{"echo via-chat"}}
	e, _ := newTestEngine(t, Options{Translator: tr})

	// stored mode is command; this message asks for chat
	report, err := e.Handle(context.Background(), Request{
		ConversationID: "conv-1",
		Text:           "do something",
		Mode:           convstate.ModeChat,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if report.Steps[0].Stdout != "via-chat\n" {
		t.Errorf("stdout = %q", report.Steps[0].Stdout)
	}

	// override is per-message and must not persist
	report, err = e.Handle(context.Background(), Request{
		ConversationID: "conv-1",
		Text:           "echo literal",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if report.Steps[0].Stdout != "literal\n" {
		t.Errorf("stdout = %q", report.Steps[0].Stdout)
	}
}

func TestHandleChatWithoutTranslator(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	_, err := e.Handle(context.Background(), Request{
		ConversationID: "conv-1",
		Text:           "list files",
		Mode:           convstate.ModeChat,
	})
	if !errors.Is(err, ErrNoOracle) {
		t.Errorf("err = %v, want ErrNoOracle", err)
	}
}

func TestHandleTranslatorFailureRunsNothing(t *testing.T) {
	boom := errors.New("model unavailable")
	e, _ := newTestEngine(t, Options{Translator: &fixedTranslator{err: boom}})

	report, err := e.Handle(context.Background(), Request{
		ConversationID: "conv-1",
		Text:           "anything",
		Mode:           convstate.ModeChat,
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(report.Steps) != 0 {
		t.Errorf("steps ran despite translation failure: %+v", report)
	}
}

func TestHandleAllowList(t *testing.T) {
	e, _ := newTestEngine(t, Options{AllowedConversations: []string{"ok"}})

	if _, err := e.Handle(context.Background(), Request{ConversationID: "nope", Text: "echo hi"}); !errors.Is(err, ErrNotAllowed) {
		t.Errorf("err = %v, want ErrNotAllowed", err)
	}
	if _, err := e.Handle(context.Background(), Request{ConversationID: "ok", Text: "echo hi"}); err != nil {
		t.Errorf("allowed conversation rejected: %v", err)
	}
}

func TestSetModeValidates(t *testing.T) {
	e, states := newTestEngine(t, Options{})
	ctx := context.Background()

	if err := e.SetMode(ctx, "conv-1", "yolo"); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("err = %v, want ErrInvalidMode", err)
	}
	if err := e.SetMode(ctx, "conv-1", convstate.ModeChat); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	st, _ := states.Get(ctx, "conv-1")
	if st.Mode != convstate.ModeChat {
		t.Errorf("mode = %q", st.Mode)
	}
}

func TestSetCwdValidatesAgainstSandbox(t *testing.T) {
	e, states := newTestEngine(t, Options{})
	ctx := context.Background()

	rel, err := e.SetCwd(ctx, "conv-1", "sub/dir")
	if err != nil {
		t.Fatalf("SetCwd: %v", err)
	}
	if rel != "sub/dir" {
		t.Errorf("rel = %q", rel)
	}
	st, _ := states.Get(ctx, "conv-1")
	if st.WorkingDir != "sub/dir" {
		t.Errorf("stored = %q", st.WorkingDir)
	}

	if _, err := e.SetCwd(ctx, "conv-1", "../../etc"); !errors.Is(err, sandbox.ErrPathEscape) {
		t.Errorf("err = %v, want ErrPathEscape", err)
	}
}

func TestCancelKillsRunningPlan(t *testing.T) {
	e, _ := newTestEngine(t, Options{})

	done := make(chan executor.Report, 1)
	go func() {
		report, _ := e.Handle(context.Background(), Request{
			ConversationID: "conv-1",
			Text:           "sleep 30",
		})
		done <- report
	}()

	deadline := time.After(5 * time.Second)
	for {
		if e.Cancel("conv-1") {
			break
		}
		select {
		case <-deadline:
			t.Fatal("plan never became cancelable")
		case <-time.After(10 * time.Millisecond):
		}
	}

	select {
	case report := <-done:
		if len(report.Steps) != 1 || report.Steps[0].ExitCode != nil {
			t.Errorf("report = %+v, want one killed step", report)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("handle did not return after cancel")
	}
}

func TestCancelWithNothingInFlight(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	if e.Cancel("conv-1") {
		t.Error("cancel reported success with nothing running")
	}
}

func TestRenderReport(t *testing.T) {
	zero, two := 0, 2
	report := executor.Report{
		TotalSteps:     3,
		CompletedSteps: 2,
		StoppedEarly:   true,
		Steps: []executor.StepResult{
			{Command: "echo hi", ExitCode: &zero, Stdout: "hi\n"},
			{Command: "grep x missing", ExitCode: &two, Stderr: "grep: missing: No such file or directory\n", Truncated: true},
		},
	}

	out := RenderReport(report)
	for _, want := range []string{
		"[1/3] $ echo hi",
		"exit=0",
		"stdout:\nhi",
		"[2/3] $ grep x missing",
		"exit=2",
		"stderr:\ngrep: missing: No such file or directory",
		"[output truncated]",
		"Stopped due to error at step 2 of 3.",
		"1 remaining step(s) were not attempted.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered report missing %q\n%s", want, out)
		}
	}
}

func TestRenderReportKilledStep(t *testing.T) {
	report := executor.Report{
		TotalSteps:     1,
		CompletedSteps: 1,
		StoppedEarly:   true,
		Steps: []executor.StepResult{
			{Command: "sleep 100", ExitCode: nil, DurationMs: 1500},
		},
	}
	out := RenderReport(report)
	if !strings.Contains(out, "killed after 1500ms") {
		t.Errorf("rendered = %q", out)
	}
	if !strings.Contains(out, "Stopped due to error at step 1 of 1.") {
		t.Errorf("rendered = %q", out)
	}
	if strings.Contains(out, "remaining step") {
		t.Errorf("no remaining steps to report: %q", out)
	}
}

func TestRenderReportFailureOnFinalStep(t *testing.T) {
	zero, two := 0, 2
	report := executor.Report{
		TotalSteps:     2,
		CompletedSteps: 2,
		StoppedEarly:   true,
		Steps: []executor.StepResult{
			{Command: "echo ok", ExitCode: &zero, Stdout: "ok\n"},
			{Command: "exit 2", ExitCode: &two},
		},
	}
	out := RenderReport(report)
	if !strings.Contains(out, "Stopped due to error at step 2 of 2.") {
		t.Errorf("rendered = %q", out)
	}
	if strings.Contains(out, "remaining step") {
		t.Errorf("no remaining steps to report: %q", out)
	}
}
