package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"shellrelay/internal/convstate"
	"shellrelay/internal/executor"
	"shellrelay/internal/logging"
	"shellrelay/internal/sandbox"
)

var (
	// ErrNotAllowed is returned for conversations outside the allow-list.
	ErrNotAllowed = errors.New("conversation not allowed")
	// ErrNoOracle is returned when a chat-mode message arrives and no
	// translator is configured.
	ErrNoOracle = errors.New("no translator configured")
	// ErrInvalidMode rejects mode values other than command and chat.
	ErrInvalidMode = errors.New("invalid mode")
)

// Translator converts a natural-language instruction into a command plan.
type Translator interface {
	Translate(ctx context.Context, instruction string) ([]string, error)
}

// Request is one inbound conversation message.
type Request struct {
	ConversationID string
	Text           string
	// Mode overrides the stored conversation mode for this message only.
	// Empty means use the stored mode.
	Mode convstate.Mode
}

// Engine ties translation, execution, and state together. Messages within
// one conversation are serialized; different conversations proceed
// concurrently.
type Engine struct {
	states     convstate.Store
	translator Translator
	exec       *executor.Executor
	paths      *sandbox.Resolver
	planWall   time.Duration
	allowed    map[string]struct{}

	// convLock keeps one mutex per conversation id ever seen. Entries are
	// never evicted, matching the state store, where conversations are
	// never deleted either.
	mu       sync.Mutex
	convLock map[string]*sync.Mutex
	inflight map[string]context.CancelFunc
}

// Options carries the optional knobs for NewEngine.
type Options struct {
	// Translator may be nil; chat-mode messages then fail with ErrNoOracle.
	Translator Translator
	// AllowedConversations restricts which IDs may execute. Empty allows all.
	AllowedConversations []string
	// PlanWallClock bounds a whole plan's execution. Zero means no bound
	// beyond per-step timeouts.
	PlanWallClock time.Duration
}

func NewEngine(states convstate.Store, exec *executor.Executor, paths *sandbox.Resolver, opts Options) *Engine {
	var allowed map[string]struct{}
	if len(opts.AllowedConversations) > 0 {
		allowed = make(map[string]struct{}, len(opts.AllowedConversations))
		for _, id := range opts.AllowedConversations {
			allowed[id] = struct{}{}
		}
	}
	return &Engine{
		states:     states,
		translator: opts.Translator,
		exec:       exec,
		paths:      paths,
		planWall:   opts.PlanWallClock,
		allowed:    allowed,
		convLock:   make(map[string]*sync.Mutex),
		inflight:   make(map[string]context.CancelFunc),
	}
}

// Allowed reports whether the conversation may execute commands.
func (e *Engine) Allowed(id string) bool {
	if e.allowed == nil {
		return true
	}
	_, ok := e.allowed[id]
	return ok
}

// Handle processes one message: in command mode the text is executed as a
// single step, in chat mode it is translated into a plan first. The report
// covers whatever executed; err is non-nil only when nothing ran.
func (e *Engine) Handle(ctx context.Context, req Request) (executor.Report, error) {
	if !e.Allowed(req.ConversationID) {
		return executor.Report{}, fmt.Errorf("%w: %s", ErrNotAllowed, req.ConversationID)
	}

	lock := e.lockFor(req.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.states.Get(ctx, req.ConversationID)
	if err != nil {
		return executor.Report{}, fmt.Errorf("load conversation state: %w", err)
	}
	mode := state.Mode
	if req.Mode != "" {
		if !convstate.ValidMode(req.Mode) {
			return executor.Report{}, fmt.Errorf("%w: %s", ErrInvalidMode, req.Mode)
		}
		mode = req.Mode
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if e.planWall > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.planWall)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	e.registerInflight(req.ConversationID, cancel)
	defer e.clearInflight(req.ConversationID)

	var plan []string
	if mode == convstate.ModeChat {
		if e.translator == nil {
			return executor.Report{}, ErrNoOracle
		}
		plan, err = e.translator.Translate(runCtx, req.Text)
		if err != nil {
			return executor.Report{}, err
		}
		logging.DevLog("conversation %s: plan of %d steps", req.ConversationID, len(plan))
	} else {
		plan = []string{req.Text}
	}

	return e.exec.Execute(runCtx, req.ConversationID, plan)
}

// Cancel aborts the in-flight plan for a conversation, if any. The running
// step is killed and reported as such; later steps never start.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	cancel, ok := e.inflight[id]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// State returns the stored state for a conversation.
func (e *Engine) State(ctx context.Context, id string) (convstate.State, error) {
	if !e.Allowed(id) {
		return convstate.State{}, fmt.Errorf("%w: %s", ErrNotAllowed, id)
	}
	return e.states.Get(ctx, id)
}

// SetMode updates the stored interpretation mode for a conversation.
func (e *Engine) SetMode(ctx context.Context, id string, mode convstate.Mode) error {
	if !e.Allowed(id) {
		return fmt.Errorf("%w: %s", ErrNotAllowed, id)
	}
	if !convstate.ValidMode(mode) {
		return fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	return e.states.SetMode(ctx, id, mode)
}

// SetCwd updates the stored working directory after validating it resolves
// inside the sandbox.
func (e *Engine) SetCwd(ctx context.Context, id string, dir string) (string, error) {
	if !e.Allowed(id) {
		return "", fmt.Errorf("%w: %s", ErrNotAllowed, id)
	}
	abs, err := e.paths.Resolve(dir)
	if err != nil {
		return "", err
	}
	rel, err := e.paths.Rel(abs)
	if err != nil {
		return "", err
	}
	if err := e.states.SetCwd(ctx, id, rel); err != nil {
		return "", err
	}
	return rel, nil
}

func (e *Engine) lockFor(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.convLock[id]
	if !ok {
		lock = &sync.Mutex{}
		e.convLock[id] = lock
	}
	return lock
}

func (e *Engine) registerInflight(id string, cancel context.CancelFunc) {
	e.mu.Lock()
	e.inflight[id] = cancel
	e.mu.Unlock()
}

func (e *Engine) clearInflight(id string) {
	e.mu.Lock()
	delete(e.inflight, id)
	e.mu.Unlock()
}
