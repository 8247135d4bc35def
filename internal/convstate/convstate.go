package convstate

import (
	"context"
	"sync"

	"shellrelay/internal/logging"
)

// Mode selects how inbound text for a conversation is interpreted.
type Mode string

const (
	// ModeCommand treats each message as a literal shell command.
	ModeCommand Mode = "command"
	// ModeChat routes messages through the planner first.
	ModeChat Mode = "chat"
)

// ValidMode reports whether m is one of the two supported modes.
func ValidMode(m Mode) bool {
	return m == ModeCommand || m == ModeChat
}

// State is the durable per-conversation execution context. WorkingDir is
// sandbox-relative; "." means the sandbox root.
type State struct {
	ConversationID string
	Mode           Mode
	WorkingDir     string
}

// Store persists conversation state. Get never fails for an unknown
// conversation; it returns the defaults instead.
type Store interface {
	Get(ctx context.Context, conversationID string) (State, error)
	SetMode(ctx context.Context, conversationID string, mode Mode) error
	SetCwd(ctx context.Context, conversationID string, dir string) error
	Close() error
}

func defaultState(id string, mode Mode) State {
	return State{ConversationID: id, Mode: mode, WorkingDir: "."}
}

// Memory is an in-process Store used by tests and as the degraded fallback
// when the durable store cannot be opened.
type Memory struct {
	defaultMode Mode
	mu          sync.Mutex
	states      map[string]State
}

func NewMemory(defaultMode Mode) *Memory {
	return &Memory{
		defaultMode: defaultMode,
		states:      make(map[string]State),
	}
}

func (m *Memory) Get(_ context.Context, id string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[id]; ok {
		return st, nil
	}
	return defaultState(id, m.defaultMode), nil
}

func (m *Memory) SetMode(_ context.Context, id string, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		st = defaultState(id, m.defaultMode)
	}
	st.Mode = mode
	m.states[id] = st
	return nil
}

func (m *Memory) SetCwd(_ context.Context, id string, dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		st = defaultState(id, m.defaultMode)
	}
	st.WorkingDir = dir
	m.states[id] = st
	return nil
}

func (m *Memory) Close() error { return nil }

// Fallback wraps a primary store and falls back to the secondary when the
// primary errors, logging each degradation. Message handling keeps working
// on defaults while the durable store is unavailable.
type Fallback struct {
	primary   Store
	secondary Store
}

func NewFallback(primary, secondary Store) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) Get(ctx context.Context, id string) (State, error) {
	st, err := f.primary.Get(ctx, id)
	if err != nil {
		logging.ErrorLog("state store degraded, serving defaults for %s: %v", id, err)
		return f.secondary.Get(ctx, id)
	}
	return st, nil
}

func (f *Fallback) SetMode(ctx context.Context, id string, mode Mode) error {
	if err := f.primary.SetMode(ctx, id, mode); err != nil {
		logging.ErrorLog("state store degraded, mode update for %s not durable: %v", id, err)
		return f.secondary.SetMode(ctx, id, mode)
	}
	return nil
}

func (f *Fallback) SetCwd(ctx context.Context, id string, dir string) error {
	if err := f.primary.SetCwd(ctx, id, dir); err != nil {
		logging.ErrorLog("state store degraded, cwd update for %s not durable: %v", id, err)
		return f.secondary.SetCwd(ctx, id, dir)
	}
	return nil
}

func (f *Fallback) Close() error {
	err := f.primary.Close()
	if serr := f.secondary.Close(); err == nil {
		err = serr
	}
	return err
}
