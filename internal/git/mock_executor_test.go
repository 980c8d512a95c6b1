package git

import (
	"context"
	"strings"
	"sync"
)

// MockCommandExecutor records calls and returns canned results keyed by
// git subcommand.
type MockCommandExecutor struct {
	mu       sync.Mutex
	Commands [][]string
	Outputs  map[string]string
	Errors   map[string]error
}

// NewMockCommandExecutor creates a new mock executor
func NewMockCommandExecutor() *MockCommandExecutor {
	return &MockCommandExecutor{
		Outputs: make(map[string]string),
		Errors:  make(map[string]error),
	}
}

// ExecuteWithContext implements the CommandExecutor interface
func (m *MockCommandExecutor) ExecuteWithContext(ctx context.Context, name string, args ...string) error {
	_, err := m.ExecuteWithContextAndOutput(ctx, name, args...)
	return err
}

// ExecuteWithContextAndOutput implements the CommandExecutor interface
func (m *MockCommandExecutor) ExecuteWithContextAndOutput(_ context.Context, name string, args ...string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Commands = append(m.Commands, append([]string{name}, args...))
	sub := subcommand(args)
	return m.Outputs[sub], m.Errors[sub]
}

// Subcommands returns the git subcommands invoked so far, in order.
func (m *MockCommandExecutor) Subcommands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := make([]string, 0, len(m.Commands))
	for _, cmd := range m.Commands {
		subs = append(subs, subcommand(cmd[1:]))
	}
	return subs
}

// Last returns the last command line as a single string.
func (m *MockCommandExecutor) Last() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Commands) == 0 {
		return ""
	}
	return strings.Join(m.Commands[len(m.Commands)-1], " ")
}
