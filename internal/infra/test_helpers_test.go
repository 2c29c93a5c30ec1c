package infra

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// mockProcessManager is a test double for ProcessManager
type mockProcessManager struct {
	mu           sync.Mutex
	runningPIDs  map[int]bool
	names        map[int]string
	terminated   []int
	terminateErr error
	findErr      error
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
		names:       make(map[int]string),
	}
}

func (m *mockProcessManager) FindByName(name string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var pids []int
	for pid, n := range m.names {
		if strings.EqualFold(n, name) && m.runningPIDs[pid] {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

func (m *mockProcessManager) NameOf(pid int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.names[pid]
	if !ok {
		return "", errors.New("process not found")
	}
	return name, nil
}

func (m *mockProcessManager) Terminate(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminateErr != nil {
		return m.terminateErr
	}
	m.terminated = append(m.terminated, pid)
	delete(m.runningPIDs, pid)
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) SetRunning(pid int, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runningPIDs[pid] = running
}

func (m *mockProcessManager) AddProcess(pid int, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[pid] = name
	m.runningPIDs[pid] = true
}

// mockCommandRunner records commands and returns canned output.
type mockCommandRunner struct {
	mu      sync.Mutex
	calls   [][]string
	outputs map[string][]byte // keyed by the joined command line
	errs    map[string]error  // keyed by command name
}

func newMockCommandRunner() *mockCommandRunner {
	return &mockCommandRunner{
		outputs: make(map[string][]byte),
		errs:    make(map[string]error),
	}
}

func (m *mockCommandRunner) record(name string, args []string) []string {
	call := append([]string{name}, args...)
	m.calls = append(m.calls, call)
	return call
}

func (m *mockCommandRunner) Run(name string, args ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(name, args)
	return m.errs[name]
}

func (m *mockCommandRunner) Output(name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := m.record(name, args)
	if err := m.errs[name]; err != nil {
		return nil, err
	}
	return m.outputs[strings.Join(call, " ")], nil
}

func (m *mockCommandRunner) SetOutput(cmdline string, out string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[cmdline] = []byte(out)
}

func (m *mockCommandRunner) SetError(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[name] = err
}

func (m *mockCommandRunner) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.calls))
	copy(out, m.calls)
	return out
}
