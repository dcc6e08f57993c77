// Package mocks provides shared test doubles for gtm packages.
package mocks

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/AndreyAkinshin/gtm/internal/process"
)

// Response is what the Invoker returns for one test file.
type Response struct {
	Output process.Output
	Err    error
	// Hook runs before the response is returned, e.g. to block or panic.
	Hook func(ctx context.Context, cmd process.Command)
}

// Invoker implements the dispatch process boundary without spawning anything.
// Responses are keyed by the base name of the last command argument, which is
// the test file. Use NewInvoker() to create instances with a fluent builder API.
type Invoker struct {
	responses map[string]Response
	fallback  Response

	callCount int32
	mu        sync.Mutex
	calls     []process.Command
}

// NewInvoker creates an invoker whose fallback response is an empty output.
func NewInvoker() *Invoker {
	return &Invoker{responses: make(map[string]Response)}
}

// WithResponse sets the response for a test file.
func (m *Invoker) WithResponse(file string, r Response) *Invoker {
	m.responses[filepath.Base(file)] = r
	return m
}

// WithStderr sets a successful invocation writing stderr for a test file.
func (m *Invoker) WithStderr(file, stderr string) *Invoker {
	return m.WithResponse(file, Response{Output: process.Output{Stderr: stderr}})
}

// WithStdout sets a successful invocation writing stdout for a test file.
func (m *Invoker) WithStdout(file, stdout string) *Invoker {
	return m.WithResponse(file, Response{Output: process.Output{Stdout: stdout}})
}

// WithFallback sets the response for files without an explicit one.
func (m *Invoker) WithFallback(r Response) *Invoker {
	m.fallback = r
	return m
}

// Invoke records the command and returns the configured response.
func (m *Invoker) Invoke(ctx context.Context, cmd process.Command) (process.Output, error) {
	atomic.AddInt32(&m.callCount, 1)
	m.mu.Lock()
	m.calls = append(m.calls, cmd)
	m.mu.Unlock()

	r := m.fallback
	if n := len(cmd.Args); n > 0 {
		if resp, ok := m.responses[filepath.Base(cmd.Args[n-1])]; ok {
			r = resp
		}
	}
	if r.Hook != nil {
		r.Hook(ctx, cmd)
	}
	return r.Output, r.Err
}

// Test inspection methods

// CallCount returns the number of times Invoke was called.
func (m *Invoker) CallCount() int32 {
	return atomic.LoadInt32(&m.callCount)
}

// Calls returns the recorded commands in call order.
func (m *Invoker) Calls() []process.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]process.Command, len(m.calls))
	copy(result, m.calls)
	return result
}

// Files returns the test file argument of each recorded call.
func (m *Invoker) Files() []string {
	calls := m.Calls()
	files := make([]string, 0, len(calls))
	for _, c := range calls {
		if n := len(c.Args); n > 0 {
			files = append(files, c.Args[n-1])
		}
	}
	return files
}

// Reset clears call tracking state.
func (m *Invoker) Reset() {
	atomic.StoreInt32(&m.callCount, 0)
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}
