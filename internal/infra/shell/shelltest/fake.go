// Package shelltest provides a scripted in-memory executor for tests.
package shelltest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/deepsleep-project/deepsleep/internal/domain"
)

// ErrScripted is the error carried by scripted failures.
var ErrScripted = errors.New("scripted failure")

type rule struct {
	substr string
	fn     func(cmd string) domain.CommandResult
}

// Fake records every command and answers from rules registered with On,
// OnFunc and Fail. The most recently registered matching rule wins.
// Unmatched commands succeed with no output.
type Fake struct {
	mu       sync.Mutex
	rules    []rule
	files    map[string]string
	commands []string
	batches  [][]string
}

var _ domain.Executor = (*Fake)(nil)

// NewFake returns an empty fake.
func NewFake() *Fake {
	return &Fake{files: make(map[string]string)}
}

// On answers commands containing substr with success and the given lines.
func (f *Fake) On(substr string, lines ...string) {
	out := append([]string(nil), lines...)
	f.OnFunc(substr, func(string) domain.CommandResult {
		return domain.CommandResult{Success: true, Lines: out}
	})
}

// Fail makes commands containing substr report failure.
func (f *Fake) Fail(substr string) {
	f.OnFunc(substr, func(string) domain.CommandResult {
		return domain.CommandResult{Err: ErrScripted}
	})
}

// OnFunc answers commands containing substr with fn.
func (f *Fake) OnFunc(substr string, fn func(cmd string) domain.CommandResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{substr: substr, fn: fn})
}

// SetFile makes ReadFile(path) return content.
func (f *Fake) SetFile(path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
}

// Execute implements domain.Executor.
func (f *Fake) Execute(_ context.Context, command string) domain.CommandResult {
	f.mu.Lock()
	f.commands = append(f.commands, command)
	fn := f.match(command)
	f.mu.Unlock()

	if fn == nil {
		return domain.CommandResult{Success: true}
	}
	return fn(command)
}

// ExecuteBatch records each line and fails if any line's rule fails.
func (f *Fake) ExecuteBatch(_ context.Context, commands []string) domain.CommandResult {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), commands...))
	f.commands = append(f.commands, commands...)
	fns := make([]func(string) domain.CommandResult, len(commands))
	for i, c := range commands {
		fns[i] = f.match(c)
	}
	f.mu.Unlock()

	res := domain.CommandResult{Success: true}
	for i, fn := range fns {
		if fn == nil {
			continue
		}
		r := fn(commands[i])
		res.Lines = append(res.Lines, r.Lines...)
		if !r.Success {
			res.Success = false
			res.Err = r.Err
		}
	}
	return res
}

// ReadFile implements domain.Executor.
func (f *Fake) ReadFile(_ context.Context, path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[path]
	return content, ok
}

// Commands returns every command line seen so far, batches flattened.
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// Batches returns every batch submitted so far.
func (f *Fake) Batches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.batches))
	copy(out, f.batches)
	return out
}

// Count returns how many recorded commands contain substr.
func (f *Fake) Count(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

// CountExact returns how many recorded commands equal command.
func (f *Fake) CountExact(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c == command {
			n++
		}
	}
	return n
}

// Reset forgets recorded commands but keeps rules and files.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = nil
	f.batches = nil
}

func (f *Fake) match(command string) func(string) domain.CommandResult {
	for i := len(f.rules) - 1; i >= 0; i-- {
		if strings.Contains(command, f.rules[i].substr) {
			return f.rules[i].fn
		}
	}
	return nil
}
